package adapters

import (
	"sort"
	"strings"
	"time"

	"github.com/smallbiznis/staybook/internal/payment/domain"
)

// Registry binds provider names to their webhook adapter factory and the
// signing secret configured for that provider.
type Registry struct {
	factories map[string]domain.AdapterFactory
	secrets   map[string]string
}

func NewRegistry(secrets map[string]string, factories ...domain.AdapterFactory) *Registry {
	r := &Registry{
		factories: make(map[string]domain.AdapterFactory, len(factories)),
		secrets:   make(map[string]string, len(secrets)),
	}
	for _, f := range factories {
		if f == nil {
			continue
		}
		if name := normalizeProvider(f.Provider()); name != "" {
			r.factories[name] = f
		}
	}
	for name, secret := range secrets {
		r.secrets[normalizeProvider(name)] = strings.TrimSpace(secret)
	}
	return r
}

// Supports reports whether deliveries for provider can be verified.
func (r *Registry) Supports(provider string) bool {
	if r == nil {
		return false
	}
	_, ok := r.factories[normalizeProvider(provider)]
	return ok
}

// Providers lists the registered provider names in sorted order.
func (r *Registry) Providers() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Adapter builds a verifier/parser for provider using its configured secret.
func (r *Registry) Adapter(provider string, tolerance time.Duration) (domain.WebhookAdapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	name := normalizeProvider(provider)
	f, ok := r.factories[name]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return f.NewAdapter(domain.AdapterConfig{
		Provider:      name,
		WebhookSecret: r.secrets[name],
		Tolerance:     tolerance,
	})
}

func normalizeProvider(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}
