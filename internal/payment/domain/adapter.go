package domain

import (
	"context"
	"net/http"
	"time"
)

type AdapterConfig struct {
	Provider      string
	WebhookSecret string
	// Tolerance bounds the age of a signed webhook; zero disables the check.
	Tolerance time.Duration
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (WebhookAdapter, error)
}

type WebhookAdapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*WebhookEvent, error)
}
