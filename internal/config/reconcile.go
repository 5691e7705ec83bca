package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ReconcileConfig holds the tunables of payment reconciliation and the
// booking sweeper. It can change at runtime without a restart.
type ReconcileConfig struct {
	PollAttempts     int           `mapstructure:"pollAttempts"`
	PollBackoff      time.Duration `mapstructure:"pollBackoff"`
	PendingTTL       time.Duration `mapstructure:"pendingTTL"`
	SweepSchedule    string        `mapstructure:"sweepSchedule"`
	RefundLockTTL    time.Duration `mapstructure:"refundLockTTL"`
	WebhookTolerance time.Duration `mapstructure:"webhookTolerance"`
}

func DefaultReconcileConfig() ReconcileConfig {
	return ReconcileConfig{
		PollAttempts:     5,
		PollBackoff:      2 * time.Second,
		PendingTTL:       30 * time.Minute,
		SweepSchedule:    "@every 1m",
		RefundLockTTL:    30 * time.Second,
		WebhookTolerance: 5 * time.Minute,
	}
}

type ReconcileConfigHolder struct {
	current atomic.Value // holds ReconcileConfig
}

// NewStaticReconcileConfigHolder returns a holder pinned to cfg.
func NewStaticReconcileConfigHolder(cfg ReconcileConfig) *ReconcileConfigHolder {
	holder := &ReconcileConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewReconcileConfigHolder() (*ReconcileConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("reconcile")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/staybook")
	v.AddConfigPath(".")

	v.SetEnvPrefix("STAYBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultReconcileConfig()
	v.SetDefault("reconcile.pollAttempts", defaults.PollAttempts)
	v.SetDefault("reconcile.pollBackoff", defaults.PollBackoff)
	v.SetDefault("reconcile.pendingTTL", defaults.PendingTTL)
	v.SetDefault("reconcile.sweepSchedule", defaults.SweepSchedule)
	v.SetDefault("reconcile.refundLockTTL", defaults.RefundLockTTL)
	v.SetDefault("reconcile.webhookTolerance", defaults.WebhookTolerance)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var cfg ReconcileConfig
	if err := v.UnmarshalKey("reconcile", &cfg); err != nil {
		return nil, err
	}
	if err := validateReconcileConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticReconcileConfigHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated ReconcileConfig
		if err := v.UnmarshalKey("reconcile", &updated); err != nil {
			log.Printf("[reconcile-config] reload failed: %v", err)
			return
		}
		if err := validateReconcileConfig(updated); err != nil {
			log.Printf("[reconcile-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[reconcile-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *ReconcileConfigHolder) Get() ReconcileConfig {
	if h == nil {
		return DefaultReconcileConfig()
	}
	cfg, ok := h.current.Load().(ReconcileConfig)
	if !ok {
		return DefaultReconcileConfig()
	}
	return cfg
}

func validateReconcileConfig(cfg ReconcileConfig) error {
	if cfg.PollAttempts <= 0 {
		return errors.New("reconcile.pollAttempts must be positive")
	}
	if cfg.PollBackoff < 0 {
		return errors.New("reconcile.pollBackoff cannot be negative")
	}
	if cfg.PendingTTL <= 0 {
		return errors.New("reconcile.pendingTTL must be positive")
	}
	if strings.TrimSpace(cfg.SweepSchedule) == "" {
		return errors.New("reconcile.sweepSchedule cannot be empty")
	}
	return nil
}
