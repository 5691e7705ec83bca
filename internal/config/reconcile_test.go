package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateReconcileConfig(t *testing.T) {
	assert.NoError(t, validateReconcileConfig(DefaultReconcileConfig()))

	cfg := DefaultReconcileConfig()
	cfg.PollAttempts = 0
	assert.Error(t, validateReconcileConfig(cfg))

	cfg = DefaultReconcileConfig()
	cfg.PollBackoff = -time.Second
	assert.Error(t, validateReconcileConfig(cfg))

	cfg = DefaultReconcileConfig()
	cfg.SweepSchedule = "  "
	assert.Error(t, validateReconcileConfig(cfg))
}

func TestReconcileConfigHolderFallsBackToDefaults(t *testing.T) {
	var holder *ReconcileConfigHolder
	assert.Equal(t, DefaultReconcileConfig(), holder.Get())

	pinned := DefaultReconcileConfig()
	pinned.PollAttempts = 2
	assert.Equal(t, 2, NewStaticReconcileConfigHolder(pinned).Get().PollAttempts)
}
