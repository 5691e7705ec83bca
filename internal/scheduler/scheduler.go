package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	bookingdomain "github.com/smallbiznis/staybook/internal/booking/domain"
	"github.com/smallbiznis/staybook/internal/clock"
	"github.com/smallbiznis/staybook/internal/config"
	obsmetrics "github.com/smallbiznis/staybook/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	JobCompleteStays = "complete_stays"
	JobExpirePending = "expire_pending"
)

var (
	ErrInvalidConfig  = errors.New("invalid_scheduler_config")
	ErrAlreadyStarted = errors.New("scheduler_already_started")
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      bookingdomain.Repository
	Clock     clock.Clock
	Reconcile *config.ReconcileConfigHolder `optional:"true"`
	Config    Config                        `optional:"true"`
}

// Scheduler sweeps bookings whose state should move with time: confirmed
// stays past their checkout and pending bookings nobody paid for.
type Scheduler struct {
	db        *gorm.DB
	log       *zap.Logger
	cfg       Config
	genID     *snowflake.Node
	repo      bookingdomain.Repository
	clock     clock.Clock
	reconcile *config.ReconcileConfigHolder

	mu   sync.Mutex
	cron *cron.Cron
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Repo == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:        p.DB,
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:       p.Config.withDefaults(),
		genID:     p.GenID,
		repo:      p.Repo,
		clock:     p.Clock,
		reconcile: p.Reconcile,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context, run *jobRun) error,
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(withLogContext(parent), timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx, run)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	schedMetrics.IncJobError(name, err)
	// A deadline is a soft timeout; the next tick picks up the remainder.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.String("run_id", run.runID),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes every enabled sweep job once.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context, *jobRun) error
	}{
		{JobCompleteStays, s.CompleteStaysJob},
		{JobExpirePending, s.ExpirePendingJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.BatchSize, s.cfg.JobTimeout, job.Run))
	}
	return err
}

// CompleteStaysJob marks confirmed bookings whose checkout date has passed
// as completed. It drains in batches until a short batch comes back.
func (s *Scheduler) CompleteStaysJob(ctx context.Context, run *jobRun) error {
	now := s.clock.Now().UTC()
	today := bookingdomain.NormalizeDate(now)
	return s.drain(ctx, run, JobCompleteStays, func(ctx context.Context) (int64, error) {
		return s.repo.CompleteFinishedStays(ctx, s.db, today, now, s.cfg.BatchSize)
	})
}

// ExpirePendingJob cancels pending bookings with no settled payment once they
// are older than the pending TTL, releasing the dates they hold.
func (s *Scheduler) ExpirePendingJob(ctx context.Context, run *jobRun) error {
	now := s.clock.Now().UTC()
	cutoff := now.Add(-s.reconcile.Get().PendingTTL)
	return s.drain(ctx, run, JobExpirePending, func(ctx context.Context) (int64, error) {
		return s.repo.ExpireStalePending(ctx, s.db, cutoff, now, s.cfg.BatchSize)
	})
}

func (s *Scheduler) drain(ctx context.Context, run *jobRun, job string, step func(ctx context.Context) (int64, error)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows, err := step(ctx)
		if err != nil {
			return err
		}
		run.AddProcessed(int(rows))
		obsmetrics.Scheduler().AddBatchProcessed(job, "booking", int(rows))
		if rows < int64(s.cfg.BatchSize) {
			return nil
		}
	}
}

func (s *Scheduler) isJobEnabled(name string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	return slices.Contains(s.cfg.EnabledJobs, name)
}

// Start registers RunOnce on the configured cron schedule. The schedule is
// read once; changing it requires a restart.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return ErrAlreadyStarted
	}

	schedule := strings.TrimSpace(s.reconcile.Get().SweepSchedule)
	logger := cronLogger{log: s.log.Sugar()}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(schedule, func() {
		if err := s.RunOnce(ctx); err != nil {
			s.logger(ctx).Error("scheduler.sweep.failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("parse sweep schedule %q: %w", schedule, err)
	}

	c.Start()
	s.cron = c
	s.log.Info("scheduler started", zap.String("schedule", schedule))
	return nil
}

// Stop halts the cron loop and waits for a running sweep or ctx, whichever
// finishes first.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
