// Package scheduler runs periodic maintenance sweeps: expiring stale access
// requests and purging dead workflow jobs.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/assethub/assethub/pkg/observability"
)

// Config controls sweep cadence and retention.
type Config struct {
	// ExpireRequestsSchedule is a cron expression for the access request
	// expiry sweep.
	ExpireRequestsSchedule string

	// PurgeJobsSchedule is a cron expression for the dead job purge sweep.
	PurgeJobsSchedule string

	// DeadJobRetention is how long dead jobs are kept before purging.
	DeadJobRetention time.Duration

	// SweepTimeout bounds each sweep's database work.
	SweepTimeout time.Duration
}

// DefaultConfig sweeps requests every 15 minutes and purges daily, keeping
// dead jobs for a week.
func DefaultConfig() Config {
	return Config{
		ExpireRequestsSchedule: "*/15 * * * *",
		PurgeJobsSchedule:      "30 3 * * *",
		DeadJobRetention:       7 * 24 * time.Hour,
		SweepTimeout:           time.Minute,
	}
}

// SweepStore is the slice of the storage contract the sweeps need.
type SweepStore interface {
	ExpireAccessRequests(ctx context.Context, now time.Time) (int64, error)
	PurgeDeadWorkflowJobs(ctx context.Context, olderThan time.Time) (int64, error)
}

// Scheduler owns the cron runner.
type Scheduler struct {
	cfg    Config
	store  SweepStore
	logger *observability.Logger
	cron   *cron.Cron
}

// New builds a scheduler over the store. Call Start to begin sweeping.
func New(cfg Config, store SweepStore, logger *observability.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	s := &Scheduler{
		cfg:    cfg,
		store:  store,
		logger: logger,
		cron:   cron.New(),
	}

	if _, err := s.cron.AddFunc(cfg.ExpireRequestsSchedule, s.expireAccessRequests); err != nil {
		return nil, err
	}
	if _, err := s.cron.AddFunc(cfg.PurgeJobsSchedule, s.purgeDeadJobs); err != nil {
		return nil, err
	}

	return s, nil
}

// Start begins the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop halts scheduling and waits for running sweeps to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) expireAccessRequests() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SweepTimeout)
	defer cancel()

	count, err := s.store.ExpireAccessRequests(ctx, time.Now())
	if err != nil {
		s.logger.WithError(err).Error("access request expiry sweep failed")
		return
	}
	if count > 0 {
		s.logger.WithField("expired", count).Info("expired stale access requests")
	}
}

func (s *Scheduler) purgeDeadJobs() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SweepTimeout)
	defer cancel()

	cutoff := time.Now().Add(-s.cfg.DeadJobRetention)
	count, err := s.store.PurgeDeadWorkflowJobs(ctx, cutoff)
	if err != nil {
		s.logger.WithError(err).Error("dead job purge sweep failed")
		return
	}
	if count > 0 {
		s.logger.WithField("purged", count).Info("purged dead workflow jobs")
	}
}
