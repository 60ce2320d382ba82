package postgres

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Purger deletes stored duels older than a cutoff.
type Purger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionJob periodically drops old duel results.
type RetentionJob struct {
	purger    Purger
	retention time.Duration
	schedule  string
	now       func() time.Time
	logger    *zap.Logger
	cron      *cron.Cron
}

func NewRetentionJob(purger Purger, retention time.Duration, schedule string, logger *zap.Logger) *RetentionJob {
	if schedule == "" {
		schedule = "@daily"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetentionJob{
		purger:    purger,
		retention: retention,
		schedule:  schedule,
		now:       time.Now,
		logger:    logger,
		cron:      cron.New(),
	}
}

// Start registers the purge on the cron schedule and starts the scheduler.
func (j *RetentionJob) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		_, _ = j.RunOnce(ctx)
	}); err != nil {
		return err
	}
	j.cron.Start()
	j.logger.Info("duel result retention scheduled",
		zap.String("schedule", j.schedule),
		zap.Duration("retention", j.retention),
	)
	return nil
}

// Stop halts the scheduler and waits for a running purge.
func (j *RetentionJob) Stop() {
	<-j.cron.Stop().Done()
}

// RunOnce purges everything older than the retention window.
func (j *RetentionJob) RunOnce(ctx context.Context) (int64, error) {
	if j.retention <= 0 {
		return 0, nil
	}
	cutoff := j.now().Add(-j.retention)
	n, err := j.purger.PurgeBefore(ctx, cutoff)
	if err != nil {
		j.logger.Warn("purge duel results", zap.Error(err))
		return 0, err
	}
	j.logger.Info("purged duel results", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
	return n, nil
}
