package database

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/pimentor/backend/core"
)

var NowFunc = time.Now // mockable

// Purger deletes the records whose lifetime is over.
type Purger interface {
	// PurgeExpired deletes the enrollments with a purge date not after now and the doubts created before doubtsBefore.
	PurgeExpired(ctx context.Context, now, doubtsBefore time.Time) (enrollments, doubts int64, err error)
}

// Reaper periodically evicts purgeable enrollments and stale doubts.
type Reaper struct {
	cron      *cron.Cron
	purger    Purger
	retention time.Duration
	timeout   time.Duration
	logger    core.Logger
}

func NewReaper(purger Purger, conf *core.Config, logger core.Logger) (*Reaper, error) {
	r := &Reaper{
		cron:      cron.New(cron.WithLocation(time.UTC)),
		purger:    purger,
		retention: conf.Doubt.Retention,
		timeout:   time.Minute,
		logger:    logger,
	}
	schedule := conf.Enrollment.PurgeSchedule
	if schedule == "" {
		schedule = "@every 1m"
	}
	if _, err := r.cron.AddFunc(schedule, r.tick); err != nil {
		return nil, errors.Wrapf(err, "scheduling purge %q", schedule)
	}
	return r, nil
}

func (r *Reaper) Start() {
	r.cron.Start()
}

// Stop stops scheduling and waits for a running purge to finish, or for ctx to be done.
func (r *Reaper) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reaper) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if _, _, err := r.RunOnce(ctx); err != nil {
		r.logger.Error("purging expired records", err)
	}
}

// RunOnce performs a single purge pass.
func (r *Reaper) RunOnce(ctx context.Context) (enrollments, doubts int64, err error) {
	now := NowFunc().UTC()
	var doubtsBefore time.Time
	if r.retention > 0 {
		doubtsBefore = now.Add(-r.retention)
	}

	enrollments, doubts, err = r.purger.PurgeExpired(ctx, now, doubtsBefore)
	if err != nil {
		return 0, 0, errors.Wrap(err, "purging")
	}
	if enrollments > 0 || doubts > 0 {
		r.logger.Info("purged expired records", map[string]interface{}{
			"enrollments": enrollments,
			"doubts":      doubts,
		})
	}
	return enrollments, doubts, nil
}
