package maintenance

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/notistore/internal/monitoring"
	"github.com/charlesng35/notistore/pkg/logger"
)

const (
	// JobNotificationRetention names the soft-delete purge job in health reports.
	JobNotificationRetention = "notification_retention"
	// JobRateCounterSweep names the expired rate counter sweep in health reports.
	JobRateCounterSweep = "rate_counter_sweep"

	defaultRetentionDays = 30
	defaultSchedule      = "@daily"
	defaultBatchSize     = 500
	maxBatchesPerRun     = 1000
	sweepSchedule        = "@every 10m"
)

// Purger hard-deletes soft-deleted notifications older than cutoff, at most batch per call.
type Purger interface {
	PurgeSoftDeleted(ctx context.Context, cutoff time.Time, batch int) (int64, error)
}

// Sweeper removes expired shared rate counters.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// Cleaner runs the notification retention job, and optionally the rate counter sweep, on a cron schedule.
type Cleaner struct {
	purger    Purger
	sweeper   Sweeper
	tracker   *monitoring.JobTracker
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	retention int
	batch     int
	schedule  string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used to compute the retention cutoff.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithRetentionDays sets how long soft-deleted rows are kept. Zero disables the purge.
func WithRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days >= 0 {
			cleaner.retention = days
		}
	}
}

// WithSchedule overrides the cron specification for the purge.
func WithSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.schedule = spec
		}
	}
}

// WithBatchSize bounds how many rows one purge transaction removes.
func WithBatchSize(size int) Option {
	return func(cleaner *Cleaner) {
		if size > 0 {
			cleaner.batch = size
		}
	}
}

// WithTracker reports job outcomes to the maintenance health probe.
func WithTracker(tracker *monitoring.JobTracker) Option {
	return func(cleaner *Cleaner) {
		cleaner.tracker = tracker
	}
}

// WithSweeper schedules periodic removal of expired rate counters.
func WithSweeper(sweeper Sweeper) Option {
	return func(cleaner *Cleaner) {
		cleaner.sweeper = sweeper
	}
}

// NewCleaner constructs a Cleaner. A nil purger disables every job.
func NewCleaner(purger Purger, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		purger:    purger,
		now:       time.Now,
		retention: defaultRetentionDays,
		batch:     defaultBatchSize,
		schedule:  defaultSchedule,
		log:       logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

func (c *Cleaner) enabled() bool {
	return c.purger != nil && c.retention > 0
}

// Start registers the enabled jobs and launches the scheduler when at least one is enabled.
func (c *Cleaner) Start() error {
	scheduled := 0

	if c.enabled() {
		c.tracker.Register(JobNotificationRetention)
		if _, err := c.cron.AddFunc(c.schedule, func() {
			if _, err := c.PurgeExpired(context.Background()); err != nil {
				c.log.Warn("notification retention failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
		scheduled++
		c.log.Info("notification retention scheduled",
			zap.String("schedule", c.schedule),
			zap.Int("retention_days", c.retention),
		)
	} else {
		c.log.Info("notification retention disabled")
	}

	if c.sweeper != nil {
		c.tracker.Register(JobRateCounterSweep)
		if _, err := c.cron.AddFunc(sweepSchedule, func() {
			if _, err := c.SweepRateCounters(context.Background()); err != nil {
				c.log.Warn("rate counter sweep failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
		scheduled++
	}

	if scheduled > 0 {
		c.cron.Start()
	}
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return c.cron.Stop()
}

// RunOnce executes every enabled job sequentially. Used in tests and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	if c.enabled() {
		if _, err := c.PurgeExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if c.sweeper != nil {
		if _, err := c.SweepRateCounters(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// PurgeExpired removes soft-deleted notifications older than the retention window, batch by
// batch, until a short batch signals nothing is left.
func (c *Cleaner) PurgeExpired(ctx context.Context) (int64, error) {
	if !c.enabled() {
		return 0, errors.New("notification retention is disabled")
	}

	start := time.Now()
	cutoff := c.now().UTC().AddDate(0, 0, -c.retention)

	var (
		total int64
		err   error
	)
	for i := 0; i < maxBatchesPerRun; i++ {
		if err = ctx.Err(); err != nil {
			break
		}
		var purged int64
		purged, err = c.purger.PurgeSoftDeleted(ctx, cutoff, c.batch)
		total += purged
		if err != nil || purged < int64(c.batch) {
			break
		}
	}

	c.tracker.RecordRun(JobNotificationRetention, err, time.Since(start))
	if err != nil {
		return total, err
	}
	if total > 0 {
		c.log.Info("notification retention complete", zap.Int64("purged", total), zap.Time("cutoff", cutoff))
	}
	return total, nil
}

// SweepRateCounters deletes rate counters whose window has closed.
func (c *Cleaner) SweepRateCounters(ctx context.Context) (int64, error) {
	if c.sweeper == nil {
		return 0, errors.New("rate counter sweep is not configured")
	}

	start := time.Now()
	removed, err := c.sweeper.Sweep(ctx)
	c.tracker.RecordRun(JobRateCounterSweep, err, time.Since(start))
	if err != nil {
		return removed, err
	}
	if removed > 0 {
		c.log.Debug("expired rate counters removed", zap.Int64("removed", removed))
	}
	return removed, nil
}
