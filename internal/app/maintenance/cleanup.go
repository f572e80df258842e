package maintenance

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/sftpgate/internal/cache"
	"github.com/charlesng35/sftpgate/pkg/logger"
)

const defaultCacheSpec = "@hourly"

// Cleaner periodically prunes expired entries from cache backends that do not
// evict on their own (the in-memory and database stores).
type Cleaner struct {
	pruners  []namedPruner
	cron     *cron.Cron
	log      *zap.Logger
	schedule string
}

type namedPruner struct {
	name string
	cache.Pruner
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

// WithSchedule overrides the cron specification for cache pruning.
func WithSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.schedule = spec
		}
	}
}

// WithPruner registers a store to prune. Nil pruners are ignored.
func WithPruner(name string, p cache.Pruner) Option {
	return func(cleaner *Cleaner) {
		if p != nil {
			cleaner.pruners = append(cleaner.pruners, namedPruner{name: name, Pruner: p})
		}
	}
}

// NewCleaner constructs a Cleaner. Without pruners Start is a no-op.
func NewCleaner(opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		schedule: defaultCacheSpec,
		log:      logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers the prune job and launches the scheduler.
func (c *Cleaner) Start() error {
	if len(c.pruners) == 0 {
		return nil
	}

	if _, err := c.cron.AddFunc(c.schedule, func() {
		if err := c.RunOnce(context.Background()); err != nil {
			c.log.Warn("cache cleanup failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce prunes every registered store. A failing store does not stop the others.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	for _, p := range c.pruners {
		removed, err := p.PruneExpired(ctx)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("prune %s: %w", p.name, err))
			continue
		}
		if removed > 0 {
			c.log.Debug("pruned expired cache entries", zap.String("store", p.name), zap.Int64("removed", removed))
		}
	}
	return errs
}
