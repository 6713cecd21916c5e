package collector

import (
	"context"
	"errors"
	"time"

	"github.com/hazyhaar/schemawatch/watch"
)

// watchExternal rebuilds the fingerprint cache when another process writes
// the database. The store holds a single connection, so PRAGMA
// data_version only moves on foreign writes.
func (c *Collector) watchExternal(ctx context.Context, interval time.Duration) {
	w := watch.New(func(ctx context.Context) (int64, error) {
		if !c.queue.Ready() {
			return 0, errNotReady
		}
		return c.store.DataVersion(ctx)
	}, watch.Options{Interval: interval, Logger: c.logger})

	if err := c.WaitReady(ctx); err != nil {
		return
	}
	w.OnChange(ctx, c.reload)
}

var errNotReady = errors.New("collector: store not ready")

// reload replaces the fingerprint cache with the store's view.
func (c *Collector) reload(ctx context.Context) error {
	fps, err := c.store.Fingerprints(ctx)
	if err != nil {
		return err
	}
	c.detector().Load(fps)
	c.logger.Info("collector: reloaded after external change", "operations", len(fps))
	return nil
}
