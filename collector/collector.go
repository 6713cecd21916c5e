// Package collector observes GraphQL calls made through an http.RoundTripper,
// infers a schema for each operation and keeps one snapshot per operation
// name in SQLite.
//
// Usage:
//
//	c, err := collector.New(cfg)
//	c.Start(ctx)
//	defer c.Close()
//	client := &http.Client{Transport: c.Transport(http.DefaultTransport)}
//
// Captures made before the store is ready are buffered and drained in
// arrival order once it is. Nothing in the capture path returns an error
// into, or alters the result of, the intercepted call.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hazyhaar/schemawatch/collector/internal/detect"
	"github.com/hazyhaar/schemawatch/collector/internal/ingest"
	"github.com/hazyhaar/schemawatch/collector/internal/store"
	"github.com/hazyhaar/schemawatch/dbopen"
)

// OperationSpec is the persisted snapshot of one operation.
type OperationSpec = store.Spec

// MetaLastExport is the meta key recording the last export time.
const MetaLastExport = "lastExport"

var (
	// ErrClosed is returned by API calls after Close.
	ErrClosed = errors.New("collector: closed")
	// ErrNotFound is returned for operations that have no snapshot.
	ErrNotFound = errors.New("collector: operation not found")
)

// Status summarises the corpus.
type Status struct {
	Count       int    `json:"count"`
	CachedCount int    `json:"cached_count"`
	LastExport  string `json:"last_export,omitempty"`
	Ready       bool   `json:"ready"`
	Queued      int    `json:"queued"`
}

// Option configures a Collector.
type Option func(*Collector)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(c *Collector) { c.logger = l } }

// WithOpener replaces the SQLite backend opener.
func WithOpener(open store.Opener) Option { return func(c *Collector) { c.opener = open } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(c *Collector) { c.now = now } }

// WithRegistry registers the collector metrics on reg instead of a private
// registry.
func WithRegistry(reg *prometheus.Registry) Option { return func(c *Collector) { c.registry = reg } }

// Collector is the capture service. Construct it with New.
type Collector struct {
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
	opener   store.Opener
	registry *prometheus.Registry
	match    *regexp.Regexp

	store   *store.Store
	queue   *ingest.Queue[*OperationSpec]
	sched   *scheduler
	locks   *keyLock
	metrics *metrics
	events  *broadcaster

	stateMu sync.RWMutex
	cache   *detect.Cache
	guard   *cache.Cache

	readyMu sync.Mutex
	readyCh chan struct{}

	sizeLog   rate.Sometimes
	reconnect chan struct{}

	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool
	closed  atomic.Bool
	wg      sync.WaitGroup
}

// New builds a Collector in the NotReady state. Call Start to open the
// store.
func New(cfg Config, opts ...Option) (*Collector, error) {
	cfg.applyDefaults()
	match, err := regexp.Compile(cfg.Match)
	if err != nil {
		return nil, fmt.Errorf("collector: match pattern: %w", err)
	}

	c := &Collector{
		cfg:       cfg,
		match:     match,
		queue:     ingest.New[*OperationSpec](),
		sched:     newScheduler(cfg.QueueSize, cfg.IdleTimeout),
		locks:     newKeyLock(),
		events:    newBroadcaster(),
		cache:     detect.New(),
		guard:     newGuard(),
		readyCh:   make(chan struct{}),
		sizeLog:   rate.Sometimes{Interval: time.Minute},
		reconnect: make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.opener == nil {
		c.opener = store.SQLiteOpener(cfg.DB)
	}
	if c.registry == nil {
		c.registry = prometheus.NewRegistry()
	}
	c.metrics = newMetrics(c.registry, c)
	c.ctx, c.cancel = context.WithCancel(context.Background())

	c.store = store.New(c.opener,
		store.WithLogger(c.logger),
		store.WithPolicy(dbopen.Policy{Attempts: cfg.Retry.Attempts, BaseDelay: cfg.Retry.BaseDelay}),
		store.WithOnRetry(func(string, int, error) { c.metrics.retries.Inc() }),
		store.WithOnClosed(c.storeClosed),
	)
	return c, nil
}

// Config returns the effective configuration.
func (c *Collector) Config() Config { return c.cfg }

// Gatherer exposes the collector metrics.
func (c *Collector) Gatherer() prometheus.Gatherer { return c.registry }

// Start launches the scheduler, brings the store up in the background and
// starts the reload loop. It returns immediately; use WaitReady to block.
func (c *Collector) Start(ctx context.Context) {
	if c.closed.Load() || !c.started.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	context.AfterFunc(c.ctx, cancel)

	c.sched.start(c.cfg.Workers)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()

	if c.cfg.Reload.Interval > 0 {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.watchExternal(ctx, c.cfg.Reload.Interval)
		}()
	}
	c.logger.Info("collector: started", "db", c.cfg.DB, "match", c.cfg.Match)
}

// WaitReady blocks until the store is ready or ctx is done.
func (c *Collector) WaitReady(ctx context.Context) error {
	for {
		if c.closed.Load() {
			return ErrClosed
		}
		c.readyMu.Lock()
		ch := c.readyCh
		c.readyMu.Unlock()
		select {
		case <-ch:
			if c.queue.Ready() {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		case <-c.ctx.Done():
			return ErrClosed
		}
	}
}

// Ready reports whether captures go straight to the store.
func (c *Collector) Ready() bool { return c.queue.Ready() }

// Close stops background work and closes the store. Buffered captures that
// were never drained are lost.
func (c *Collector) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.cancel()
	c.sched.stop()
	c.wg.Wait()
	c.events.close()
	if n := c.queue.Len(); n > 0 {
		c.logger.Warn("collector: closing with undrained captures", "count", n)
	}
	return c.store.Close()
}

// run keeps the store up: it connects, drains, and reconnects whenever the
// backend reports closure.
func (c *Collector) run(ctx context.Context) {
	c.connect(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.reconnect:
			c.connect(ctx)
		}
	}
}

func (c *Collector) connect(ctx context.Context) {
	for {
		err := c.becomeReady(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}
		c.logger.Warn("collector: store not ready", "error", err, "retry_in", c.cfg.Retry.Reconnect)
		t := time.NewTimer(c.cfg.Retry.Reconnect)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// becomeReady loads the fingerprint cache from the store, drains the
// startup buffer in arrival order and switches the queue to Ready.
func (c *Collector) becomeReady(ctx context.Context) error {
	if c.queue.Ready() {
		return nil
	}
	if err := c.store.Connect(ctx); err != nil {
		return err
	}
	fps, err := c.store.Fingerprints(ctx)
	if err != nil {
		return err
	}
	c.detector().Load(fps)

	n, err := c.queue.MarkReady(func(spec *OperationSpec) error {
		_, err := c.persist(ctx, spec)
		if errors.Is(err, store.ErrClosed) || errors.Is(err, store.ErrShutdown) || ctx.Err() != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("collector: drain after %d: %w", n, err)
	}

	c.readyMu.Lock()
	select {
	case <-c.readyCh:
	default:
		close(c.readyCh)
	}
	c.readyMu.Unlock()
	c.logger.Info("collector: store ready", "operations", len(fps), "drained", n)
	return nil
}

// storeClosed runs when the backend reports closure: captures are routed
// back to the buffer until the reconnect loop drains it again.
func (c *Collector) storeClosed() {
	c.queue.Reset()
	c.readyMu.Lock()
	select {
	case <-c.readyCh:
		c.readyCh = make(chan struct{})
	default:
	}
	c.readyMu.Unlock()
	select {
	case c.reconnect <- struct{}{}:
	default:
	}
}

func (c *Collector) detector() *detect.Cache {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.cache
}

func (c *Collector) logGuard() *cache.Cache {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.guard
}

func newGuard() *cache.Cache {
	return cache.New(cache.NoExpiration, 0)
}

// record runs the write path for one composed snapshot: change detection,
// then the buffer or the store, then the cache update. Writes for the same
// operation are serialized.
func (c *Collector) record(ctx context.Context, spec *OperationSpec) string {
	unlock := c.locks.Lock(spec.OperationName)
	defer unlock()

	if !c.detector().ShouldPersist(spec.OperationName, spec.ContentFingerprint) {
		return outcomeUnchanged
	}
	if c.queue.Offer(spec) {
		c.logger.Debug("collector: buffered", "operation", spec.OperationName)
		return outcomeQueued
	}
	err := c.write(ctx, spec)
	if errors.Is(err, store.ErrClosed) {
		// The closed hook has reset the queue; buffer for the next drain.
		if c.queue.Offer(spec) {
			return outcomeQueued
		}
		err = c.write(ctx, spec)
	}
	if err != nil {
		c.storeFailed(spec.OperationName, err)
		return outcomeStoreError
	}
	return outcomeStored
}

// persist is the drain path: same checks as record, without the buffer.
func (c *Collector) persist(ctx context.Context, spec *OperationSpec) (bool, error) {
	unlock := c.locks.Lock(spec.OperationName)
	defer unlock()
	if !c.detector().ShouldPersist(spec.OperationName, spec.ContentFingerprint) {
		return false, nil
	}
	if err := c.write(ctx, spec); err != nil {
		c.storeFailed(spec.OperationName, err)
		return false, err
	}
	return true, nil
}

// write must be called with the operation's key lock held.
func (c *Collector) write(ctx context.Context, spec *OperationSpec) error {
	if err := c.store.Put(ctx, spec); err != nil {
		return err
	}
	c.detector().Record(spec.OperationName, spec.ContentFingerprint)
	c.events.publish(Event{
		ID:          uuid.Must(uuid.NewV7()).String(),
		Operation:   spec.OperationName,
		Fingerprint: spec.ContentFingerprint,
		Endpoint:    spec.Endpoint,
		At:          spec.CollectedAt,
	})
	c.logger.Info("collector: operation stored", "operation", spec.OperationName, "fingerprint", spec.ContentFingerprint)
	return nil
}

// storeFailed logs a failed write once per (operation, failure class).
func (c *Collector) storeFailed(name string, err error) {
	class := store.Classify(err)
	if class == "closed" || class == "shutdown" || class == "canceled" {
		c.logger.Debug("collector: write deferred", "operation", name, "class", class)
		return
	}
	if c.logGuard().Add(name+"\x00"+class, struct{}{}, cache.NoExpiration) != nil {
		return
	}
	c.logger.Error("collector: operation not persisted", "operation", name, "class", class, "error", err)
}
