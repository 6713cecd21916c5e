// Package store persists operation snapshots and collector bookkeeping.
//
// A Store wraps a lazily opened Backend and runs every call under
// dbopen.Retry. When the backend reports ErrClosed the cached handle is
// dropped, the OnClosed hook fires, and the next call reconnects.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/hazyhaar/schemawatch/dbopen"
)

var (
	// ErrClosed is reported by a Backend whose connection is gone. The
	// Store reconnects on next use.
	ErrClosed = errors.New("store: connection closed")
	// ErrShutdown is returned by every call after Close.
	ErrShutdown = errors.New("store: shut down")
)

// Backend is one open connection to the two tables.
type Backend interface {
	Get(ctx context.Context, name string) (*Spec, error)
	Put(ctx context.Context, spec *Spec) error
	All(ctx context.Context) ([]*Spec, error)
	Clear(ctx context.Context) error
	Fingerprints(ctx context.Context) (map[string]string, error)
	Count(ctx context.Context) (int, error)
	GetMeta(ctx context.Context, key string) (string, bool, error)
	SetMeta(ctx context.Context, key, value string) error
	DataVersion(ctx context.Context) (int64, error)
	Close() error
}

// Opener establishes a Backend.
type Opener func(ctx context.Context) (Backend, error)

// OpError is returned once a call has exhausted its retry budget or hit a
// non-retryable failure.
type OpError struct {
	Op       string
	Key      string
	Attempts int
	Err      error
}

func (e *OpError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store: %s after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
	}
	return fmt.Sprintf("store: %s %s after %d attempt(s): %v", e.Op, e.Key, e.Attempts, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Classify names the failure class of a store error. The collector keys its
// log-once guard on it.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrShutdown):
		return "shutdown"
	case errors.Is(err, ErrClosed):
		return "closed"
	case errors.Is(err, ErrSchemaVersion):
		return "schema_version"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case dbopen.IsBusy(err):
		return "busy"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "constraint"):
		return "constraint"
	case strings.Contains(msg, "disk"), strings.Contains(msg, "i/o"), strings.Contains(msg, "readonly"):
		return "io"
	case strings.Contains(msg, "decode"), strings.Contains(msg, "encode"):
		return "codec"
	}
	return "unknown"
}

// Option configures a Store.
type Option func(*Store)

// WithPolicy overrides the retry policy. Default: dbopen.DefaultPolicy with
// ErrClosed and ErrShutdown treated as final.
func WithPolicy(p dbopen.Policy) Option { return func(s *Store) { s.policy = p } }

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.logger = l } }

// WithOnClosed registers a hook called once per dropped backend.
func WithOnClosed(fn func()) Option { return func(s *Store) { s.onClosed = fn } }

// WithOnRetry registers a hook called before each retry wait.
func WithOnRetry(fn func(op string, attempt int, err error)) Option {
	return func(s *Store) { s.onRetry = fn }
}

// Store is safe for concurrent use.
type Store struct {
	open     Opener
	policy   dbopen.Policy
	logger   *slog.Logger
	onClosed func()
	onRetry  func(op string, attempt int, err error)

	mu       sync.Mutex
	backend  Backend
	shutdown bool
}

// New returns a Store that opens its backend through open on first use.
func New(open Opener, opts ...Option) *Store {
	s := &Store{open: open, policy: dbopen.DefaultPolicy}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.policy.Retryable == nil {
		s.policy.Retryable = retryable
	}
	return s
}

func retryable(err error) bool {
	return !errors.Is(err, ErrClosed) && !errors.Is(err, ErrShutdown) && !errors.Is(err, ErrSchemaVersion)
}

// Connect opens the backend if it is not open yet.
func (s *Store) Connect(ctx context.Context) error {
	return s.do(ctx, "connect", "", func(context.Context, Backend) error { return nil })
}

// Get returns the snapshot for name, or nil when there is none.
func (s *Store) Get(ctx context.Context, name string) (*Spec, error) {
	var spec *Spec
	err := s.do(ctx, "get", name, func(ctx context.Context, b Backend) (err error) {
		spec, err = b.Get(ctx, name)
		return err
	})
	return spec, err
}

// Put upserts spec.
func (s *Store) Put(ctx context.Context, spec *Spec) error {
	return s.do(ctx, "put", spec.OperationName, func(ctx context.Context, b Backend) error {
		return b.Put(ctx, spec)
	})
}

// All returns every snapshot sorted by operation name.
func (s *Store) All(ctx context.Context) ([]*Spec, error) {
	var specs []*Spec
	err := s.do(ctx, "all", "", func(ctx context.Context, b Backend) (err error) {
		specs, err = b.All(ctx)
		return err
	})
	return specs, err
}

// Clear deletes every snapshot. Meta entries survive.
func (s *Store) Clear(ctx context.Context) error {
	return s.do(ctx, "clear", "", func(ctx context.Context, b Backend) error {
		return b.Clear(ctx)
	})
}

// Fingerprints returns operation name → fingerprint for every snapshot.
func (s *Store) Fingerprints(ctx context.Context) (map[string]string, error) {
	var fps map[string]string
	err := s.do(ctx, "fingerprints", "", func(ctx context.Context, b Backend) (err error) {
		fps, err = b.Fingerprints(ctx)
		return err
	})
	return fps, err
}

// Count returns the number of snapshots.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.do(ctx, "count", "", func(ctx context.Context, b Backend) (err error) {
		n, err = b.Count(ctx)
		return err
	})
	return n, err
}

// GetMeta returns the value stored under key.
func (s *Store) GetMeta(ctx context.Context, key string) (string, bool, error) {
	var (
		v  string
		ok bool
	)
	err := s.do(ctx, "get_meta", key, func(ctx context.Context, b Backend) (err error) {
		v, ok, err = b.GetMeta(ctx, key)
		return err
	})
	return v, ok, err
}

// SetMeta upserts key.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	return s.do(ctx, "set_meta", key, func(ctx context.Context, b Backend) error {
		return b.SetMeta(ctx, key, value)
	})
}

// DataVersion returns the backend's change counter without retrying.
func (s *Store) DataVersion(ctx context.Context) (int64, error) {
	b, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	v, err := b.DataVersion(ctx)
	if errors.Is(err, ErrClosed) {
		s.invalidate(b)
	}
	return v, err
}

// Close closes the cached backend. Later calls return ErrShutdown.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = true
	if s.backend == nil {
		return nil
	}
	err := s.backend.Close()
	s.backend = nil
	return err
}

func (s *Store) do(ctx context.Context, op, key string, fn func(context.Context, Backend) error) error {
	p := s.policy
	p.OnRetry = func(attempt int, err error) {
		s.logger.Debug("store: retrying", "op", op, "key", key, "attempt", attempt, "error", err)
		if s.onRetry != nil {
			s.onRetry(op, attempt, err)
		}
	}
	attempts, err := dbopen.Retry(ctx, p, func(ctx context.Context) error {
		b, err := s.conn(ctx)
		if err != nil {
			return err
		}
		err = fn(ctx, b)
		if errors.Is(err, ErrClosed) {
			s.invalidate(b)
		}
		return err
	})
	if err != nil {
		return &OpError{Op: op, Key: key, Attempts: attempts, Err: err}
	}
	return nil
}

func (s *Store) conn(ctx context.Context) (Backend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return nil, ErrShutdown
	}
	if s.backend != nil {
		return s.backend, nil
	}
	b, err := s.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	s.backend = b
	s.logger.Debug("store: connected")
	return b, nil
}

// invalidate drops b if it is still the cached backend.
func (s *Store) invalidate(b Backend) {
	s.mu.Lock()
	if s.backend != b {
		s.mu.Unlock()
		return
	}
	s.backend = nil
	s.mu.Unlock()

	b.Close()
	s.logger.Warn("store: backend closed, will reconnect")
	if s.onClosed != nil {
		s.onClosed()
	}
}
