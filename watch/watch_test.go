package watch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// counter is a Detector whose token tests bump by hand.
type counter struct{ v atomic.Int64 }

func (c *counter) detect(context.Context) (int64, error) { return c.v.Load(), nil }

func TestOnChange_FiresOnVersionChange(t *testing.T) {
	var tok counter
	var reloads atomic.Int32
	w := New(tok.detect, Options{Interval: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.OnChange(ctx, func(context.Context) error {
		reloads.Add(1)
		return nil
	})

	time.Sleep(50 * time.Millisecond)
	tok.v.Store(1)
	time.Sleep(100 * time.Millisecond)
	if got := reloads.Load(); got != 1 {
		t.Fatalf("expected 1 reload, got %d", got)
	}

	tok.v.Store(2)
	time.Sleep(100 * time.Millisecond)
	if got := reloads.Load(); got != 2 {
		t.Fatalf("expected 2 reloads, got %d", got)
	}

	// No bump, no reload.
	time.Sleep(100 * time.Millisecond)
	if got := reloads.Load(); got != 2 {
		t.Fatalf("expected still 2, got %d", got)
	}
	if w.Version() != 2 {
		t.Fatalf("version = %d, want 2", w.Version())
	}
}

func TestOnChange_Debounce(t *testing.T) {
	var tok counter
	var reloads atomic.Int32
	w := New(tok.detect, Options{Interval: 20 * time.Millisecond, Debounce: 150 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.OnChange(ctx, func(context.Context) error {
		reloads.Add(1)
		return nil
	})

	time.Sleep(50 * time.Millisecond)
	for i := int64(1); i <= 5; i++ {
		tok.v.Store(i)
		time.Sleep(15 * time.Millisecond)
	}
	if got := reloads.Load(); got != 0 {
		t.Fatalf("expected 0 reloads during debounce, got %d", got)
	}

	time.Sleep(300 * time.Millisecond)
	if got := reloads.Load(); got != 1 {
		t.Fatalf("expected exactly 1 debounced reload, got %d", got)
	}
}

func TestOnChange_ErrorDoesNotAdvanceVersion(t *testing.T) {
	var tok counter
	var calls atomic.Int32
	w := New(tok.detect, Options{Interval: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.OnChange(ctx, func(context.Context) error {
		if calls.Add(1) == 1 {
			return errors.New("reload failed")
		}
		return nil
	})

	time.Sleep(50 * time.Millisecond)
	tok.v.Store(1)
	time.Sleep(150 * time.Millisecond)

	if got := calls.Load(); got < 2 {
		t.Fatalf("expected a retry after the failed reload, got %d calls", got)
	}
	if v := w.Version(); v != 1 {
		t.Fatalf("expected version 1, got %d", v)
	}
	if s := w.Stats(); s.Reloads != 1 || s.Errors < 1 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestSeedSuppressesOwnChange(t *testing.T) {
	var tok counter
	var reloads atomic.Int32
	w := New(tok.detect, Options{Interval: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.OnChange(ctx, func(context.Context) error {
		reloads.Add(1)
		return nil
	})

	time.Sleep(50 * time.Millisecond)
	tok.v.Store(7)
	w.Seed(7)
	time.Sleep(100 * time.Millisecond)
	if got := reloads.Load(); got != 0 {
		t.Fatalf("seeded version must not reload, got %d", got)
	}
}
