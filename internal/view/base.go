package view

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/godilite/sentiment-sync/internal/bus"
)

var ErrAlreadyMounted = errors.New("view already mounted")

// base carries what every controller shares: the snapshot, the bus
// subscriptions and the error boundary.
type base struct {
	kind   Kind
	bus    Bus
	logger *zap.Logger

	mu      sync.RWMutex
	snap    Snapshot
	subs    []bus.Subscription
	mounted bool
	paused  bool

	// serializes refreshes so a slow fetch never overwrites a newer one
	refresh sync.Mutex
}

func (b *base) init(kind Kind, bus Bus, logger *zap.Logger) {
	b.kind = kind
	b.bus = bus
	b.logger = logger.Named(string(kind))
	b.snap = Snapshot{Kind: kind, Status: StatusLoading, UpdatedAt: time.Now()}
}

func (b *base) Kind() Kind {
	return b.kind
}

func (b *base) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snap
}

// update applies fn to a copy of the snapshot and stores it.
func (b *base) update(fn func(s *Snapshot)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	next := b.snap
	fn(&next)
	next.Kind = b.kind
	next.Message = boundMessage(next.Message)
	next.UpdatedAt = time.Now()
	b.snap = next
}

func (b *base) setStatus(status Status, msg string) {
	b.update(func(s *Snapshot) {
		s.Status = status
		s.Message = msg
	})
}

func (b *base) fail(err error) {
	b.logger.Warn("view error", zap.Error(err))
	b.setStatus(StatusError, err.Error())
}

// markMounted flips the mounted flag once.
func (b *base) markMounted() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mounted {
		return ErrAlreadyMounted
	}
	b.mounted = true
	return nil
}

// on subscribes fn behind the error boundary.
func (b *base) on(event bus.Event, fn func(ctx context.Context, env bus.Envelope) error) {
	sub := b.bus.Subscribe(event, func(ctx context.Context, env bus.Envelope) {
		b.guard(string(event), func() error { return fn(ctx, env) })
	})
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
}

// Unmount drops every subscription. The last snapshot stays readable.
func (b *base) Unmount() {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mounted = false
	b.mu.Unlock()

	for _, sub := range subs {
		b.bus.Unsubscribe(sub)
	}
}

// guard runs fn and turns both its error and any panic into this view's
// error state.
func (b *base) guard(op string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("view panicked", zap.String("op", op), zap.Any("panic", r))
			b.setStatus(StatusError, fmt.Sprintf("%s view failed: %v", b.kind, r))
		}
	}()
	if err := fn(); err != nil {
		b.fail(err)
	}
}

// onBacklog shows the placeholder between backlog.paused and
// backlog.resumed, then reloads.
func (b *base) onBacklog(reload func(ctx context.Context, env bus.Envelope) error) {
	b.on(bus.EventBacklogPaused, func(context.Context, bus.Envelope) error {
		b.mu.Lock()
		b.paused = true
		b.mu.Unlock()
		b.setStatus(StatusPaused, PausedMessage)
		return nil
	})
	b.on(bus.EventBacklogResumed, func(ctx context.Context, env bus.Envelope) error {
		b.mu.Lock()
		b.paused = false
		b.mu.Unlock()
		return reload(ctx, env)
	})
}

func (b *base) isPaused() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.paused
}

func (b *base) trigger(ctx context.Context, event bus.Event, payload any) {
	if err := b.bus.Trigger(ctx, event, payload); err != nil {
		b.logger.Warn("trigger failed", zap.String("event", string(event)), zap.Error(err))
	}
}
