package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler receives one envelope. Handlers for the same event run one after
// another in arrival order.
type Handler func(ctx context.Context, env Envelope)

// Subscription identifies a registered handler.
type Subscription struct {
	event Event
	id    uint64
}

type subscriber struct {
	id uint64
	fn Handler
}

// Bus layers local publish/subscribe over a cross-context Channel.
type Bus struct {
	origin  string
	channel Channel
	logger  *zap.Logger

	mu       sync.RWMutex
	handlers map[Event][]subscriber
	nextID   uint64
	cancel   context.CancelFunc
	started  bool

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New takes ownership of channel; Close closes it.
func New(channel Channel, logger *zap.Logger) *Bus {
	if channel == nil {
		panic("channel cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	origin := uuid.NewString()
	return &Bus{
		origin:   origin,
		channel:  channel,
		logger:   logger.Named("bus").With(zap.String("origin", origin)),
		handlers: make(map[Event][]subscriber),
	}
}

// Origin is this context's id, stamped on every envelope it sends.
func (b *Bus) Origin() string {
	return b.origin
}

func (b *Bus) Subscribe(event Event, fn Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.handlers[event] = append(b.handlers[event], subscriber{id: b.nextID, fn: fn})
	return Subscription{event: event, id: b.nextID}
}

// Unsubscribe is a no-op for unknown subscriptions.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[sub.event]
	for i, s := range subs {
		if s.id == sub.id {
			next := make([]subscriber, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			b.handlers[sub.event] = append(next, subs[i+1:]...)
			return
		}
	}
}

// Publish delivers to local subscribers only, synchronously.
func (b *Bus) Publish(ctx context.Context, event Event, payload any) error {
	env, err := newEnvelope(b.origin, event, payload)
	if err != nil {
		return err
	}
	b.dispatch(ctx, env)
	return nil
}

// Trigger sends to every other context over the channel. Local
// subscribers are not called.
func (b *Bus) Trigger(ctx context.Context, event Event, payload any) error {
	env, err := newEnvelope(b.origin, event, payload)
	if err != nil {
		return err
	}
	if err := b.channel.Send(ctx, env); err != nil {
		return fmt.Errorf("trigger %s: %w", event, err)
	}
	b.logger.Debug("triggered", zap.String("event", string(event)), zap.String("id", env.ID))
	return nil
}

// Start runs the bridge that re-publishes foreign envelopes locally. It
// returns immediately; calling it twice has no effect.
func (b *Bus) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return
	}
	b.started = true

	ctx, b.cancel = context.WithCancel(ctx)
	b.wg.Add(1)
	go b.bridge(ctx)
}

func (b *Bus) bridge(ctx context.Context) {
	defer b.wg.Done()

	in := b.channel.Receive()
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-in:
			if !ok {
				return
			}
			if env.Origin == b.origin {
				continue
			}
			b.dispatch(ctx, env)
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, env Envelope) {
	b.mu.RLock()
	subs := b.handlers[env.Event]
	b.mu.RUnlock()

	for _, s := range subs {
		b.call(ctx, s, env)
	}
}

func (b *Bus) call(ctx context.Context, s subscriber, env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panicked",
				zap.String("event", string(env.Event)),
				zap.Uint64("subscriber", s.id),
				zap.Any("panic", r))
		}
	}()
	s.fn(ctx, env)
}

// Close stops the bridge and closes the channel.
func (b *Bus) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		cancel := b.cancel
		b.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		err = b.channel.Close()
		b.wg.Wait()
	})
	return err
}
