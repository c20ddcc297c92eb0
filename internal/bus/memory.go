package bus

import (
	"context"
	"errors"
	"sync"
)

var ErrChannelClosed = errors.New("channel closed")

// MemoryHub fans envelopes out to every connected MemoryChannel. It stands
// in for the cross-context transport when all views share one process.
type MemoryHub struct {
	mu      sync.Mutex
	peers   map[*MemoryChannel]struct{}
	dropped int
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{peers: make(map[*MemoryChannel]struct{})}
}

// Connect attaches a new channel to the hub.
func (h *MemoryHub) Connect() *MemoryChannel {
	h.mu.Lock()
	defer h.mu.Unlock()

	c := &MemoryChannel{hub: h, ch: make(chan Envelope, receiveBuffer)}
	h.peers[c] = struct{}{}
	return c
}

// Dropped counts envelopes lost to full receivers.
func (h *MemoryHub) Dropped() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

func (h *MemoryHub) broadcast(env Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for p := range h.peers {
		select {
		case p.ch <- env:
		default:
			h.dropped++
		}
	}
}

// MemoryChannel is one context's end of a MemoryHub.
type MemoryChannel struct {
	hub    *MemoryHub
	ch     chan Envelope
	closed bool
}

func (c *MemoryChannel) Send(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.hub.mu.Lock()
	closed := c.closed
	c.hub.mu.Unlock()
	if closed {
		return ErrChannelClosed
	}

	c.hub.broadcast(env)
	return nil
}

func (c *MemoryChannel) Receive() <-chan Envelope {
	return c.ch
}

func (c *MemoryChannel) Close() error {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	delete(c.hub.peers, c)
	close(c.ch)
	return nil
}
