package mocks

import (
	"context"
	"errors"
	"sync"

	"github.com/goccy/go-json"

	"github.com/godilite/sentiment-sync/internal/platform"
)

// Invocation records one Host.Invoke call.
type Invocation struct {
	Action string
	Args   []any
}

// MockHost is a function-based platform.Host. Context defaults to
// HostCtx; Invoke calls are recorded.
type MockHost struct {
	HostCtx     platform.HostContext
	GetFunc     func(ctx context.Context, path string) (json.RawMessage, error)
	RequestFunc func(ctx context.Context, req platform.Request) (json.RawMessage, error)

	mu          sync.Mutex
	requests    []platform.Request
	invocations []Invocation
}

func (m *MockHost) Context(ctx context.Context) (platform.HostContext, error) {
	return m.HostCtx, nil
}

func (m *MockHost) Get(ctx context.Context, path string) (json.RawMessage, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, path)
	}
	return nil, errors.New("GetFunc not implemented")
}

func (m *MockHost) Request(ctx context.Context, req platform.Request) (json.RawMessage, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.RequestFunc != nil {
		return m.RequestFunc(ctx, req)
	}
	return nil, errors.New("RequestFunc not implemented")
}

func (m *MockHost) Invoke(ctx context.Context, action string, args ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invocations = append(m.invocations, Invocation{Action: action, Args: args})
	return nil
}

// Requests returns a copy of every request seen so far.
func (m *MockHost) Requests() []platform.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]platform.Request(nil), m.requests...)
}

func (m *MockHost) Invocations() []Invocation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Invocation(nil), m.invocations...)
}
