package mocks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/godilite/sentiment-sync/internal/bus"
	"github.com/godilite/sentiment-sync/internal/domain"
	"github.com/godilite/sentiment-sync/internal/reconciler"
	"github.com/godilite/sentiment-sync/internal/service"
)

type MockTicketContext struct {
	CurrentTicketIDFunc func(ctx context.Context) (string, error)
	CurrentTicketFunc   func(ctx context.Context) (domain.Ticket, error)
	CurrentCommentsFunc func(ctx context.Context) ([]domain.Comment, error)
	ResizeFunc          func(ctx context.Context, height string) error

	resizes atomic.Int32
}

func (m *MockTicketContext) CurrentTicketID(ctx context.Context) (string, error) {
	if m.CurrentTicketIDFunc != nil {
		return m.CurrentTicketIDFunc(ctx)
	}
	return "", errors.New("CurrentTicketIDFunc not implemented")
}

func (m *MockTicketContext) CurrentTicket(ctx context.Context) (domain.Ticket, error) {
	if m.CurrentTicketFunc != nil {
		return m.CurrentTicketFunc(ctx)
	}
	return domain.Ticket{}, errors.New("CurrentTicketFunc not implemented")
}

func (m *MockTicketContext) CurrentComments(ctx context.Context) ([]domain.Comment, error) {
	if m.CurrentCommentsFunc != nil {
		return m.CurrentCommentsFunc(ctx)
	}
	return nil, errors.New("CurrentCommentsFunc not implemented")
}

// Resize succeeds when ResizeFunc is nil.
func (m *MockTicketContext) Resize(ctx context.Context, height string) error {
	m.resizes.Add(1)
	if m.ResizeFunc != nil {
		return m.ResizeFunc(ctx, height)
	}
	return nil
}

func (m *MockTicketContext) Resizes() int {
	return int(m.resizes.Load())
}

type MockScorer struct {
	AnalyzeTicketFunc func(ctx context.Context, ticketID string, comments []domain.Comment) (service.Analysis, error)
	RollingScoreFunc  func(ctx context.Context, requesterID string) (float64, error)
	ForgetRollingFunc func(ctx context.Context, requesterID string) error
	ScoresForFunc     func(ctx context.Context, tickets []domain.Ticket) ([]domain.Ticket, error)

	forgotten atomic.Int32
}

func (m *MockScorer) AnalyzeTicket(ctx context.Context, ticketID string, comments []domain.Comment) (service.Analysis, error) {
	if m.AnalyzeTicketFunc != nil {
		return m.AnalyzeTicketFunc(ctx, ticketID, comments)
	}
	return service.Analysis{}, errors.New("AnalyzeTicketFunc not implemented")
}

func (m *MockScorer) RollingScore(ctx context.Context, requesterID string) (float64, error) {
	if m.RollingScoreFunc != nil {
		return m.RollingScoreFunc(ctx, requesterID)
	}
	return 0, errors.New("RollingScoreFunc not implemented")
}

// ForgetRolling succeeds when ForgetRollingFunc is nil.
func (m *MockScorer) ForgetRolling(ctx context.Context, requesterID string) error {
	m.forgotten.Add(1)
	if m.ForgetRollingFunc != nil {
		return m.ForgetRollingFunc(ctx, requesterID)
	}
	return nil
}

func (m *MockScorer) Forgotten() int {
	return int(m.forgotten.Load())
}

// ScoresFor returns its input unchanged when ScoresForFunc is nil.
func (m *MockScorer) ScoresFor(ctx context.Context, tickets []domain.Ticket) ([]domain.Ticket, error) {
	if m.ScoresForFunc != nil {
		return m.ScoresForFunc(ctx, tickets)
	}
	return tickets, nil
}

type MockTicketLister struct {
	ListActiveFunc func(ctx context.Context) ([]domain.Ticket, error)

	calls atomic.Int32
}

func (m *MockTicketLister) ListActive(ctx context.Context) ([]domain.Ticket, error) {
	m.calls.Add(1)
	if m.ListActiveFunc != nil {
		return m.ListActiveFunc(ctx)
	}
	return nil, errors.New("ListActiveFunc not implemented")
}

func (m *MockTicketLister) Calls() int {
	return int(m.calls.Load())
}

// MockRunner blocks in Run until its context ends.
type MockRunner struct {
	HandleTicketSavedFunc func(ctx context.Context, p bus.TicketPayload) error
	ApplyScoreFunc        func(ctx context.Context, p bus.TicketPayload) error

	state   atomic.Int32
	mu      sync.Mutex
	saved   []bus.TicketPayload
	applied []bus.TicketPayload
}

func (m *MockRunner) Run(ctx context.Context) error {
	m.state.Store(int32(reconciler.StateReady))
	<-ctx.Done()
	return nil
}

func (m *MockRunner) State() reconciler.State {
	return reconciler.State(m.state.Load())
}

func (m *MockRunner) HandleTicketSaved(ctx context.Context, p bus.TicketPayload) error {
	m.mu.Lock()
	m.saved = append(m.saved, p)
	m.mu.Unlock()
	if m.HandleTicketSavedFunc != nil {
		return m.HandleTicketSavedFunc(ctx, p)
	}
	return nil
}

func (m *MockRunner) Saved() []bus.TicketPayload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bus.TicketPayload(nil), m.saved...)
}

func (m *MockRunner) ApplyScore(ctx context.Context, p bus.TicketPayload) error {
	m.mu.Lock()
	m.applied = append(m.applied, p)
	m.mu.Unlock()
	if m.ApplyScoreFunc != nil {
		return m.ApplyScoreFunc(ctx, p)
	}
	return nil
}

func (m *MockRunner) Applied() []bus.TicketPayload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bus.TicketPayload(nil), m.applied...)
}
