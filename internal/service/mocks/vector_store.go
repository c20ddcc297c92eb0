package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/godilite/sentiment-sync/internal/domain"
)

// Submission records one SubmitForScoring call.
type Submission struct {
	TicketID string
	Comments []domain.Comment
}

// MockVectorStore is a function-based VectorStore that records submissions.
type MockVectorStore struct {
	ListVectorsFunc      func(ctx context.Context, ticketID string) ([]domain.VectorRecord, error)
	SubmitForScoringFunc func(ctx context.Context, ticketID string, comments []domain.Comment) error
	GetScoreFunc         func(ctx context.Context, ticketIDs ...string) (float64, error)
	GetScoresBulkFunc    func(ctx context.Context, ticketIDs []string) (map[string]float64, error)

	mu          sync.Mutex
	submissions []Submission
}

func (m *MockVectorStore) ListVectors(ctx context.Context, ticketID string) ([]domain.VectorRecord, error) {
	if m.ListVectorsFunc != nil {
		return m.ListVectorsFunc(ctx, ticketID)
	}
	return nil, errors.New("ListVectorsFunc not implemented")
}

func (m *MockVectorStore) SubmitForScoring(ctx context.Context, ticketID string, comments []domain.Comment) error {
	m.mu.Lock()
	m.submissions = append(m.submissions, Submission{TicketID: ticketID, Comments: append([]domain.Comment(nil), comments...)})
	m.mu.Unlock()

	if m.SubmitForScoringFunc != nil {
		return m.SubmitForScoringFunc(ctx, ticketID, comments)
	}
	return nil
}

func (m *MockVectorStore) GetScore(ctx context.Context, ticketIDs ...string) (float64, error) {
	if m.GetScoreFunc != nil {
		return m.GetScoreFunc(ctx, ticketIDs...)
	}
	return 0, errors.New("GetScoreFunc not implemented")
}

func (m *MockVectorStore) GetScoresBulk(ctx context.Context, ticketIDs []string) (map[string]float64, error) {
	if m.GetScoresBulkFunc != nil {
		return m.GetScoresBulkFunc(ctx, ticketIDs)
	}
	return nil, errors.New("GetScoresBulkFunc not implemented")
}

func (m *MockVectorStore) Submissions() []Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Submission(nil), m.submissions...)
}

// MockRequesterHistory is a function-based RequesterHistory.
type MockRequesterHistory struct {
	RequesterTicketIDsSinceFunc func(ctx context.Context, requesterID string, since time.Time) ([]string, error)
}

func (m *MockRequesterHistory) RequesterTicketIDsSince(ctx context.Context, requesterID string, since time.Time) ([]string, error) {
	if m.RequesterTicketIDsSinceFunc != nil {
		return m.RequesterTicketIDsSinceFunc(ctx, requesterID, since)
	}
	return nil, errors.New("RequesterTicketIDsSinceFunc not implemented")
}
