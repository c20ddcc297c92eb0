package service

import (
	"context"
	"time"

	"github.com/godilite/sentiment-sync/internal/domain"
)

// VectorStore is the scoring backend as the analyzer sees it.
type VectorStore interface {
	ListVectors(ctx context.Context, ticketID string) ([]domain.VectorRecord, error)
	SubmitForScoring(ctx context.Context, ticketID string, comments []domain.Comment) error
	GetScore(ctx context.Context, ticketIDs ...string) (float64, error)
	GetScoresBulk(ctx context.Context, ticketIDs []string) (map[string]float64, error)
}

// RequesterHistory lists a requester's tickets for rolling-window scores.
type RequesterHistory interface {
	RequesterTicketIDsSince(ctx context.Context, requesterID string, since time.Time) ([]string, error)
}
