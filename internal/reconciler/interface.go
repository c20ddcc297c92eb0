package reconciler

import (
	"context"

	"github.com/godilite/sentiment-sync/internal/bus"
	"github.com/godilite/sentiment-sync/internal/domain"
	"github.com/godilite/sentiment-sync/internal/platform"
	"github.com/godilite/sentiment-sync/internal/scoring"
	"github.com/godilite/sentiment-sync/internal/service"
)

// Platform is the live ticket source.
type Platform interface {
	SearchUnsolved(ctx context.Context, q platform.UnsolvedQuery) (platform.SearchPage, error)
	Ticket(ctx context.Context, id string) (domain.Ticket, error)
	Comments(ctx context.Context, ticketID string) ([]domain.Comment, error)
	LatestComment(ctx context.Context, ticketID string) (domain.Comment, bool, error)
	CountUnsolved(ctx context.Context) (int, error)
	LatestTicket(ctx context.Context) (domain.Ticket, bool, error)
}

// Backend is the remote cache kept by the scoring service.
type Backend interface {
	CheckNamespace(ctx context.Context) (bool, error)
	GetCachedUnsolvedTickets(ctx context.Context, cursor string) (scoring.CachePage, error)
	RemoveTicket(ctx context.Context, ticketID string) error
}

type Analyzer interface {
	AnalyzeTicket(ctx context.Context, ticketID string, comments []domain.Comment) (service.Analysis, error)
}

// Store is the local shadow copy views read from.
type Store interface {
	Upsert(ctx context.Context, t domain.Ticket) error
	// Get returns domain.ErrNotFound for tickets not in the store.
	Get(ctx context.Context, id string) (domain.Ticket, error)
	Delete(ctx context.Context, id string) error
	IDs(ctx context.Context) ([]string, error)
}

// Notifier sends signals to the other views.
type Notifier interface {
	Trigger(ctx context.Context, event bus.Event, payload any) error
}
