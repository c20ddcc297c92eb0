package view

import (
	"context"

	"github.com/godilite/sentiment-sync/internal/bus"
	"github.com/godilite/sentiment-sync/internal/domain"
	"github.com/godilite/sentiment-sync/internal/reconciler"
	"github.com/godilite/sentiment-sync/internal/service"
)

// Controller is one mounted view.
type Controller interface {
	Kind() Kind
	Mount(ctx context.Context) error
	Unmount()
	Snapshot() Snapshot
}

// Bus is the part of the notification bus views use.
type Bus interface {
	Subscribe(event bus.Event, fn bus.Handler) bus.Subscription
	Unsubscribe(sub bus.Subscription)
	Trigger(ctx context.Context, event bus.Event, payload any) error
}

// TicketContext reads the ticket the host frame is showing.
type TicketContext interface {
	CurrentTicketID(ctx context.Context) (string, error)
	CurrentTicket(ctx context.Context) (domain.Ticket, error)
	CurrentComments(ctx context.Context) ([]domain.Comment, error)
	Resize(ctx context.Context, height string) error
}

type Scorer interface {
	AnalyzeTicket(ctx context.Context, ticketID string, comments []domain.Comment) (service.Analysis, error)
	RollingScore(ctx context.Context, requesterID string) (float64, error)
	ForgetRolling(ctx context.Context, requesterID string) error
	ScoresFor(ctx context.Context, tickets []domain.Ticket) ([]domain.Ticket, error)
}

// TicketLister reads the reconciled set of unsolved tickets.
type TicketLister interface {
	ListActive(ctx context.Context) ([]domain.Ticket, error)
}

// Runner is the reconciler as the background view drives it.
type Runner interface {
	Run(ctx context.Context) error
	State() reconciler.State
	HandleTicketSaved(ctx context.Context, p bus.TicketPayload) error
	ApplyScore(ctx context.Context, p bus.TicketPayload) error
}
