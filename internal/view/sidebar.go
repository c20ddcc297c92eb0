package view

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/godilite/sentiment-sync/internal/bus"
	"github.com/godilite/sentiment-sync/internal/domain"
	"github.com/godilite/sentiment-sync/internal/service"
)

const sidebarHeight = "600px"

// Sidebar analyzes the ticket the agent has open.
type Sidebar struct {
	base
	tickets TicketContext
	scorer  Scorer
}

func NewSidebar(b Bus, tickets TicketContext, scorer Scorer, logger *zap.Logger) *Sidebar {
	if b == nil || tickets == nil || scorer == nil {
		panic("sidebar dependencies cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sidebar{tickets: tickets, scorer: scorer}
	s.init(KindSidebar, b, logger)
	return s
}

// Mount subscribes first so an update racing the first analysis is not
// lost, then analyzes.
func (s *Sidebar) Mount(ctx context.Context) error {
	if err := s.markMounted(); err != nil {
		return err
	}
	s.on(bus.EventTicketCommentCreated, s.onCommentCreated)
	s.on(bus.EventSentimentUpdated, s.onSentimentUpdated)

	s.guard("mount", func() error { return s.Refresh(ctx) })
	return nil
}

// Refresh runs the full analysis for the current ticket.
func (s *Sidebar) Refresh(ctx context.Context) error {
	s.refresh.Lock()
	defer s.refresh.Unlock()

	if _, err := s.tickets.CurrentTicketID(ctx); err != nil {
		return err
	}
	s.setStatus(StatusLoading, "Analyzing ticket sentiment...")

	ticket, err := s.tickets.CurrentTicket(ctx)
	if err != nil {
		return fmt.Errorf("load ticket: %w", err)
	}
	comments, err := s.tickets.CurrentComments(ctx)
	if err != nil {
		return fmt.Errorf("load comments: %w", err)
	}
	if len(comments) == 0 {
		s.setStatus(StatusReady, NoCommentsMsg)
		return nil
	}

	analysis, err := s.scorer.AnalyzeTicket(ctx, ticket.ID, comments)
	if err != nil {
		return err
	}
	model := &TicketSentiment{
		TicketID:  ticket.ID,
		Score:     analysis.Score,
		Band:      domain.BandOf(analysis.Score),
		Submitted: analysis.Submitted,
	}
	s.trigger(ctx, bus.EventSentimentUpdated, bus.TicketPayload{
		TicketID: ticket.ID,
		Status:   string(ticket.Status),
		Score:    analysis.Score,
	})

	if ticket.Requester != nil {
		if analysis.Submitted > 0 {
			if err := s.scorer.ForgetRolling(ctx, ticket.Requester.ID); err != nil {
				s.logger.Warn("stale rolling score kept", zap.String("requester_id", ticket.Requester.ID), zap.Error(err))
			}
		}
		rolling, err := s.scorer.RollingScore(ctx, ticket.Requester.ID)
		switch {
		case errors.Is(err, service.ErrMissingRequester):
		case err != nil:
			return fmt.Errorf("rolling score: %w", err)
		default:
			model.RollingScore = &rolling
			model.RollingBand = domain.BandOf(rolling)
		}
	}

	s.update(func(snap *Snapshot) {
		snap.Status = StatusReady
		snap.Message = ""
		snap.Ticket = model
	})
	s.trigger(ctx, bus.EventAnalysisComplete, bus.TicketPayload{TicketID: ticket.ID, Score: analysis.Score})

	if err := s.tickets.Resize(ctx, sidebarHeight); err != nil {
		s.logger.Warn("resize failed", zap.Error(err))
	}
	return nil
}

func (s *Sidebar) onCommentCreated(ctx context.Context, env bus.Envelope) error {
	var p bus.TicketPayload
	if len(env.Payload) > 0 {
		if err := env.Decode(&p); err != nil {
			return err
		}
	}
	if p.TicketID != "" {
		current, err := s.tickets.CurrentTicketID(ctx)
		if err != nil || current != p.TicketID {
			return nil
		}
	}
	return s.Refresh(ctx)
}

// onSentimentUpdated adopts a score computed elsewhere for the ticket on
// screen. It never re-analyzes or triggers.
func (s *Sidebar) onSentimentUpdated(ctx context.Context, env bus.Envelope) error {
	var p bus.TicketPayload
	if err := env.Decode(&p); err != nil {
		return err
	}
	if domain.TicketStatus(p.Status).IsTerminal() {
		return nil
	}
	s.update(func(snap *Snapshot) {
		if snap.Ticket == nil || snap.Ticket.TicketID != p.TicketID {
			return
		}
		t := *snap.Ticket
		t.Score = domain.Normalize(p.Score)
		t.Band = domain.BandOf(t.Score)
		snap.Ticket = &t
	})
	return nil
}
