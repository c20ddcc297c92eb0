package reconciler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/godilite/sentiment-sync/internal/bus"
	"github.com/godilite/sentiment-sync/internal/domain"
)

// HandleTicketSaved reacts to a platform save. Solved and closed tickets are
// evicted for the rest of the session; anything else is re-analyzed when
// its newest comment came from the end user.
func (r *Reconciler) HandleTicketSaved(ctx context.Context, p bus.TicketPayload) error {
	if p.TicketID == "" {
		return fmt.Errorf("ticket.saved without ticket id")
	}

	status := domain.TicketStatus(p.Status)
	var ticket *domain.Ticket
	if status == "" {
		t, err := r.platform.Ticket(ctx, p.TicketID)
		if err != nil {
			return fmt.Errorf("load ticket %s: %w", p.TicketID, err)
		}
		ticket, status = &t, t.Status
	}

	if status.IsTerminal() {
		r.evict(ctx, p.TicketID, status)
		return nil
	}

	if r.clearTombstone(p.TicketID) {
		r.logger.Info("ticket reopened", zap.String("ticket_id", p.TicketID))
	}

	latest, ok, err := r.platform.LatestComment(ctx, p.TicketID)
	if err != nil {
		return fmt.Errorf("latest comment of %s: %w", p.TicketID, err)
	}
	if !ok || !latest.IsEndUser() {
		return nil
	}

	if ticket == nil {
		t, err := r.platform.Ticket(ctx, p.TicketID)
		if err != nil {
			return fmt.Errorf("load ticket %s: %w", p.TicketID, err)
		}
		ticket = &t
	}

	comments, err := r.platform.Comments(ctx, p.TicketID)
	if err != nil {
		return fmt.Errorf("comments of %s: %w", p.TicketID, err)
	}
	analysis, err := r.analyzer.AnalyzeTicket(ctx, p.TicketID, comments)
	if err != nil {
		return err
	}
	stored, err := r.upsertLive(ctx, ticket.WithScore(analysis.Score))
	if err != nil || !stored {
		return err
	}

	if err := r.notifier.Trigger(ctx, bus.EventSentimentUpdated, bus.TicketPayload{
		TicketID: p.TicketID,
		Status:   string(ticket.Status),
		Score:    analysis.Score,
	}); err != nil {
		r.logger.Warn("sentiment.updated not sent", zap.Error(err))
	}
	return nil
}

// ApplyScore writes a score another view computed into the store, so list
// views that re-read it see the new value. Terminal and evicted tickets are
// ignored. Once written, analysis.complete tells the list views to reload.
func (r *Reconciler) ApplyScore(ctx context.Context, p bus.TicketPayload) error {
	if p.TicketID == "" {
		return fmt.Errorf("sentiment.updated without ticket id")
	}
	if domain.TicketStatus(p.Status).IsTerminal() || r.isTombstoned(p.TicketID) {
		return nil
	}

	t, err := r.store.Get(ctx, p.TicketID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		t, err = r.platform.Ticket(ctx, p.TicketID)
		if err != nil {
			return fmt.Errorf("load ticket %s: %w", p.TicketID, err)
		}
		if t.Status.IsTerminal() {
			return nil
		}
	case err != nil:
		return err
	case t.HasScore() && *t.Score == domain.Normalize(p.Score):
		return nil
	}
	if p.Status != "" {
		t.Status = domain.TicketStatus(p.Status)
	}

	stored, err := r.upsertLive(ctx, t.WithScore(p.Score))
	if err != nil || !stored {
		return err
	}

	r.logger.Debug("score applied", zap.String("ticket_id", p.TicketID), zap.Float64("score", p.Score))
	if err := r.notifier.Trigger(ctx, bus.EventAnalysisComplete, bus.TicketPayload{
		TicketID: p.TicketID,
		Status:   string(t.Status),
		Score:    p.Score,
	}); err != nil {
		r.logger.Warn("analysis.complete not sent", zap.Error(err))
	}
	return nil
}

// upsertLive writes t unless it has been evicted. The tombstone check and
// the write happen under the same lock evict takes, so an eviction cannot
// slip in between them.
func (r *Reconciler) upsertLive(ctx context.Context, t domain.Ticket) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, evicted := r.tombstones[t.ID]; evicted {
		return false, nil
	}
	if err := r.store.Upsert(ctx, t); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Reconciler) evict(ctx context.Context, id string, status domain.TicketStatus) {
	r.mu.Lock()
	_, already := r.tombstones[id]
	r.tombstones[id] = struct{}{}
	r.mu.Unlock()

	if err := r.store.Delete(ctx, id); err != nil {
		r.logger.Warn("evicting from store failed", zap.String("ticket_id", id), zap.Error(err))
	}
	if already {
		return
	}

	// Best effort: evicted vectors are never queried again.
	if err := r.backend.RemoveTicket(ctx, id); err != nil {
		r.logger.Warn("remote purge failed", zap.String("ticket_id", id), zap.Error(err))
	}

	r.logger.Info("ticket evicted", zap.String("ticket_id", id))
	if err := r.notifier.Trigger(ctx, bus.EventSentimentUpdated, bus.TicketPayload{TicketID: id, Status: string(status)}); err != nil {
		r.logger.Warn("sentiment.updated not sent", zap.Error(err))
	}
}

// clearTombstone reports whether id had been evicted.
func (r *Reconciler) clearTombstone(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tombstones[id]
	delete(r.tombstones, id)
	return ok
}
