package view

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/godilite/sentiment-sync/internal/bus"
	"github.com/godilite/sentiment-sync/internal/domain"
)

// Topbar shows aggregate counts over the reconciled ticket set.
type Topbar struct {
	base
	store TicketLister
}

func NewTopbar(b Bus, store TicketLister, logger *zap.Logger) *Topbar {
	if b == nil || store == nil {
		panic("topbar dependencies cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Topbar{store: store}
	t.init(KindTopbar, b, logger)
	return t
}

func (t *Topbar) Mount(ctx context.Context) error {
	if err := t.markMounted(); err != nil {
		return err
	}
	reload := func(ctx context.Context, _ bus.Envelope) error { return t.Refresh(ctx) }
	t.on(bus.EventSentimentUpdated, reload)
	t.on(bus.EventAnalysisComplete, reload)
	t.onBacklog(reload)

	t.guard("mount", func() error { return t.Refresh(ctx) })
	return nil
}

// Refresh recounts from the store. While a backlog pass runs the
// placeholder stays up and nothing is read.
func (t *Topbar) Refresh(ctx context.Context) error {
	t.refresh.Lock()
	defer t.refresh.Unlock()

	if t.isPaused() {
		return nil
	}
	tickets, err := t.store.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list unsolved tickets: %w", err)
	}
	summary := Summarize(tickets)

	t.update(func(s *Snapshot) {
		s.Status = StatusReady
		s.Message = ""
		s.Summary = &summary
	})
	return nil
}

// Summarize counts tickets per category and band. Unscored tickets only
// count toward Total and Unscored.
func Summarize(tickets []domain.Ticket) Summary {
	s := Summary{
		Total:  len(tickets),
		Counts: make(map[domain.Category]int, len(domain.Categories)),
		Bands:  make(map[domain.Band]int),
	}
	for _, c := range domain.Categories {
		s.Counts[c] = 0
	}
	for _, t := range tickets {
		if !t.HasScore() {
			s.Unscored++
			continue
		}
		s.Counts[domain.Categorize(*t.Score)]++
		s.Bands[domain.BandOf(*t.Score)]++
	}
	return s
}
