package view

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/godilite/sentiment-sync/internal/bus"
	"github.com/godilite/sentiment-sync/internal/reconciler"
)

// Background has nothing to draw. It keeps the reconciler running and
// forwards ticket saves and scores computed by other views to it.
type Background struct {
	base
	runner Runner

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewBackground(b Bus, runner Runner, logger *zap.Logger) *Background {
	if b == nil || runner == nil {
		panic("background dependencies cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	bg := &Background{runner: runner}
	bg.init(KindBackground, b, logger)
	return bg
}

// Mount starts the reconciler on a context of its own that Unmount
// cancels.
func (g *Background) Mount(ctx context.Context) error {
	if err := g.markMounted(); err != nil {
		return err
	}
	g.on(bus.EventTicketSaved, g.onTicketSaved)
	g.on(bus.EventSentimentUpdated, g.onSentimentUpdated)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g.cancel = cancel
	g.setStatus(StatusLoading, "Synchronizing unsolved tickets")

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.guard("run", func() error { return g.runner.Run(runCtx) })
	}()
	return nil
}

func (g *Background) Unmount() {
	g.base.Unmount()
	if g.cancel != nil {
		g.cancel()
	}
	g.wg.Wait()
}

// Snapshot reports the reconciler state alongside the view status.
func (g *Background) Snapshot() Snapshot {
	snap := g.base.Snapshot()
	state := g.runner.State()
	snap.Sync = &SyncStatus{State: state.String()}
	if snap.Status == StatusLoading && state == reconciler.StateReady {
		snap.Status = StatusReady
		snap.Message = ""
	}
	return snap
}

func (g *Background) onTicketSaved(ctx context.Context, env bus.Envelope) error {
	var p bus.TicketPayload
	if err := env.Decode(&p); err != nil {
		return err
	}
	if err := g.runner.HandleTicketSaved(ctx, p); err != nil {
		// Per-ticket failures are logged, not shown.
		g.logger.Warn("ticket.saved not handled", zap.String("ticket_id", p.TicketID), zap.Error(err))
	}
	return nil
}

func (g *Background) onSentimentUpdated(ctx context.Context, env bus.Envelope) error {
	var p bus.TicketPayload
	if err := env.Decode(&p); err != nil {
		return err
	}
	if err := g.runner.ApplyScore(ctx, p); err != nil {
		g.logger.Warn("sentiment.updated not applied", zap.String("ticket_id", p.TicketID), zap.Error(err))
	}
	return nil
}
