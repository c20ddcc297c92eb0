package view_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/godilite/sentiment-sync/internal/bus"
	"github.com/godilite/sentiment-sync/internal/view"
	"github.com/godilite/sentiment-sync/internal/view/mocks"
)

func TestBackground_RunsReconcilerAndForwardsSaves(t *testing.T) {
	hub := bus.NewMemoryHub()
	b := startBus(t, hub)
	sidebar := startBus(t, hub)

	runner := &mocks.MockRunner{
		HandleTicketSavedFunc: func(ctx context.Context, p bus.TicketPayload) error {
			if p.TicketID == "bad" {
				return errors.New("ticket vanished")
			}
			return nil
		},
	}
	bg := view.NewBackground(b, runner, zap.NewNop())
	require.NoError(t, bg.Mount(context.Background()))

	assert.Eventually(t, func() bool {
		return bg.Snapshot().Status == view.StatusReady
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "ready", bg.Snapshot().Sync.State)

	require.NoError(t, sidebar.Trigger(context.Background(), bus.EventTicketSaved, bus.TicketPayload{TicketID: "bad"}))
	require.NoError(t, sidebar.Trigger(context.Background(), bus.EventTicketSaved, bus.TicketPayload{TicketID: "12", Status: "solved"}))

	assert.Eventually(t, func() bool { return len(runner.Saved()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, bus.TicketPayload{TicketID: "12", Status: "solved"}, runner.Saved()[1])
	assert.Equal(t, view.StatusReady, bg.Snapshot().Status, "a failed save is not a view error")

	done := make(chan struct{})
	go func() {
		bg.Unmount()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("unmount did not stop the runner")
	}
}

func TestBackground_AppliesForeignScores(t *testing.T) {
	hub := bus.NewMemoryHub()
	b := startBus(t, hub)
	sidebar := startBus(t, hub)

	runner := &mocks.MockRunner{
		ApplyScoreFunc: func(ctx context.Context, p bus.TicketPayload) error {
			if p.TicketID == "404" {
				return errors.New("ticket not found")
			}
			return nil
		},
	}
	bg := view.NewBackground(b, runner, zap.NewNop())
	require.NoError(t, bg.Mount(context.Background()))
	t.Cleanup(bg.Unmount)

	require.NoError(t, sidebar.Trigger(context.Background(), bus.EventSentimentUpdated, bus.TicketPayload{TicketID: "404", Status: "open", Score: 0.3}))
	require.NoError(t, sidebar.Trigger(context.Background(), bus.EventSentimentUpdated, bus.TicketPayload{TicketID: "7", Status: "open", Score: -0.4}))

	assert.Eventually(t, func() bool { return len(runner.Applied()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, bus.TicketPayload{TicketID: "7", Status: "open", Score: -0.4}, runner.Applied()[1])
	assert.Empty(t, runner.Saved())
	assert.NotEqual(t, view.StatusError, bg.Snapshot().Status)
}
