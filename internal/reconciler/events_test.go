package reconciler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godilite/sentiment-sync/internal/bus"
	"github.com/godilite/sentiment-sync/internal/domain"
)

func TestHandleTicketSaved_EvictionIsOneWay(t *testing.T) {
	p := newFakePlatform(makeTickets(1, 3))
	h := newHarness(t, p, &fakeBackend{})
	_, _ = h.rec.Refresh(context.Background())
	require.Equal(t, 3, h.store.len())
	h.notifier.events = nil

	p.setStatus("2", domain.StatusSolved)
	require.NoError(t, h.rec.HandleTicketSaved(context.Background(), bus.TicketPayload{TicketID: "2", Status: "solved"}))

	_, ok := h.store.get("2")
	assert.False(t, ok)
	assert.Equal(t, []string{"2"}, h.backend.removedIDs())
	assert.Equal(t, []bus.Event{bus.EventSentimentUpdated}, h.notifier.names())

	// Same terminal save again: nothing comes back, nothing is purged twice.
	require.NoError(t, h.rec.HandleTicketSaved(context.Background(), bus.TicketPayload{TicketID: "2", Status: "solved"}))
	_, ok = h.store.get("2")
	assert.False(t, ok)
	assert.Len(t, h.backend.removedIDs(), 1)

	// A later backfill that still sees the ticket does not re-add it.
	p.setStatus("2", domain.StatusOpen)
	res, _ := h.rec.Refresh(context.Background())
	assert.Equal(t, 1, res.Skipped)
	_, ok = h.store.get("2")
	assert.False(t, ok)
}

func TestHandleTicketSaved_StatusFromPlatform(t *testing.T) {
	p := newFakePlatform(makeTickets(1, 1))
	p.setStatus("1", domain.StatusClosed)
	h := newHarness(t, p, &fakeBackend{})

	require.NoError(t, h.rec.HandleTicketSaved(context.Background(), bus.TicketPayload{TicketID: "1"}))
	assert.Equal(t, []string{"1"}, h.backend.removedIDs())
}

func TestHandleTicketSaved_EndUserCommentReanalyzes(t *testing.T) {
	p := newFakePlatform(makeTickets(1, 1))
	p.comments["1"] = []domain.Comment{
		{ID: "1", AuthorRole: domain.RoleAgent},
		{ID: "2", AuthorRole: domain.RoleEndUser},
	}
	h := newHarness(t, p, &fakeBackend{})

	require.NoError(t, h.rec.HandleTicketSaved(context.Background(), bus.TicketPayload{TicketID: "1", Status: "open"}))

	subs := h.vectors.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, "2", subs[0].Comments[0].ID)

	got, ok := h.store.get("1")
	require.True(t, ok)
	assert.Equal(t, 0.5, *got.Score)

	require.Len(t, h.notifier.events, 1)
	assert.Equal(t, bus.EventSentimentUpdated, h.notifier.events[0].Event)
	assert.Equal(t, bus.TicketPayload{TicketID: "1", Status: "open", Score: 0.5}, h.notifier.events[0].Payload)
}

func TestHandleTicketSaved_AgentCommentIsIgnored(t *testing.T) {
	p := newFakePlatform(makeTickets(1, 1))
	p.comments["1"] = []domain.Comment{
		{ID: "1", AuthorRole: domain.RoleEndUser},
		{ID: "2", AuthorRole: domain.RoleAgent},
	}
	h := newHarness(t, p, &fakeBackend{})

	require.NoError(t, h.rec.HandleTicketSaved(context.Background(), bus.TicketPayload{TicketID: "1", Status: "pending"}))

	assert.Empty(t, h.vectors.Submissions())
	assert.Zero(t, h.store.len())
	assert.Empty(t, h.notifier.names())
}

func TestHandleTicketSaved_ReopenedTicketReturns(t *testing.T) {
	p := newFakePlatform(makeTickets(1, 1))
	h := newHarness(t, p, &fakeBackend{})

	require.NoError(t, h.rec.HandleTicketSaved(context.Background(), bus.TicketPayload{TicketID: "1", Status: "solved"}))
	require.NoError(t, h.rec.HandleTicketSaved(context.Background(), bus.TicketPayload{TicketID: "1", Status: "open"}))

	_, ok := h.store.get("1")
	assert.True(t, ok)
}

func TestHandleTicketSaved_Errors(t *testing.T) {
	p := newFakePlatform(nil)
	h := newHarness(t, p, &fakeBackend{})

	assert.Error(t, h.rec.HandleTicketSaved(context.Background(), bus.TicketPayload{}))
	assert.ErrorIs(t, h.rec.HandleTicketSaved(context.Background(), bus.TicketPayload{TicketID: "404"}), domain.ErrNotFound)
}

func TestHandleTicketSaved_EvictionDuringStoreWrite(t *testing.T) {
	p := newFakePlatform(makeTickets(1, 3))
	h := newHarness(t, p, &fakeBackend{})

	var once sync.Once
	evicted := make(chan error, 1)
	h.store.onUpsert = func(tk domain.Ticket) {
		if tk.ID != "2" {
			return
		}
		once.Do(func() {
			go func() {
				evicted <- h.rec.HandleTicketSaved(context.Background(), bus.TicketPayload{TicketID: "2", Status: "solved"})
			}()
			// Give the eviction time to run if nothing holds it back.
			time.Sleep(50 * time.Millisecond)
		})
	}

	_, ran := h.rec.Refresh(context.Background())
	require.True(t, ran)
	require.NoError(t, <-evicted)

	_, ok := h.store.get("2")
	assert.False(t, ok, "an evicted ticket must not be written back")
	assert.Equal(t, 2, h.store.len())
}

func TestApplyScore(t *testing.T) {
	setup := func(t *testing.T) *harness {
		p := newFakePlatform(makeTickets(1, 3))
		h := newHarness(t, p, &fakeBackend{})
		_, _ = h.rec.Refresh(context.Background())
		require.Equal(t, 3, h.store.len())
		h.notifier.events = nil
		return h
	}

	t.Run("cached ticket takes the new score", func(t *testing.T) {
		h := setup(t)

		require.NoError(t, h.rec.ApplyScore(context.Background(), bus.TicketPayload{TicketID: "1", Status: "pending", Score: -0.05}))

		got, ok := h.store.get("1")
		require.True(t, ok)
		assert.Equal(t, -0.05, *got.Score)
		assert.Equal(t, domain.StatusPending, got.Status)
		require.Len(t, h.notifier.events, 1)
		assert.Equal(t, bus.EventAnalysisComplete, h.notifier.events[0].Event)
		assert.Equal(t, bus.TicketPayload{TicketID: "1", Status: "pending", Score: -0.05}, h.notifier.events[0].Payload)
	})

	t.Run("unchanged score is not rewritten", func(t *testing.T) {
		h := setup(t)

		require.NoError(t, h.rec.ApplyScore(context.Background(), bus.TicketPayload{TicketID: "1", Status: "open", Score: 0.5}))
		assert.Empty(t, h.notifier.events)
	})

	t.Run("ticket missing from the store is loaded", func(t *testing.T) {
		h := setup(t)
		h.platform.tickets = append(h.platform.tickets, makeTickets(4, 4)...)

		require.NoError(t, h.rec.ApplyScore(context.Background(), bus.TicketPayload{TicketID: "4", Score: 0.9}))

		got, ok := h.store.get("4")
		require.True(t, ok)
		assert.Equal(t, 0.9, *got.Score)
		assert.Equal(t, domain.StatusOpen, got.Status)
	})

	t.Run("terminal and evicted tickets are ignored", func(t *testing.T) {
		h := setup(t)

		require.NoError(t, h.rec.ApplyScore(context.Background(), bus.TicketPayload{TicketID: "1", Status: "solved"}))
		got, _ := h.store.get("1")
		assert.Equal(t, 0.5, *got.Score)

		require.NoError(t, h.rec.HandleTicketSaved(context.Background(), bus.TicketPayload{TicketID: "2", Status: "closed"}))
		h.notifier.events = nil
		require.NoError(t, h.rec.ApplyScore(context.Background(), bus.TicketPayload{TicketID: "2", Status: "open", Score: -0.8}))
		_, ok := h.store.get("2")
		assert.False(t, ok)
		assert.Empty(t, h.notifier.events)
	})

	t.Run("errors", func(t *testing.T) {
		h := setup(t)

		assert.Error(t, h.rec.ApplyScore(context.Background(), bus.TicketPayload{}))
		assert.ErrorIs(t, h.rec.ApplyScore(context.Background(), bus.TicketPayload{TicketID: "404", Score: 0.1}), domain.ErrNotFound)
	})
}
