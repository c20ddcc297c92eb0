package view_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/godilite/sentiment-sync/internal/bus"
	"github.com/godilite/sentiment-sync/internal/domain"
	"github.com/godilite/sentiment-sync/internal/service"
	"github.com/godilite/sentiment-sync/internal/view"
	"github.com/godilite/sentiment-sync/internal/view/mocks"
)

func ticketContext(id string, comments ...domain.Comment) *mocks.MockTicketContext {
	return &mocks.MockTicketContext{
		CurrentTicketIDFunc: func(ctx context.Context) (string, error) { return id, nil },
		CurrentTicketFunc: func(ctx context.Context) (domain.Ticket, error) {
			return domain.Ticket{ID: id, Status: domain.StatusOpen, Requester: &domain.Person{ID: "7"}}, nil
		},
		CurrentCommentsFunc: func(ctx context.Context) ([]domain.Comment, error) { return comments, nil },
	}
}

type countingScorer struct {
	mocks.MockScorer
	analyses atomic.Int32
}

func newScorer(score, rolling float64) *countingScorer {
	s := &countingScorer{}
	s.AnalyzeTicketFunc = func(ctx context.Context, ticketID string, comments []domain.Comment) (service.Analysis, error) {
		s.analyses.Add(1)
		return service.Analysis{TicketID: ticketID, Score: score, Submitted: len(comments)}, nil
	}
	s.RollingScoreFunc = func(ctx context.Context, requesterID string) (float64, error) {
		return rolling, nil
	}
	return s
}

func TestSidebar_AnalyzesAndNotifies(t *testing.T) {
	hub := bus.NewMemoryHub()
	b := startBus(t, hub)
	peer := listen(startBus(t, hub), bus.EventSentimentUpdated, bus.EventAnalysisComplete)

	tickets := ticketContext("42",
		domain.Comment{ID: "1", AuthorRole: domain.RoleEndUser},
		domain.Comment{ID: "2", AuthorRole: domain.RoleEndUser})
	scorer := newScorer(0.8, -0.6)
	sb := view.NewSidebar(b, tickets, scorer, zap.NewNop())

	require.NoError(t, sb.Mount(context.Background()))
	t.Cleanup(sb.Unmount)

	snap := sb.Snapshot()
	assert.Equal(t, view.KindSidebar, snap.Kind)
	require.Equal(t, view.StatusReady, snap.Status)
	require.NotNil(t, snap.Ticket)
	assert.Equal(t, "42", snap.Ticket.TicketID)
	assert.Equal(t, 0.8, snap.Ticket.Score)
	assert.Equal(t, domain.BandVeryPositive, snap.Ticket.Band)
	assert.Equal(t, 2, snap.Ticket.Submitted)
	require.NotNil(t, snap.Ticket.RollingScore)
	assert.Equal(t, -0.6, *snap.Ticket.RollingScore)
	assert.Equal(t, domain.BandNegative, snap.Ticket.RollingBand)
	assert.Equal(t, 1, tickets.Resizes())
	assert.Equal(t, 1, scorer.Forgotten(), "new submissions invalidate the cached rolling score")

	assert.Eventually(t, func() bool { return len(peer.names()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []bus.Event{bus.EventSentimentUpdated, bus.EventAnalysisComplete}, peer.names())
	assert.Equal(t, bus.TicketPayload{TicketID: "42", Status: "open", Score: 0.8}, peer.payload(0))
}

func TestSidebar_KeepsRollingCacheWhenNothingSubmitted(t *testing.T) {
	b := startBus(t, bus.NewMemoryHub())
	scorer := &mocks.MockScorer{
		AnalyzeTicketFunc: func(ctx context.Context, ticketID string, comments []domain.Comment) (service.Analysis, error) {
			return service.Analysis{TicketID: ticketID, Score: 0.1}, nil
		},
		RollingScoreFunc: func(ctx context.Context, requesterID string) (float64, error) { return 0.2, nil },
		ForgetRollingFunc: func(ctx context.Context, requesterID string) error {
			return errors.New("redis down")
		},
	}
	sb := view.NewSidebar(b, ticketContext("42", domain.Comment{ID: "1", AuthorRole: domain.RoleEndUser}), scorer, zap.NewNop())

	require.NoError(t, sb.Mount(context.Background()))
	t.Cleanup(sb.Unmount)

	assert.Equal(t, view.StatusReady, sb.Snapshot().Status)
	assert.Zero(t, scorer.Forgotten())
}

func TestSidebar_WithoutTicketContext(t *testing.T) {
	b := startBus(t, bus.NewMemoryHub())
	scorer := newScorer(0, 0)
	sb := view.NewSidebar(b, &mocks.MockTicketContext{
		CurrentTicketIDFunc: func(ctx context.Context) (string, error) {
			return "", &domain.ContextUnavailableError{Op: "current ticket"}
		},
	}, scorer, zap.NewNop())

	require.NoError(t, sb.Mount(context.Background()))
	t.Cleanup(sb.Unmount)

	snap := sb.Snapshot()
	assert.Equal(t, view.StatusError, snap.Status)
	assert.Contains(t, snap.Message, "ticket context unavailable")
	assert.Zero(t, scorer.analyses.Load())
}

func TestSidebar_NoComments(t *testing.T) {
	b := startBus(t, bus.NewMemoryHub())
	scorer := newScorer(0, 0)
	sb := view.NewSidebar(b, ticketContext("42"), scorer, zap.NewNop())

	require.NoError(t, sb.Mount(context.Background()))
	t.Cleanup(sb.Unmount)

	snap := sb.Snapshot()
	assert.Equal(t, view.StatusReady, snap.Status)
	assert.Equal(t, view.NoCommentsMsg, snap.Message)
	assert.Nil(t, snap.Ticket)
	assert.Zero(t, scorer.analyses.Load())
}

func TestSidebar_AnalysisFailureIsVisible(t *testing.T) {
	hub := bus.NewMemoryHub()
	b := startBus(t, hub)
	peer := listen(startBus(t, hub), bus.EventSentimentUpdated, bus.EventAnalysisComplete, bus.EventBacklogResumed)

	tickets := ticketContext("42", domain.Comment{ID: "1", AuthorRole: domain.RoleEndUser})
	sb := view.NewSidebar(b, tickets, &mocks.MockScorer{
		AnalyzeTicketFunc: func(ctx context.Context, ticketID string, comments []domain.Comment) (service.Analysis, error) {
			return service.Analysis{}, &domain.ScoringServiceError{Op: "analyze-comments", TicketIDs: []string{ticketID}, Err: errors.New("boom")}
		},
	}, zap.NewNop())

	require.NoError(t, sb.Mount(context.Background()))
	t.Cleanup(sb.Unmount)

	snap := sb.Snapshot()
	assert.Equal(t, view.StatusError, snap.Status)
	assert.Contains(t, snap.Message, "analyze-comments")
	assert.Zero(t, tickets.Resizes())

	// Nothing is announced for a failed analysis; the flush event is the
	// first thing the peer hears.
	require.NoError(t, b.Trigger(context.Background(), bus.EventBacklogResumed, nil))
	assert.Eventually(t, func() bool { return len(peer.names()) > 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []bus.Event{bus.EventBacklogResumed}, peer.names())
}

func TestSidebar_MissingRequesterSkipsRollingScore(t *testing.T) {
	b := startBus(t, bus.NewMemoryHub())
	tickets := ticketContext("42", domain.Comment{ID: "1", AuthorRole: domain.RoleEndUser})
	scorer := newScorer(0.1, 0)
	scorer.RollingScoreFunc = func(ctx context.Context, requesterID string) (float64, error) {
		return 0, service.ErrMissingRequester
	}
	sb := view.NewSidebar(b, tickets, scorer, zap.NewNop())

	require.NoError(t, sb.Mount(context.Background()))
	t.Cleanup(sb.Unmount)

	snap := sb.Snapshot()
	require.Equal(t, view.StatusReady, snap.Status)
	assert.Nil(t, snap.Ticket.RollingScore)
}

func TestSidebar_AdoptsForeignScoreWithoutReanalyzing(t *testing.T) {
	b := startBus(t, bus.NewMemoryHub())
	scorer := newScorer(0.1, 0)
	sb := view.NewSidebar(b, ticketContext("42", domain.Comment{ID: "1", AuthorRole: domain.RoleEndUser}), scorer, zap.NewNop())
	require.NoError(t, sb.Mount(context.Background()))
	t.Cleanup(sb.Unmount)

	require.NoError(t, b.Publish(context.Background(), bus.EventSentimentUpdated, bus.TicketPayload{TicketID: "42", Status: "open", Score: -0.9}))
	require.NoError(t, b.Publish(context.Background(), bus.EventSentimentUpdated, bus.TicketPayload{TicketID: "43", Status: "open", Score: 0.9}))

	snap := sb.Snapshot()
	assert.Equal(t, -0.9, snap.Ticket.Score)
	assert.Equal(t, domain.BandVeryNegative, snap.Ticket.Band)
	assert.Equal(t, int32(1), scorer.analyses.Load())
}

func TestSidebar_NewCommentReanalyzes(t *testing.T) {
	b := startBus(t, bus.NewMemoryHub())
	scorer := newScorer(0.1, 0)
	sb := view.NewSidebar(b, ticketContext("42", domain.Comment{ID: "1", AuthorRole: domain.RoleEndUser}), scorer, zap.NewNop())
	require.NoError(t, sb.Mount(context.Background()))

	require.NoError(t, b.Publish(context.Background(), bus.EventTicketCommentCreated, bus.TicketPayload{TicketID: "99"}))
	assert.Equal(t, int32(1), scorer.analyses.Load())

	require.NoError(t, b.Publish(context.Background(), bus.EventTicketCommentCreated, bus.TicketPayload{TicketID: "42"}))
	assert.Equal(t, int32(2), scorer.analyses.Load())

	require.NoError(t, b.Publish(context.Background(), bus.EventTicketCommentCreated, nil))
	assert.Equal(t, int32(3), scorer.analyses.Load())

	sb.Unmount()
	require.NoError(t, b.Publish(context.Background(), bus.EventTicketCommentCreated, nil))
	assert.Equal(t, int32(3), scorer.analyses.Load())
}
