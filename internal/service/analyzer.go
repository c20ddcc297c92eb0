package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/godilite/sentiment-sync/internal/domain"
	"github.com/godilite/sentiment-sync/pkg/cache"
)

const DefaultScoreCacheTTL = 10 * time.Minute

var ErrMissingRequester = errors.New("ticket has no requester")

// Analysis is the outcome of one per-ticket analyze step.
type Analysis struct {
	TicketID  string  `json:"ticket_id"`
	Score     float64 `json:"score"`
	Submitted int     `json:"submitted"`
}

type AnalyzerOption func(*Analyzer)

// WithScoreCache reads rolling scores through c. Without it every call goes
// to the backend.
func WithScoreCache(c cache.Cacher, ttl time.Duration) AnalyzerOption {
	return func(a *Analyzer) {
		a.cache = c
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

// WithNamespace prefixes cache keys so tenants sharing a Redis stay apart.
func WithNamespace(ns string) AnalyzerOption {
	return func(a *Analyzer) { a.namespace = ns }
}

func WithClock(now func() time.Time) AnalyzerOption {
	return func(a *Analyzer) { a.now = now }
}

// Analyzer runs the diff, submit and score sequence for tickets.
type Analyzer struct {
	vectors   VectorStore
	history   RequesterHistory
	cache     cache.Cacher
	sf        singleflight.Group
	ttl       time.Duration
	namespace string
	now       func() time.Time
	logger    *zap.Logger
}

func NewAnalyzer(vectors VectorStore, history RequesterHistory, logger *zap.Logger, opts ...AnalyzerOption) *Analyzer {
	if vectors == nil {
		panic("vector store must not be nil")
	}
	if history == nil {
		panic("requester history must not be nil")
	}
	if logger == nil {
		l, _ := zap.NewProduction()
		logger = l
	}

	a := &Analyzer{
		vectors: vectors,
		history: history,
		ttl:     DefaultScoreCacheTTL,
		now:     time.Now,
		logger:  logger.Named("analyzer"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AnalyzeTicket submits the comments the backend has not scored yet and
// returns the ticket's refreshed score. Each step waits for the previous one.
// A ticket without end-user comments is neutral and costs no backend call.
func (a *Analyzer) AnalyzeTicket(ctx context.Context, ticketID string, comments []domain.Comment) (Analysis, error) {
	if !slices.ContainsFunc(comments, domain.Comment.IsEndUser) {
		return Analysis{TicketID: ticketID, Score: domain.DefaultSentiment}, nil
	}

	records, err := a.vectors.ListVectors(ctx, ticketID)
	if err != nil {
		return Analysis{}, err
	}

	pending := Unscored(ticketID, comments, VectorIDSet(records))
	if len(pending) > 0 {
		if err := a.vectors.SubmitForScoring(ctx, ticketID, pending); err != nil {
			return Analysis{}, err
		}
	}

	score, err := a.vectors.GetScore(ctx, ticketID)
	if err != nil {
		return Analysis{}, err
	}

	a.logger.Debug("ticket analyzed",
		zap.String("ticket_id", ticketID),
		zap.Int("comments", len(comments)),
		zap.Int("submitted", len(pending)),
		zap.Float64("score", score))

	return Analysis{TicketID: ticketID, Score: domain.Normalize(score), Submitted: len(pending)}, nil
}

// RollingScore aggregates every ticket the requester opened in the trailing
// window. It is DefaultSentiment when there are none.
func (a *Analyzer) RollingScore(ctx context.Context, requesterID string) (float64, error) {
	if requesterID == "" {
		return 0, ErrMissingRequester
	}

	key := a.rollingKey(requesterID)
	score, err := cache.FindAndCache(ctx, a.cache, &a.sf, key, a.ttl, a.logger, func(ctx context.Context) (float64, error) {
		since := a.now().AddDate(0, 0, -domain.RollingWindowDays)
		ids, err := a.history.RequesterTicketIDsSince(ctx, requesterID, since)
		if err != nil {
			return 0, fmt.Errorf("list requester tickets: %w", err)
		}
		if len(ids) == 0 {
			a.logger.Debug("no tickets in rolling window", zap.String("requester_id", requesterID))
			return domain.DefaultSentiment, nil
		}
		return a.vectors.GetScore(ctx, ids...)
	})
	if err != nil {
		return 0, err
	}
	return domain.Normalize(score), nil
}

// ForgetRolling drops the cached rolling score of requesterID so the next
// RollingScore reflects comments submitted since it was cached.
func (a *Analyzer) ForgetRolling(ctx context.Context, requesterID string) error {
	if a.cache == nil || requesterID == "" {
		return nil
	}
	if err := a.cache.Delete(ctx, a.rollingKey(requesterID)); err != nil {
		return fmt.Errorf("forget rolling score of %s: %w", requesterID, err)
	}
	return nil
}

func (a *Analyzer) rollingKey(requesterID string) string {
	return fmt.Sprintf("sentiment:%s:rolling:%s", a.namespace, requesterID)
}

// ScoresFor fills in missing scores with one bulk request. Tickets the
// backend has no score for are returned unchanged.
func (a *Analyzer) ScoresFor(ctx context.Context, tickets []domain.Ticket) ([]domain.Ticket, error) {
	var missing []string
	for _, t := range tickets {
		if !t.HasScore() {
			missing = append(missing, t.ID)
		}
	}

	out := make([]domain.Ticket, len(tickets))
	copy(out, tickets)
	if len(missing) == 0 {
		return out, nil
	}

	scores, err := a.vectors.GetScoresBulk(ctx, missing)
	if err != nil {
		return nil, err
	}
	for i, t := range out {
		if s, ok := scores[t.ID]; ok && !t.HasScore() {
			out[i] = t.WithScore(s)
		}
	}
	return out, nil
}
