package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/godilite/sentiment-sync/internal/bus"
	"github.com/godilite/sentiment-sync/internal/domain"
	"github.com/godilite/sentiment-sync/internal/platform"
)

const maxRetryStep = 10 * time.Second

// backfill walks every page q selects and analyzes each ticket. Views are
// paused for the whole pass, including an aborted one. Per-ticket failures
// are counted and skipped; a page that cannot be fetched ends the pass.
func (r *Reconciler) backfill(ctx context.Context, q platform.UnsolvedQuery) (Result, error) {
	var res Result

	r.signal(ctx, bus.EventBacklogPaused)
	defer r.signal(context.WithoutCancel(ctx), bus.EventBacklogResumed)

	var watermark time.Time
	var atWatermark map[string]struct{}
	restarted := false

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		var page platform.SearchPage
		err := r.withRetry(ctx, "search unsolved", func(ctx context.Context) error {
			var err error
			page, err = r.platform.SearchUnsolved(ctx, q)
			return err
		})
		if err != nil {
			// A dead cursor is recoverable once by re-querying from the
			// newest creation time already processed.
			if q.Cursor != "" && !watermark.IsZero() && !restarted && ctx.Err() == nil {
				r.logger.Warn("cursor failed, restarting from watermark",
					zap.Time("watermark", watermark), zap.Error(err))
				q = platform.UnsolvedQuery{Since: watermark, Exclude: atWatermark}
				restarted = true
				res.Restarts++
				continue
			}
			return res, fmt.Errorf("page %d: %w", res.Pages+1, err)
		}
		restarted = false
		res.Pages++

		r.processPage(ctx, page.Tickets, &res)

		if wm := page.Watermark(); !wm.IsZero() {
			if !wm.Equal(watermark) {
				atWatermark = make(map[string]struct{})
			}
			watermark = wm
			for _, t := range page.Tickets {
				if t.CreatedAt.Equal(wm) {
					atWatermark[t.ID] = struct{}{}
				}
			}
		}

		if !page.HasMore() {
			return res, nil
		}
		q = platform.UnsolvedQuery{Cursor: page.NextCursor}
	}
}

func (r *Reconciler) processPage(ctx context.Context, tickets []domain.Ticket, res *Result) {
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(r.opts.Workers)

	for _, t := range tickets {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcome := r.processTicket(ctx, t)
			mu.Lock()
			switch outcome {
			case outcomeProcessed:
				res.Processed++
			case outcomeSkipped:
				res.Skipped++
			default:
				res.Failed++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
}

type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeSkipped
	outcomeFailed
)

func (r *Reconciler) processTicket(ctx context.Context, t domain.Ticket) outcome {
	if t.Status.IsTerminal() || r.isTombstoned(t.ID) {
		return outcomeSkipped
	}

	var comments []domain.Comment
	err := r.withRetry(ctx, "fetch comments", func(ctx context.Context) error {
		var err error
		comments, err = r.platform.Comments(ctx, t.ID)
		return err
	})
	if err != nil {
		r.logger.Warn("skipping ticket, comments unavailable", zap.String("ticket_id", t.ID), zap.Error(err))
		return outcomeFailed
	}

	var score float64
	err = r.withRetry(ctx, "analyze", func(ctx context.Context) error {
		a, err := r.analyzer.AnalyzeTicket(ctx, t.ID, comments)
		score = a.Score
		return err
	})
	if err != nil {
		r.logger.Warn("skipping ticket, analysis failed", zap.String("ticket_id", t.ID), zap.Error(err))
		return outcomeFailed
	}

	// The ticket may have been evicted while it was being analyzed.
	stored, err := r.upsertLive(ctx, t.WithScore(score))
	if err != nil {
		r.logger.Warn("skipping ticket, store write failed", zap.String("ticket_id", t.ID), zap.Error(err))
		return outcomeFailed
	}
	if !stored {
		return outcomeSkipped
	}
	return outcomeProcessed
}

// withRetry retries fn while it fails with a transient transport error.
func (r *Reconciler) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	backoff := retry.NewExponential(r.opts.RetryBase)
	backoff = retry.WithCappedDuration(maxRetryStep, backoff)
	backoff = retry.WithMaxRetries(uint64(r.opts.RetryAttempts-1), backoff)

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err != nil && domain.IsTransient(err) {
			r.logger.Debug("transient failure",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return retry.RetryableError(err)
		}
		return err
	})
}
