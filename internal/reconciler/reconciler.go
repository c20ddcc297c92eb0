package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/godilite/sentiment-sync/internal/bus"
	"github.com/godilite/sentiment-sync/internal/domain"
	"github.com/godilite/sentiment-sync/internal/platform"
)

// State is the reconciler's position in its lifecycle.
type State int32

const (
	StateUninitialized State = iota
	StateBackfilling
	StateDriftCheck
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateBackfilling:
		return "backfilling"
	case StateDriftCheck:
		return "drift_check"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var ErrAlreadyStarted = errors.New("reconciler already started")

const (
	DefaultRefreshInterval = 45 * time.Minute
	DefaultRetryAttempts   = 3
	DefaultRetryBase       = 500 * time.Millisecond
)

type Options struct {
	RefreshInterval time.Duration
	Workers         int
	RetryAttempts   int
	RetryBase       time.Duration
}

type Option func(*Options)

func WithRefreshInterval(d time.Duration) Option {
	return func(o *Options) { o.RefreshInterval = d }
}

// WithWorkers bounds how many tickets of one page are processed at once.
func WithWorkers(n int) Option {
	return func(o *Options) { o.Workers = n }
}

// WithRetry sets the total attempts and the first backoff step used for
// transient failures during backfill.
func WithRetry(attempts int, base time.Duration) Option {
	return func(o *Options) {
		o.RetryAttempts = attempts
		o.RetryBase = base
	}
}

// Result summarizes one backfill pass.
type Result struct {
	Pages     int
	Processed int
	Failed    int
	Skipped   int
	Restarts  int
}

// Reconciler keeps the local store aligned with the platform's unsolved
// tickets and the backend's vector cache.
type Reconciler struct {
	platform Platform
	backend  Backend
	analyzer Analyzer
	store    Store
	notifier Notifier
	logger   *zap.Logger
	opts     Options

	state   atomic.Int32
	running sync.Mutex

	mu         sync.Mutex
	tombstones map[string]struct{}
}

func New(p Platform, b Backend, a Analyzer, s Store, n Notifier, logger *zap.Logger, opts ...Option) *Reconciler {
	switch {
	case p == nil:
		panic("platform cannot be nil")
	case b == nil:
		panic("backend cannot be nil")
	case a == nil:
		panic("analyzer cannot be nil")
	case s == nil:
		panic("store cannot be nil")
	case n == nil:
		panic("notifier cannot be nil")
	case logger == nil:
		panic("logger cannot be nil")
	}

	options := Options{
		RefreshInterval: DefaultRefreshInterval,
		Workers:         1,
		RetryAttempts:   DefaultRetryAttempts,
		RetryBase:       DefaultRetryBase,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Workers < 1 {
		options.Workers = 1
	}
	if options.RetryAttempts < 1 {
		options.RetryAttempts = 1
	}
	if options.RetryBase <= 0 {
		options.RetryBase = DefaultRetryBase
	}

	return &Reconciler{
		platform:   p,
		backend:    b,
		analyzer:   a,
		store:      s,
		notifier:   n,
		logger:     logger.Named("reconciler"),
		opts:       options,
		tombstones: make(map[string]struct{}),
	}
}

func (r *Reconciler) State() State {
	return State(r.state.Load())
}

func (r *Reconciler) setState(s State) {
	prev := State(r.state.Swap(int32(s)))
	if prev != s {
		r.logger.Info("state changed", zap.Stringer("from", prev), zap.Stringer("to", s))
	}
}

// Start runs the startup sequence and leaves the reconciler Ready. Failures
// along the way are logged; only cancellation is returned.
func (r *Reconciler) Start(ctx context.Context) error {
	r.running.Lock()
	defer r.running.Unlock()

	if r.State() != StateUninitialized {
		return ErrAlreadyStarted
	}

	exists, err := r.backend.CheckNamespace(ctx)
	switch {
	case err != nil:
		r.logger.Warn("namespace check failed, assuming consistent", zap.Error(err))
	case !exists:
		r.setState(StateBackfilling)
		res, err := r.backfill(ctx, platform.UnsolvedQuery{})
		r.logResult("initial backfill", res, err)
	default:
		r.setState(StateDriftCheck)
		r.driftCheck(ctx)
	}

	r.setState(StateReady)
	return ctx.Err()
}

// Run starts the reconciler, then refreshes on a fixed interval until ctx
// is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	if r.opts.RefreshInterval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(r.opts.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Refresh(ctx)
		}
	}
}

// Refresh re-runs the full pagination. It reports false without doing
// anything when another pass is still running.
func (r *Reconciler) Refresh(ctx context.Context) (Result, bool) {
	if !r.running.TryLock() {
		r.logger.Info("refresh skipped, backfill in progress")
		return Result{}, false
	}
	defer r.running.Unlock()

	r.setState(StateBackfilling)
	res, err := r.backfill(ctx, platform.UnsolvedQuery{})
	r.logResult("refresh", res, err)
	r.setState(StateReady)
	return res, true
}

// driftCheck fails open: any error leaves the store as it is.
func (r *Reconciler) driftCheck(ctx context.Context) {
	summary, err := r.hydrate(ctx)
	if err != nil {
		r.logger.Warn("hydrating from backend cache failed", zap.Error(err))
		return
	}

	live, err := r.platform.CountUnsolved(ctx)
	if err != nil {
		r.logger.Warn("live count unavailable, assuming consistent", zap.Error(err))
		return
	}
	if summary.VectorCount >= live {
		r.logger.Info("cache consistent",
			zap.Int("vector_count", summary.VectorCount),
			zap.Int("live_count", live))
		return
	}

	latest, ok, err := r.platform.LatestTicket(ctx)
	if err != nil {
		r.logger.Warn("latest ticket unavailable, assuming consistent", zap.Error(err))
		return
	}
	if !ok || domain.CompareTicketIDs(latest.ID, summary.LatestTicketID) <= 0 {
		return
	}

	r.logger.Info("drift detected",
		zap.String("latest_ticket_id", latest.ID),
		zap.String("cached_latest_ticket_id", summary.LatestTicketID),
		zap.Time("since", latest.CreatedAt))

	exclude, err := r.cachedIDs(ctx)
	if err != nil {
		r.logger.Warn("reading cached ids failed", zap.Error(err))
	}

	r.setState(StateBackfilling)
	res, err := r.backfill(ctx, platform.UnsolvedQuery{Since: latest.CreatedAt, Exclude: exclude})
	r.logResult("incremental backfill", res, err)
}

type cacheSummary struct {
	VectorCount    int
	LatestTicketID string
}

// hydrate copies the backend's cached tickets into the local store.
func (r *Reconciler) hydrate(ctx context.Context) (cacheSummary, error) {
	var summary cacheSummary
	cursor := ""

	for first := true; ; first = false {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		page, err := r.backend.GetCachedUnsolvedTickets(ctx, cursor)
		if err != nil {
			return summary, err
		}
		if first {
			summary = cacheSummary{VectorCount: page.VectorCount, LatestTicketID: page.LatestTicketID}
		}

		for _, t := range page.Tickets {
			if t.Status.IsTerminal() || r.isTombstoned(t.ID) {
				continue
			}
			if err := r.store.Upsert(ctx, t); err != nil {
				return summary, err
			}
		}

		if !page.HasMore {
			return summary, nil
		}
		cursor = page.NextCursor
	}
}

func (r *Reconciler) cachedIDs(ctx context.Context) (map[string]struct{}, error) {
	ids, err := r.store.IDs(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

func (r *Reconciler) logResult(what string, res Result, err error) {
	fields := []zap.Field{
		zap.Int("pages", res.Pages),
		zap.Int("processed", res.Processed),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped),
		zap.Int("restarts", res.Restarts),
	}
	if err != nil {
		r.logger.Warn(what+" stopped early", append(fields, zap.Error(err))...)
		return
	}
	r.logger.Info(what+" finished", fields...)
}

func (r *Reconciler) signal(ctx context.Context, event bus.Event) {
	if err := r.notifier.Trigger(ctx, event, nil); err != nil {
		r.logger.Warn("signal failed", zap.String("event", string(event)), zap.Error(err))
	}
}

func (r *Reconciler) isTombstoned(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tombstones[id]
	return ok
}
