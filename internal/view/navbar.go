package view

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/godilite/sentiment-sync/internal/bus"
	"github.com/godilite/sentiment-sync/internal/domain"
)

const DefaultListPageSize = 25

type SortField string

const (
	SortByScore   SortField = "score"
	SortByCreated SortField = "created_at"
	SortByUpdated SortField = "updated_at"
)

type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// ListOptions controls how the navbar list is cut. Zero values mean
// descending by score, every category, first page.
type ListOptions struct {
	Sort      SortField       `json:"sort"`
	Direction Direction       `json:"direction"`
	Category  domain.Category `json:"category,omitempty"`
	Page      int             `json:"page"`
}

// ParseListOptions validates raw option values. Empty strings keep the
// defaults.
func ParseListOptions(sortBy, direction, category string, page int) (ListOptions, error) {
	var o ListOptions
	switch f := SortField(sortBy); f {
	case "", SortByScore, SortByCreated, SortByUpdated:
		o.Sort = f
	default:
		return o, fmt.Errorf("unknown sort field %q", sortBy)
	}
	switch d := Direction(direction); d {
	case "", Ascending, Descending:
		o.Direction = d
	default:
		return o, fmt.Errorf("unknown direction %q", direction)
	}
	if category != "" {
		c, ok := domain.ParseCategory(category)
		if !ok {
			return o, fmt.Errorf("unknown category %q", category)
		}
		o.Category = c
	}
	if page < 0 {
		return o, fmt.Errorf("page must not be negative, got %d", page)
	}
	o.Page = page
	return o, nil
}

func (o ListOptions) withDefaults() ListOptions {
	if o.Sort == "" {
		o.Sort = SortByScore
	}
	if o.Direction == "" {
		o.Direction = Descending
	}
	if o.Page < 1 {
		o.Page = 1
	}
	return o
}

// ListPage is one page of the navbar list plus the distribution of every
// scored ticket.
type ListPage struct {
	Options  ListOptions     `json:"options"`
	Tickets  []domain.Ticket `json:"tickets"`
	Total    int             `json:"total"`
	Pages    int             `json:"pages"`
	Median   float64         `json:"median"`
	StdDev   float64         `json:"std_dev"`
	PageSize int             `json:"page_size"`
}

// NavBar lists the reconciled unsolved tickets with sort, filter and paging.
type NavBar struct {
	base
	store    TicketLister
	scorer   Scorer
	pageSize int

	tickets []domain.Ticket
	options ListOptions
}

func NewNavBar(b Bus, store TicketLister, scorer Scorer, logger *zap.Logger) *NavBar {
	if b == nil || store == nil || scorer == nil {
		panic("navbar dependencies cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &NavBar{
		store:    store,
		scorer:   scorer,
		pageSize: DefaultListPageSize,
		options:  ListOptions{}.withDefaults(),
	}
	n.init(KindNavBar, b, logger)
	return n
}

func (n *NavBar) Mount(ctx context.Context) error {
	if err := n.markMounted(); err != nil {
		return err
	}
	reload := func(ctx context.Context, _ bus.Envelope) error { return n.Refresh(ctx) }
	n.on(bus.EventSentimentUpdated, reload)
	n.on(bus.EventAnalysisComplete, reload)
	n.onBacklog(reload)

	n.guard("mount", func() error { return n.Refresh(ctx) })
	return nil
}

// Refresh re-reads the store and fills in any missing scores.
func (n *NavBar) Refresh(ctx context.Context) error {
	n.refresh.Lock()
	defer n.refresh.Unlock()

	if n.isPaused() {
		return nil
	}
	tickets, err := n.store.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list unsolved tickets: %w", err)
	}
	tickets, err = n.scorer.ScoresFor(ctx, tickets)
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.tickets = tickets
	opts := n.options
	n.mu.Unlock()

	page := BuildPage(tickets, opts, n.pageSize)
	n.update(func(s *Snapshot) {
		s.Status = StatusReady
		s.Message = ""
		s.List = &page
	})
	return nil
}

// List re-cuts the loaded tickets with opts and makes them the current
// options. It does not hit the store.
func (n *NavBar) List(opts ListOptions) Snapshot {
	opts = opts.withDefaults()

	n.mu.Lock()
	n.options = opts
	tickets := n.tickets
	n.mu.Unlock()

	page := BuildPage(tickets, opts, n.pageSize)
	n.update(func(s *Snapshot) {
		if s.Status == StatusReady {
			s.List = &page
		}
	})
	return n.Snapshot()
}

// BuildPage filters, sorts and pages tickets. Page numbers past the end
// clamp to the last page. The input is not modified.
func BuildPage(tickets []domain.Ticket, opts ListOptions, pageSize int) ListPage {
	opts = opts.withDefaults()
	if pageSize < 1 {
		pageSize = DefaultListPageSize
	}

	filtered := make([]domain.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if opts.Category != "" && (!t.HasScore() || domain.Categorize(*t.Score) != opts.Category) {
			continue
		}
		filtered = append(filtered, t)
	}
	slices.SortStableFunc(filtered, compareBy(opts))

	pages := (len(filtered) + pageSize - 1) / pageSize
	if pages == 0 {
		pages = 1
	}
	if opts.Page > pages {
		opts.Page = pages
	}
	start := (opts.Page - 1) * pageSize
	end := min(start+pageSize, len(filtered))

	median, stddev := Distribution(tickets)
	return ListPage{
		Options:  opts,
		Tickets:  filtered[start:end],
		Total:    len(filtered),
		Pages:    pages,
		Median:   median,
		StdDev:   stddev,
		PageSize: pageSize,
	}
}

// compareBy orders by the chosen field and falls back to ticket id so
// equal keys keep a stable order. Unscored tickets sort as neutral.
func compareBy(opts ListOptions) func(a, b domain.Ticket) int {
	return func(a, b domain.Ticket) int {
		var c int
		switch opts.Sort {
		case SortByCreated:
			c = a.CreatedAt.Compare(b.CreatedAt)
		case SortByUpdated:
			c = a.UpdatedAt.Compare(b.UpdatedAt)
		default:
			c = cmp.Compare(a.ScoreOrDefault(), b.ScoreOrDefault())
		}
		if c == 0 {
			c = domain.CompareTicketIDs(a.ID, b.ID)
		}
		if opts.Direction == Descending {
			return -c
		}
		return c
	}
}

// Distribution returns the median and sample standard deviation of every
// scored ticket. Fewer than two scores have no spread.
func Distribution(tickets []domain.Ticket) (median, stddev float64) {
	scores := make([]float64, 0, len(tickets))
	for _, t := range tickets {
		if t.HasScore() {
			scores = append(scores, *t.Score)
		}
	}
	if len(scores) == 0 {
		return 0, 0
	}
	sort.Float64s(scores)
	median = stat.Quantile(0.5, stat.Empirical, scores, nil)
	if len(scores) < 2 {
		return median, 0
	}
	return median, stat.StdDev(scores, nil)
}
