package reconciler_test

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/godilite/sentiment-sync/internal/bus"
	"github.com/godilite/sentiment-sync/internal/domain"
	"github.com/godilite/sentiment-sync/internal/platform"
	"github.com/godilite/sentiment-sync/internal/scoring"
)

var base = time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

func makeTickets(from, to int) []domain.Ticket {
	out := make([]domain.Ticket, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, domain.Ticket{
			ID:        strconv.Itoa(i),
			Status:    domain.StatusOpen,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	return out
}

// fakePlatform pages an in-memory ticket list. Cursors are offsets into
// the result of the last non-cursor query.
type fakePlatform struct {
	mu       sync.Mutex
	pageSize int
	tickets  []domain.Ticket
	comments map[string][]domain.Comment
	current  []domain.Ticket

	countErr    error
	latestErr   error
	commentErrs map[string][]error
	searchErrs  []error
	onComments  func(id string)

	queries       []platform.UnsolvedQuery
	commentCalls  map[string]int
	latestCalls   int
	liveCountOver *int
}

func newFakePlatform(tickets []domain.Ticket) *fakePlatform {
	return &fakePlatform{
		pageSize:     100,
		tickets:      tickets,
		comments:     map[string][]domain.Comment{},
		commentErrs:  map[string][]error{},
		commentCalls: map[string]int{},
	}
}

func (f *fakePlatform) SearchUnsolved(ctx context.Context, q platform.UnsolvedQuery) (platform.SearchPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queries = append(f.queries, q)
	if len(f.searchErrs) > 0 {
		err := f.searchErrs[0]
		f.searchErrs = f.searchErrs[1:]
		if err != nil {
			return platform.SearchPage{}, err
		}
	}

	offset := 0
	if q.Cursor != "" {
		offset, _ = strconv.Atoi(q.Cursor)
	} else {
		f.current = f.current[:0:0]
		for _, t := range f.tickets {
			if t.Status.IsTerminal() || t.CreatedAt.Before(q.Since) {
				continue
			}
			if _, skip := q.Exclude[t.ID]; skip {
				continue
			}
			f.current = append(f.current, t)
		}
		sort.SliceStable(f.current, func(i, j int) bool { return f.current[i].CreatedAt.Before(f.current[j].CreatedAt) })
	}

	end := offset + f.pageSize
	if end > len(f.current) {
		end = len(f.current)
	}
	page := platform.SearchPage{Tickets: append([]domain.Ticket(nil), f.current[offset:end]...)}
	if end < len(f.current) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

func (f *fakePlatform) Ticket(ctx context.Context, id string) (domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tickets {
		if t.ID == id {
			return t, nil
		}
	}
	return domain.Ticket{}, domain.ErrNotFound
}

func (f *fakePlatform) Comments(ctx context.Context, ticketID string) ([]domain.Comment, error) {
	f.mu.Lock()
	f.commentCalls[ticketID]++
	var err error
	if errs := f.commentErrs[ticketID]; len(errs) > 0 {
		err = errs[0]
		f.commentErrs[ticketID] = errs[1:]
	}
	comments, ok := f.comments[ticketID]
	hook := f.onComments
	f.mu.Unlock()

	if hook != nil {
		hook(ticketID)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		comments = []domain.Comment{{ID: "1", Body: "help", AuthorRole: domain.RoleEndUser}}
	}
	return comments, nil
}

func (f *fakePlatform) LatestComment(ctx context.Context, ticketID string) (domain.Comment, bool, error) {
	comments, err := f.Comments(ctx, ticketID)
	if err != nil || len(comments) == 0 {
		return domain.Comment{}, false, err
	}
	return comments[len(comments)-1], true, nil
}

func (f *fakePlatform) CountUnsolved(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	if f.liveCountOver != nil {
		return *f.liveCountOver, nil
	}
	n := 0
	for _, t := range f.tickets {
		if !t.Status.IsTerminal() {
			n++
		}
	}
	return n, nil
}

func (f *fakePlatform) LatestTicket(ctx context.Context) (domain.Ticket, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latestCalls++
	if f.latestErr != nil {
		return domain.Ticket{}, false, f.latestErr
	}
	if len(f.tickets) == 0 {
		return domain.Ticket{}, false, nil
	}
	return f.tickets[len(f.tickets)-1], true, nil
}

func (f *fakePlatform) searchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func (f *fakePlatform) setStatus(id string, s domain.TicketStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tickets {
		if f.tickets[i].ID == id {
			f.tickets[i].Status = s
		}
	}
}

type fakeBackend struct {
	mu           sync.Mutex
	exists       bool
	namespaceErr error
	pages        []scoring.CachePage
	cacheErr     error
	removed      []string
}

func (b *fakeBackend) CheckNamespace(ctx context.Context) (bool, error) {
	return b.exists, b.namespaceErr
}

func (b *fakeBackend) GetCachedUnsolvedTickets(ctx context.Context, cursor string) (scoring.CachePage, error) {
	if b.cacheErr != nil {
		return scoring.CachePage{}, b.cacheErr
	}
	if len(b.pages) == 0 {
		return scoring.CachePage{}, nil
	}
	i, _ := strconv.Atoi(cursor)
	return b.pages[i], nil
}

func (b *fakeBackend) RemoveTicket(ctx context.Context, ticketID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removed = append(b.removed, ticketID)
	return nil
}

func (b *fakeBackend) removedIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.removed...)
}

// memStore is a map-backed Store. onUpsert runs before each write.
type memStore struct {
	mu       sync.Mutex
	tickets  map[string]domain.Ticket
	onUpsert func(t domain.Ticket)
}

func newMemStore() *memStore {
	return &memStore{tickets: map[string]domain.Ticket{}}
}

func (s *memStore) Upsert(ctx context.Context, t domain.Ticket) error {
	s.mu.Lock()
	hook := s.onUpsert
	s.mu.Unlock()
	if hook != nil {
		hook(t)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.tickets[t.ID]; ok && t.Score == nil {
		t.Score = prev.Score
	}
	s.tickets[t.ID] = t
	return nil
}

func (s *memStore) Get(ctx context.Context, id string) (domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return domain.Ticket{}, domain.ErrNotFound
	}
	return t, nil
}

func (s *memStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tickets, id)
	return nil
}

func (s *memStore) IDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.tickets))
	for id := range s.tickets {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *memStore) get(id string) (domain.Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	return t, ok
}

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tickets)
}

type sent struct {
	Event   bus.Event
	Payload any
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []sent
}

func (n *recordingNotifier) Trigger(ctx context.Context, event bus.Event, payload any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sent{Event: event, Payload: payload})
	return nil
}

func (n *recordingNotifier) names() []bus.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]bus.Event, len(n.events))
	for i, e := range n.events {
		out[i] = e.Event
	}
	return out
}

func transient() error {
	return &domain.TransportError{Endpoint: "/api/v2/tickets", Status: http.StatusServiceUnavailable}
}

var errPermanent = errors.New("comments payload malformed")
