package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/godilite/sentiment-sync/internal/domain"
)

const (
	DefaultPageSize           = 100
	DefaultExclusionThreshold = 100
	unsolvedFilter            = "type:ticket status<solved"
)

// UnsolvedQuery selects one page of unsolved tickets. A non-empty Cursor
// continues a previous page and overrides every other field.
type UnsolvedQuery struct {
	Since   time.Time
	Exclude map[string]struct{}
	Cursor  string
}

// SearchPage is one ascending-by-creation batch of unsolved tickets.
type SearchPage struct {
	Tickets    []domain.Ticket
	NextCursor string
}

func (p SearchPage) HasMore() bool {
	return p.NextCursor != ""
}

// Watermark is the creation time of the newest ticket on the page.
func (p SearchPage) Watermark() time.Time {
	if len(p.Tickets) == 0 {
		return time.Time{}
	}
	return p.Tickets[len(p.Tickets)-1].CreatedAt
}

type Options struct {
	PageSize           int
	ExclusionThreshold int
}

type Option func(*Options)

func WithPageSize(n int) Option {
	return func(o *Options) { o.PageSize = n }
}

func WithExclusionThreshold(n int) Option {
	return func(o *Options) { o.ExclusionThreshold = n }
}

// Client adapts the Host capability into typed ticket and comment reads.
type Client struct {
	host      Host
	logger    *zap.Logger
	pageSize  int
	threshold int
}

func NewClient(host Host, logger *zap.Logger, opts ...Option) *Client {
	if host == nil {
		panic("host cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}

	options := &Options{
		PageSize:           DefaultPageSize,
		ExclusionThreshold: DefaultExclusionThreshold,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.PageSize <= 0 {
		options.PageSize = DefaultPageSize
	}

	return &Client{
		host:      host,
		logger:    logger.Named("platform"),
		pageSize:  options.PageSize,
		threshold: options.ExclusionThreshold,
	}
}

func (c *Client) Context(ctx context.Context) (HostContext, error) {
	return c.host.Context(ctx)
}

// CurrentTicketID fails with ContextUnavailableError outside a ticket view.
func (c *Client) CurrentTicketID(ctx context.Context) (string, error) {
	hc, err := c.host.Context(ctx)
	if err != nil {
		return "", err
	}
	if !hc.HasTicket() {
		return "", &domain.ContextUnavailableError{Op: "current ticket"}
	}
	return hc.TicketID, nil
}

func (c *Client) CurrentTicket(ctx context.Context) (domain.Ticket, error) {
	if _, err := c.CurrentTicketID(ctx); err != nil {
		return domain.Ticket{}, err
	}
	raw, err := c.host.Get(ctx, PathTicket)
	if err != nil {
		return domain.Ticket{}, err
	}
	return decodeTicket(raw)
}

func (c *Client) CurrentComments(ctx context.Context) ([]domain.Comment, error) {
	if _, err := c.CurrentTicketID(ctx); err != nil {
		return nil, err
	}
	raw, err := c.host.Get(ctx, PathTicketComments)
	if err != nil {
		return nil, err
	}
	return decodeComments(raw)
}

func (c *Client) Ticket(ctx context.Context, id string) (domain.Ticket, error) {
	raw, err := c.host.Request(ctx, Request{URL: "/api/v2/tickets/" + url.PathEscape(id) + ".json"})
	if err != nil {
		return domain.Ticket{}, err
	}
	return decodeTicket(raw)
}

// Comments returns a ticket's comments oldest first.
func (c *Client) Comments(ctx context.Context, ticketID string) ([]domain.Comment, error) {
	raw, err := c.host.Request(ctx, Request{
		URL:  "/api/v2/tickets/" + url.PathEscape(ticketID) + "/comments.json",
		Data: map[string]string{"include": "users"},
	})
	if err != nil {
		return nil, err
	}
	return decodeComments(raw)
}

// LatestComment returns false when the ticket has no comments.
func (c *Client) LatestComment(ctx context.Context, ticketID string) (domain.Comment, bool, error) {
	comments, err := c.Comments(ctx, ticketID)
	if err != nil {
		return domain.Comment{}, false, err
	}
	if len(comments) == 0 {
		return domain.Comment{}, false, nil
	}

	latest := comments[len(comments)-1]
	for _, cm := range comments {
		if cm.CreatedAt.After(latest.CreatedAt) {
			latest = cm
		}
	}
	return latest, true, nil
}

// SearchUnsolved fetches one page of unsolved tickets ordered by creation
// time ascending. Excluded ids never appear in the result, whichever query
// form was used to keep them out.
func (c *Client) SearchUnsolved(ctx context.Context, q UnsolvedQuery) (SearchPage, error) {
	req := Request{URL: q.Cursor}
	if q.Cursor == "" {
		terms := []string{unsolvedFilter}
		if !q.Since.IsZero() {
			terms = append(terms, "created>="+q.Since.UTC().Format(time.RFC3339))
		}
		if ex := exclusionTerms(q.Exclude, c.threshold); ex != "" {
			terms = append(terms, ex)
		}
		req = c.searchRequest(strings.Join(terms, " "), "asc", c.pageSize)
	}

	raw, err := c.host.Request(ctx, req)
	if err != nil {
		return SearchPage{}, err
	}
	tickets, next, err := decodeSearch(raw)
	if err != nil {
		return SearchPage{}, err
	}

	if len(q.Exclude) > 0 {
		kept := tickets[:0]
		for _, t := range tickets {
			if _, skip := q.Exclude[t.ID]; !skip {
				kept = append(kept, t)
			}
		}
		tickets = kept
	}

	return SearchPage{Tickets: tickets, NextCursor: next}, nil
}

func (c *Client) CountUnsolved(ctx context.Context) (int, error) {
	raw, err := c.host.Request(ctx, Request{
		URL:  "/api/v2/search/count.json",
		Data: map[string]string{"query": unsolvedFilter},
	})
	if err != nil {
		return 0, err
	}
	return decodeCount(raw)
}

// LatestTicket returns the most recently created unsolved ticket, or false
// when there is none.
func (c *Client) LatestTicket(ctx context.Context) (domain.Ticket, bool, error) {
	raw, err := c.host.Request(ctx, c.searchRequest(unsolvedFilter, "desc", 1))
	if err != nil {
		return domain.Ticket{}, false, err
	}
	tickets, _, err := decodeSearch(raw)
	if err != nil {
		return domain.Ticket{}, false, err
	}
	if len(tickets) == 0 {
		return domain.Ticket{}, false, nil
	}
	return tickets[0], true, nil
}

// RequesterTicketIDsSince lists every ticket the requester opened after since.
func (c *Client) RequesterTicketIDsSince(ctx context.Context, requesterID string, since time.Time) ([]string, error) {
	query := fmt.Sprintf("type:ticket created>%s requester:%s", since.UTC().Format(time.RFC3339), requesterID)
	req := c.searchRequest(query, "asc", c.pageSize)

	var ids []string
	for {
		raw, err := c.host.Request(ctx, req)
		if err != nil {
			return nil, err
		}
		tickets, next, err := decodeSearch(raw)
		if err != nil {
			return nil, err
		}
		for _, t := range tickets {
			ids = append(ids, t.ID)
		}
		if next == "" {
			return ids, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		req = Request{URL: next}
	}
}

// Resize asks the host frame to fit the rendered view.
func (c *Client) Resize(ctx context.Context, height string) error {
	return c.host.Invoke(ctx, "resize", map[string]string{"height": height})
}

func (c *Client) searchRequest(query, order string, perPage int) Request {
	return Request{
		URL:    "/api/v2/search.json",
		Method: http.MethodGet,
		Data: map[string]string{
			"query":      query,
			"sort_by":    "created_at",
			"sort_order": order,
			"per_page":   strconv.Itoa(perPage),
		},
	}
}

// exclusionTerms keeps ids out of a search. Small sets become -id:N terms;
// past the threshold the query would exceed the endpoint's length limit, so
// the set collapses to id>MAX, which relies on ids growing with creation.
func exclusionTerms(exclude map[string]struct{}, threshold int) string {
	if len(exclude) == 0 {
		return ""
	}

	ids := make([]string, 0, len(exclude))
	for id := range exclude {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return domain.CompareTicketIDs(ids[i], ids[j]) < 0 })

	if len(ids) > threshold {
		return "id>" + ids[len(ids)-1]
	}

	terms := make([]string, len(ids))
	for i, id := range ids {
		terms[i] = "-id:" + id
	}
	return strings.Join(terms, " ")
}
