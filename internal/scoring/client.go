package scoring

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/godilite/sentiment-sync/internal/domain"
)

// SubdomainHeader scopes every backend call to one tenant namespace.
const SubdomainHeader = "X-Zendesk-Subdomain"

const maxResponseBytes = 8 << 20

// Backend operations, as reported in ScoringServiceError.Op.
const (
	OpListVectors    = "get-ticket-vectors"
	OpAnalyze        = "analyze-comments"
	OpGetScore       = "get-score"
	OpGetScores      = "get-scores"
	OpCheckNamespace = "check-namespace"
	OpUnsolved       = "get-unsolved-tickets"
	OpRemoveTicket   = "remove-ticket-from-cache"
)

// CachePage is one page of the backend's unsolved-ticket cache plus the
// summary fields drift detection compares against.
type CachePage struct {
	Tickets        []domain.Ticket `json:"tickets"`
	HasMore        bool            `json:"has_more"`
	NextCursor     string          `json:"next_cursor"`
	VectorCount    int             `json:"vector_count"`
	LatestTicketID string          `json:"latest_ticket_id"`
}

type Options struct {
	BaseURL    string
	Subdomain  string
	HTTPClient *http.Client
}

// Client talks to the scoring backend. It never retries; callers own the
// retry policy.
type Client struct {
	baseURL    string
	subdomain  string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(opts Options, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		panic("logger cannot be nil")
	}
	if opts.BaseURL == "" {
		return nil, errors.New("scoring: base url is required")
	}
	if opts.Subdomain == "" {
		return nil, errors.New("scoring: subdomain is required")
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		subdomain:  opts.Subdomain,
		httpClient: client,
		logger:     logger.Named("scoring"),
	}, nil
}

type ticketRef struct {
	TicketID string `json:"ticketId"`
}

func refs(ids []string) []ticketRef {
	out := make([]ticketRef, len(ids))
	for i, id := range ids {
		out[i] = ticketRef{TicketID: id}
	}
	return out
}

// ListVectors returns the stored vectors of a ticket. A 404 or a backend
// {"Error": ...} reply means nothing is stored yet.
func (c *Client) ListVectors(ctx context.Context, ticketID string) ([]domain.VectorRecord, error) {
	var resp struct {
		Vectors []domain.VectorRecord `json:"vectors"`
		Error   string                `json:"Error"`
	}
	err := c.post(ctx, OpListVectors, map[string]any{"ticket": ticketRef{TicketID: ticketID}}, &resp)
	if errors.Is(err, domain.ErrNotFound) {
		return []domain.VectorRecord{}, nil
	}
	if err != nil {
		return nil, &domain.ScoringServiceError{Op: OpListVectors, TicketIDs: []string{ticketID}, Err: err}
	}
	if resp.Error != "" {
		c.logger.Debug("no vectors for ticket", zap.String("ticket_id", ticketID), zap.String("reason", resp.Error))
		return []domain.VectorRecord{}, nil
	}
	if resp.Vectors == nil {
		return []domain.VectorRecord{}, nil
	}
	return resp.Vectors, nil
}

type commentPayload struct {
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

// SubmitForScoring sends comments for embedding and scoring. The backend
// upserts by comment id, so resubmitting is harmless; an empty list never
// reaches it.
func (c *Client) SubmitForScoring(ctx context.Context, ticketID string, comments []domain.Comment) error {
	if len(comments) == 0 {
		return nil
	}

	payload := make(map[string]commentPayload, len(comments))
	for _, cm := range comments {
		created := cm.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		payload[cm.ID] = commentPayload{Text: cm.Body, CreatedAt: created.UTC().Format(time.RFC3339)}
	}

	body := map[string]any{
		"ticket": map[string]any{
			"ticketId": ticketID,
			"comments": payload,
		},
	}
	if err := c.post(ctx, OpAnalyze, body, nil); err != nil {
		return &domain.ScoringServiceError{Op: OpAnalyze, TicketIDs: []string{ticketID}, Err: err}
	}

	c.logger.Debug("comments submitted", zap.String("ticket_id", ticketID), zap.Int("count", len(comments)))
	return nil
}

// GetScore returns the aggregate score of one ticket, or of several for a
// rolling window, clamped into the sentiment range.
func (c *Client) GetScore(ctx context.Context, ticketIDs ...string) (float64, error) {
	if len(ticketIDs) == 0 {
		return domain.DefaultSentiment, nil
	}

	var resp struct {
		Score *float64 `json:"score"`
	}
	if err := c.post(ctx, OpGetScore, map[string]any{"tickets": refs(ticketIDs)}, &resp); err != nil {
		return 0, &domain.ScoringServiceError{Op: OpGetScore, TicketIDs: ticketIDs, Err: err}
	}
	if resp.Score == nil {
		return 0, &domain.ScoringServiceError{
			Op:        OpGetScore,
			TicketIDs: ticketIDs,
			Err:       &domain.DataShapeError{Source: OpGetScore, Reason: "missing score"},
		}
	}
	return domain.Normalize(*resp.Score), nil
}

// GetScoresBulk fetches scores for many tickets in one round trip. Tickets
// the backend does not know are absent from the result.
func (c *Client) GetScoresBulk(ctx context.Context, ticketIDs []string) (map[string]float64, error) {
	if len(ticketIDs) == 0 {
		return map[string]float64{}, nil
	}

	var resp struct {
		Scores map[string]float64 `json:"scores"`
	}
	if err := c.post(ctx, OpGetScores, map[string]any{"tickets": refs(ticketIDs)}, &resp); err != nil {
		return nil, &domain.ScoringServiceError{Op: OpGetScores, TicketIDs: ticketIDs, Err: err}
	}

	out := make(map[string]float64, len(resp.Scores))
	for id, s := range resp.Scores {
		out[id] = domain.Normalize(s)
	}
	return out, nil
}

func (c *Client) CheckNamespace(ctx context.Context) (bool, error) {
	var resp struct {
		Exists *bool `json:"exists"`
	}
	if err := c.post(ctx, OpCheckNamespace, map[string]string{"subdomain": c.subdomain}, &resp); err != nil {
		return false, &domain.ScoringServiceError{Op: OpCheckNamespace, Err: err}
	}
	if resp.Exists == nil {
		return false, &domain.ScoringServiceError{
			Op:  OpCheckNamespace,
			Err: &domain.DataShapeError{Source: OpCheckNamespace, Reason: "missing exists flag"},
		}
	}
	return *resp.Exists, nil
}

// GetCachedUnsolvedTickets returns one page of the backend cache; an empty
// cursor starts from the beginning.
func (c *Client) GetCachedUnsolvedTickets(ctx context.Context, cursor string) (CachePage, error) {
	body := map[string]string{}
	if cursor != "" {
		body["cursor"] = cursor
	}

	var page CachePage
	if err := c.post(ctx, OpUnsolved, body, &page); err != nil {
		return CachePage{}, &domain.ScoringServiceError{Op: OpUnsolved, Err: err}
	}
	for i, t := range page.Tickets {
		if t.Score != nil {
			page.Tickets[i] = t.WithScore(*t.Score)
		}
	}
	if page.HasMore && page.NextCursor == "" {
		return CachePage{}, &domain.ScoringServiceError{
			Op:  OpUnsolved,
			Err: &domain.DataShapeError{Source: OpUnsolved, Reason: "has_more without next_cursor"},
		}
	}
	return page, nil
}

// RemoveTicket purges an evicted ticket and its vectors from the backend.
func (c *Client) RemoveTicket(ctx context.Context, ticketID string) error {
	if err := c.post(ctx, OpRemoveTicket, ticketRef{TicketID: ticketID}, nil); err != nil {
		return &domain.ScoringServiceError{Op: OpRemoveTicket, TicketIDs: []string{ticketID}, Err: err}
	}
	return nil
}

func (c *Client) post(ctx context.Context, op string, reqBody, respBody any) error {
	endpoint := "/" + op

	encoded, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("create %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SubdomainHeader, c.subdomain)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.TransportError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &domain.TransportError{Endpoint: endpoint, Status: resp.StatusCode, Err: err}
	}

	c.logger.Debug("backend call",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := string(data)
		if len(body) > 256 {
			body = body[:256] + "..."
		}
		return &domain.TransportError{Endpoint: endpoint, Status: resp.StatusCode, Body: body}
	}

	if respBody == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, respBody); err != nil {
		raw := string(data)
		if len(raw) > 512 {
			raw = raw[:512]
		}
		return &domain.DataShapeError{Source: op, Reason: err.Error(), Raw: raw}
	}
	return nil
}
