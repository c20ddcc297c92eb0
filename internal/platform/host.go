package platform

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/godilite/sentiment-sync/internal/domain"
)

// Paths accepted by Host.Get.
const (
	PathTicket         = "ticket"
	PathTicketComments = "ticket.comments"
	PathTicketID       = "ticket.id"
)

const maxResponseBytes = 8 << 20

// HostContext describes where the current view is mounted.
type HostContext struct {
	Subdomain string
	TicketID  string
}

// HasTicket reports whether ticket-scoped operations are allowed.
func (c HostContext) HasTicket() bool {
	return c.TicketID != ""
}

// Request is a call to the platform's own REST API. Data becomes the query
// string for GET and the JSON body otherwise.
type Request struct {
	URL    string
	Method string
	Data   map[string]string
}

// Host is the embedding capability the platform hands to a view.
type Host interface {
	Context(ctx context.Context) (HostContext, error)
	Get(ctx context.Context, path string) (json.RawMessage, error)
	Request(ctx context.Context, req Request) (json.RawMessage, error)
	Invoke(ctx context.Context, action string, args ...any) error
}

// HTTPHost serves the Host capability from the platform REST API using
// token basic auth.
type HTTPHost struct {
	baseURL    *url.URL
	email      string
	token      string
	hostCtx    HostContext
	httpClient *http.Client
	logger     *zap.Logger
}

type HostOptions struct {
	BaseURL    string
	Email      string
	Token      string
	Subdomain  string
	TicketID   string
	HTTPClient *http.Client
}

func NewHTTPHost(opts HostOptions, logger *zap.Logger) (*HTTPHost, error) {
	if logger == nil {
		panic("logger cannot be nil")
	}

	base := strings.ReplaceAll(opts.BaseURL, "{SUBDOMAIN}", opts.Subdomain)
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid platform url %q", base)
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &HTTPHost{
		baseURL:    u,
		email:      opts.Email,
		token:      opts.Token,
		hostCtx:    HostContext{Subdomain: opts.Subdomain, TicketID: opts.TicketID},
		httpClient: client,
		logger:     logger.Named("host"),
	}, nil
}

func (h *HTTPHost) Context(ctx context.Context) (HostContext, error) {
	return h.hostCtx, nil
}

// Get resolves the ticket-scoped paths against the mounted ticket.
func (h *HTTPHost) Get(ctx context.Context, path string) (json.RawMessage, error) {
	if !h.hostCtx.HasTicket() {
		return nil, &domain.ContextUnavailableError{Op: "get " + path}
	}
	id := url.PathEscape(h.hostCtx.TicketID)

	switch path {
	case PathTicket:
		return h.Request(ctx, Request{URL: "/api/v2/tickets/" + id + ".json"})
	case PathTicketComments:
		return h.Request(ctx, Request{
			URL:  "/api/v2/tickets/" + id + "/comments.json",
			Data: map[string]string{"include": "users"},
		})
	case PathTicketID:
		return json.Marshal(map[string]string{PathTicketID: h.hostCtx.TicketID})
	default:
		return nil, fmt.Errorf("unsupported host path %q", path)
	}
}

func (h *HTTPHost) Request(ctx context.Context, req Request) (json.RawMessage, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target, err := h.resolve(req.URL)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if len(req.Data) > 0 {
		if method == http.MethodGet {
			q := target.Query()
			for k, v := range req.Data {
				q.Set(k, v)
			}
			target.RawQuery = q.Encode()
		} else {
			encoded, err := json.Marshal(req.Data)
			if err != nil {
				return nil, fmt.Errorf("encode request body: %w", err)
			}
			body = bytes.NewReader(encoded)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if h.email != "" {
		httpReq.SetBasicAuth(h.email+"/token", h.token)
	}

	h.logger.Debug("platform request", zap.String("method", method), zap.String("url", target.Path))

	resp, err := h.httpClient.Do(httpReq)
	if err != nil {
		return nil, &domain.TransportError{Endpoint: target.Path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &domain.TransportError{Endpoint: target.Path, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &domain.TransportError{Endpoint: target.Path, Status: resp.StatusCode, Body: truncate(string(data), 256)}
	}
	return data, nil
}

// Invoke has no UI to act on outside the embedding frame; it is recorded
// so the dashboard surface can reflect it.
func (h *HTTPHost) Invoke(ctx context.Context, action string, args ...any) error {
	h.logger.Debug("invoke", zap.String("action", action), zap.Any("args", args))
	return nil
}

// resolve accepts relative API paths and absolute next_page links on the
// platform host. Links to other hosts are refused so credentials stay put.
func (h *HTTPHost) resolve(raw string) (*url.URL, error) {
	ref, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid request url %q: %w", raw, err)
	}
	target := h.baseURL.ResolveReference(ref)
	if target.Host != h.baseURL.Host {
		return nil, fmt.Errorf("refusing request to foreign host %q", target.Host)
	}
	return target, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
