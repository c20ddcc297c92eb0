package mocks

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// Ticket is a platform ticket as the fake serves it.
type Ticket struct {
	ID          int
	Status      string
	Subject     string
	RequesterID int
	CreatedAt   time.Time
}

// Comment is a platform comment. EndUser controls the author role the fake
// reports in its users list.
type Comment struct {
	ID        int
	Body      string
	AuthorID  int
	EndUser   bool
	CreatedAt time.Time
}

// Platform fakes the ticketing REST API: search, count, ticket and comment
// reads. Search results honour per_page and hand out next_page links.
type Platform struct {
	*httptest.Server

	mu       sync.Mutex
	tickets  []Ticket
	comments map[int][]Comment
}

func NewPlatform() *Platform {
	p := &Platform{comments: make(map[int][]Comment)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v2/search.json", p.search)
	mux.HandleFunc("GET /api/v2/search/count.json", p.count)
	mux.HandleFunc("GET /api/v2/tickets/{file}", p.ticket)
	mux.HandleFunc("GET /api/v2/tickets/{id}/comments.json", p.ticketComments)
	p.Server = httptest.NewServer(mux)
	return p
}

func (p *Platform) AddTicket(t Ticket, comments ...Comment) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tickets = append(p.tickets, t)
	p.comments[t.ID] = append(p.comments[t.ID], comments...)
}

// AddComment appends a comment to an existing ticket.
func (p *Platform) AddComment(ticketID int, c Comment) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.comments[ticketID] = append(p.comments[ticketID], c)
}

func (p *Platform) SetStatus(id int, status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.tickets {
		if p.tickets[i].ID == id {
			p.tickets[i].Status = status
		}
	}
}

func (p *Platform) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("query")
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if perPage <= 0 {
		perPage = 100
	}
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}

	p.mu.Lock()
	var matched []Ticket
	for _, t := range p.tickets {
		if matches(t, query) {
			matched = append(matched, t)
		}
	}
	p.mu.Unlock()

	slices.SortStableFunc(matched, func(a, b Ticket) int { return a.CreatedAt.Compare(b.CreatedAt) })
	if q.Get("sort_order") == "desc" {
		slices.Reverse(matched)
	}

	start := min((page-1)*perPage, len(matched))
	end := min(start+perPage, len(matched))

	results := make([]map[string]any, 0, end-start)
	for _, t := range matched[start:end] {
		results = append(results, ticketJSON(t))
	}

	var next *string
	if end < len(matched) {
		nq := url.Values{}
		for k, v := range q {
			nq[k] = v
		}
		nq.Set("page", strconv.Itoa(page+1))
		link := p.URL + "/api/v2/search.json?" + nq.Encode()
		next = &link
	}

	writeJSON(w, map[string]any{"results": results, "next_page": next, "count": len(matched)})
}

func (p *Platform) count(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")

	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, t := range p.tickets {
		if matches(t, query) {
			n++
		}
	}
	writeJSON(w, map[string]any{"count": map[string]int{"value": n}})
}

func (p *Platform) ticket(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(strings.TrimSuffix(r.PathValue("file"), ".json"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.tickets {
		if t.ID == id {
			writeJSON(w, map[string]any{"ticket": ticketJSON(t)})
			return
		}
	}
	http.NotFound(w, r)
}

func (p *Platform) ticketComments(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	comments, ok := p.comments[id]
	if !ok {
		http.NotFound(w, r)
		return
	}

	list := make([]map[string]any, 0, len(comments))
	users := make([]map[string]any, 0, len(comments))
	for _, c := range comments {
		list = append(list, map[string]any{
			"id":         c.ID,
			"plain_body": c.Body,
			"author_id":  c.AuthorID,
			"created_at": c.CreatedAt.UTC().Format(time.RFC3339),
		})
		role := "agent"
		if c.EndUser {
			role = "end-user"
		}
		users = append(users, map[string]any{"id": c.AuthorID, "role": role})
	}
	writeJSON(w, map[string]any{"comments": list, "users": users})
}

// matches understands the handful of search terms the client sends.
func matches(t Ticket, query string) bool {
	for _, term := range strings.Fields(query) {
		switch {
		case term == "status<solved":
			if t.Status == "solved" || t.Status == "closed" {
				return false
			}
		case strings.HasPrefix(term, "requester:"):
			if strconv.Itoa(t.RequesterID) != strings.TrimPrefix(term, "requester:") {
				return false
			}
		case strings.HasPrefix(term, "-id:"):
			if strconv.Itoa(t.ID) == strings.TrimPrefix(term, "-id:") {
				return false
			}
		case strings.HasPrefix(term, "id>"):
			floor, _ := strconv.Atoi(strings.TrimPrefix(term, "id>"))
			if t.ID <= floor {
				return false
			}
		case strings.HasPrefix(term, "created>="):
			since, err := time.Parse(time.RFC3339, strings.TrimPrefix(term, "created>="))
			if err == nil && t.CreatedAt.Before(since) {
				return false
			}
		case strings.HasPrefix(term, "created>"):
			since, err := time.Parse(time.RFC3339, strings.TrimPrefix(term, "created>"))
			if err == nil && !t.CreatedAt.After(since) {
				return false
			}
		}
	}
	return true
}

func ticketJSON(t Ticket) map[string]any {
	ts := t.CreatedAt.UTC().Format(time.RFC3339)
	return map[string]any{
		"id":           t.ID,
		"status":       t.Status,
		"subject":      t.Subject,
		"requester_id": t.RequesterID,
		"created_at":   ts,
		"updated_at":   ts,
	}
}

// Backend fakes the scoring service. A comment's score is looked up in
// Lexicon by the first matching word, and a ticket's score is the mean of
// its stored comment scores.
type Backend struct {
	*httptest.Server

	Lexicon map[string]float64

	mu       sync.Mutex
	vectors  map[string]map[string]float64
	exists   bool
	removed  []string
	analyzed int
}

func NewBackend(lexicon map[string]float64) *Backend {
	b := &Backend{Lexicon: lexicon, vectors: make(map[string]map[string]float64)}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /check-namespace", b.checkNamespace)
	mux.HandleFunc("POST /get-ticket-vectors", b.listVectors)
	mux.HandleFunc("POST /analyze-comments", b.analyze)
	mux.HandleFunc("POST /get-score", b.score)
	mux.HandleFunc("POST /get-scores", b.scores)
	mux.HandleFunc("POST /get-unsolved-tickets", b.unsolved)
	mux.HandleFunc("POST /remove-ticket-from-cache", b.remove)
	b.Server = httptest.NewServer(mux)
	return b
}

// Analyzed counts comments submitted for scoring.
func (b *Backend) Analyzed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.analyzed
}

func (b *Backend) Removed() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.removed)
}

type ticketRef struct {
	TicketID string `json:"ticketId"`
}

func (b *Backend) checkNamespace(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	writeJSON(w, map[string]bool{"exists": b.exists})
}

func (b *Backend) listVectors(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ticket ticketRef `json:"ticket"`
	}
	if !readJSON(w, r, &req) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	stored, ok := b.vectors[req.Ticket.TicketID]
	if !ok {
		writeJSON(w, map[string]string{"Error": "ticket not found"})
		return
	}
	vectors := make([]map[string]string, 0, len(stored))
	for id := range stored {
		vectors = append(vectors, map[string]string{"id": id})
	}
	writeJSON(w, map[string]any{"vectors": vectors})
}

func (b *Backend) analyze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ticket struct {
			TicketID string `json:"ticketId"`
			Comments map[string]struct {
				Text string `json:"text"`
			} `json:"comments"`
		} `json:"ticket"`
	}
	if !readJSON(w, r, &req) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.exists = true
	stored := b.vectors[req.Ticket.TicketID]
	if stored == nil {
		stored = make(map[string]float64)
		b.vectors[req.Ticket.TicketID] = stored
	}
	for id, c := range req.Ticket.Comments {
		stored[req.Ticket.TicketID+"#"+id] = b.lookup(c.Text)
		b.analyzed++
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (b *Backend) score(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tickets []ticketRef `json:"tickets"`
	}
	if !readJSON(w, r, &req) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	var sum float64
	var n int
	for _, t := range req.Tickets {
		for _, s := range b.vectors[t.TicketID] {
			sum += s
			n++
		}
	}
	score := 0.0
	if n > 0 {
		score = sum / float64(n)
	}
	writeJSON(w, map[string]float64{"score": score})
}

func (b *Backend) scores(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tickets []ticketRef `json:"tickets"`
	}
	if !readJSON(w, r, &req) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]float64)
	for _, t := range req.Tickets {
		stored := b.vectors[t.TicketID]
		if len(stored) == 0 {
			continue
		}
		var sum float64
		for _, s := range stored {
			sum += s
		}
		out[t.TicketID] = sum / float64(len(stored))
	}
	writeJSON(w, map[string]any{"scores": out})
}

func (b *Backend) unsolved(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"tickets": []any{}, "has_more": false})
}

func (b *Backend) remove(w http.ResponseWriter, r *http.Request) {
	var req ticketRef
	if !readJSON(w, r, &req) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.vectors, req.TicketID)
	b.removed = append(b.removed, req.TicketID)
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) lookup(text string) float64 {
	for _, word := range strings.Fields(strings.ToLower(text)) {
		if s, ok := b.Lexicon[strings.Trim(word, ".,!?")]; ok {
			return s
		}
	}
	return 0
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
