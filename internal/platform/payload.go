package platform

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/godilite/sentiment-sync/internal/domain"
)

// flexID accepts ids encoded as JSON numbers or strings.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*f = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("id %s: %w", b, err)
		}
		*f = flexID(n.String())
	}
	return nil
}

type rawPerson struct {
	ID   flexID `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

func (p *rawPerson) person() *domain.Person {
	if p == nil || p.ID == "" {
		return nil
	}
	return &domain.Person{ID: string(p.ID), Name: p.Name}
}

// rawAssignee covers both the REST person and the embedded {user: {...}} form.
type rawAssignee struct {
	rawPerson
	User *rawPerson `json:"user"`
}

type rawTicket struct {
	ID             flexID       `json:"id"`
	Status         string       `json:"status"`
	Subject        string       `json:"subject"`
	CreatedAt      string       `json:"created_at"`
	UpdatedAt      string       `json:"updated_at"`
	CreatedAtCamel string       `json:"createdAt"`
	UpdatedAtCamel string       `json:"updatedAt"`
	RequesterID    flexID       `json:"requester_id"`
	AssigneeID     flexID       `json:"assignee_id"`
	Requester      *rawPerson   `json:"requester"`
	Assignee       *rawAssignee `json:"assignee"`
}

func (r rawTicket) ticket() (domain.Ticket, error) {
	if r.ID == "" {
		return domain.Ticket{}, fmt.Errorf("ticket without id")
	}
	created, err := parseTimestamp(firstNonEmpty(r.CreatedAt, r.CreatedAtCamel))
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("ticket %s created_at: %w", r.ID, err)
	}
	updated, err := parseTimestamp(firstNonEmpty(r.UpdatedAt, r.UpdatedAtCamel))
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("ticket %s updated_at: %w", r.ID, err)
	}

	t := domain.Ticket{
		ID:        string(r.ID),
		Status:    domain.TicketStatus(strings.ToLower(r.Status)),
		Subject:   r.Subject,
		CreatedAt: created,
		UpdatedAt: updated,
		Requester: r.Requester.person(),
	}
	if t.Requester == nil && r.RequesterID != "" {
		t.Requester = &domain.Person{ID: string(r.RequesterID)}
	}
	if r.Assignee != nil {
		if r.Assignee.User != nil {
			t.Assignee = r.Assignee.User.person()
		} else {
			t.Assignee = r.Assignee.rawPerson.person()
		}
	}
	if t.Assignee == nil && r.AssigneeID != "" {
		t.Assignee = &domain.Person{ID: string(r.AssigneeID)}
	}
	return t, nil
}

type rawComment struct {
	ID        flexID     `json:"id"`
	Body      string     `json:"body"`
	PlainBody string     `json:"plain_body"`
	Value     string     `json:"value"`
	AuthorID  flexID     `json:"author_id"`
	Author    *rawPerson `json:"author"`
	CreatedAt string     `json:"created_at"`
}

// decodeTicket accepts {"ticket": {...}} or a bare ticket object.
func decodeTicket(raw []byte) (domain.Ticket, error) {
	var env struct {
		Ticket *rawTicket `json:"ticket"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return domain.Ticket{}, shapeError("ticket", err.Error(), raw)
	}

	r := env.Ticket
	if r == nil {
		r = &rawTicket{}
		if err := json.Unmarshal(raw, r); err != nil {
			return domain.Ticket{}, shapeError("ticket", err.Error(), raw)
		}
	}

	t, err := r.ticket()
	if err != nil {
		return domain.Ticket{}, shapeError("ticket", err.Error(), raw)
	}
	return t, nil
}

// decodeComments is the only place comment payload shapes are told apart:
// {"ticket.comments": [...]}, {"comments": [...], "users": [...]} or [...].
// Anything else is a DataShapeError.
func decodeComments(raw []byte) ([]domain.Comment, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, shapeError("comments", "empty payload", raw)
	}

	var list []rawComment
	var users []rawPerson

	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, shapeError("comments", err.Error(), raw)
		}
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return nil, shapeError("comments", err.Error(), raw)
		}
		body, ok := fields[PathTicketComments]
		if !ok {
			body, ok = fields["comments"]
		}
		if !ok {
			return nil, shapeError("comments", "no comment list in payload", raw)
		}
		body = bytes.TrimSpace(body)
		if len(body) == 0 || body[0] != '[' {
			return nil, shapeError("comments", "comment list is not an array", raw)
		}
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, shapeError("comments", err.Error(), raw)
		}
		if u, ok := fields["users"]; ok {
			if err := json.Unmarshal(u, &users); err != nil {
				return nil, shapeError("comments", "users: "+err.Error(), raw)
			}
		}
	default:
		return nil, shapeError("comments", "payload is not an object or array", raw)
	}

	roles := make(map[string]domain.AuthorRole, len(users))
	for _, u := range users {
		roles[string(u.ID)] = parseRole(u.Role)
	}

	out := make([]domain.Comment, 0, len(list))
	for i, c := range list {
		if c.ID == "" {
			return nil, shapeError("comments", fmt.Sprintf("comment %d has no id", i), raw)
		}
		created, err := parseTimestamp(c.CreatedAt)
		if err != nil {
			return nil, shapeError("comments", fmt.Sprintf("comment %s: %v", c.ID, err), raw)
		}

		comment := domain.Comment{
			ID:        string(c.ID),
			Body:      firstNonEmpty(c.PlainBody, c.Body, c.Value),
			AuthorID:  string(c.AuthorID),
			CreatedAt: created,
		}
		if c.Author != nil {
			if comment.AuthorID == "" {
				comment.AuthorID = string(c.Author.ID)
			}
			comment.AuthorRole = parseRole(c.Author.Role)
		}
		if comment.AuthorRole == domain.RoleUnknown {
			comment.AuthorRole = roles[comment.AuthorID]
		}
		out = append(out, comment)
	}
	return out, nil
}

type searchResponse struct {
	Results  []rawTicket `json:"results"`
	NextPage *string     `json:"next_page"`
	Count    int         `json:"count"`
}

func decodeSearch(raw []byte) ([]domain.Ticket, string, error) {
	var resp searchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, "", shapeError("search", err.Error(), raw)
	}
	if resp.Results == nil && !bytes.Contains(raw, []byte(`"results"`)) {
		return nil, "", shapeError("search", "missing results", raw)
	}

	tickets := make([]domain.Ticket, 0, len(resp.Results))
	for _, r := range resp.Results {
		t, err := r.ticket()
		if err != nil {
			return nil, "", shapeError("search", err.Error(), raw)
		}
		tickets = append(tickets, t)
	}

	next := ""
	if resp.NextPage != nil {
		next = *resp.NextPage
	}
	return tickets, next, nil
}

// decodeCount accepts {"count": N} and {"count": {"value": N}}.
func decodeCount(raw []byte) (int, error) {
	var env struct {
		Count json.RawMessage `json:"count"`
	}
	if err := json.Unmarshal(raw, &env); err != nil || len(env.Count) == 0 {
		return 0, shapeError("count", "missing count", raw)
	}

	var n int
	if err := json.Unmarshal(env.Count, &n); err == nil {
		return n, nil
	}
	var wrapped struct {
		Value int `json:"value"`
	}
	if err := json.Unmarshal(env.Count, &wrapped); err != nil {
		return 0, shapeError("count", err.Error(), raw)
	}
	return wrapped.Value, nil
}

func parseRole(s string) domain.AuthorRole {
	switch strings.ToLower(strings.ReplaceAll(s, "_", "-")) {
	case "end-user", "enduser":
		return domain.RoleEndUser
	case "agent":
		return domain.RoleAgent
	case "admin":
		return domain.RoleAdmin
	default:
		return domain.RoleUnknown
	}
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func shapeError(source, reason string, raw []byte) error {
	return &domain.DataShapeError{Source: source, Reason: reason, Raw: truncate(string(raw), 512)}
}
