package domain

import (
	"strconv"
	"strings"
	"time"
)

// TicketStatus is the platform lifecycle state of a ticket.
type TicketStatus string

const (
	StatusNew     TicketStatus = "new"
	StatusOpen    TicketStatus = "open"
	StatusPending TicketStatus = "pending"
	StatusHold    TicketStatus = "hold"
	StatusSolved  TicketStatus = "solved"
	StatusClosed  TicketStatus = "closed"
)

// IsTerminal reports whether the status removes a ticket from the unsolved set.
func (s TicketStatus) IsTerminal() bool {
	return s == StatusSolved || s == StatusClosed
}

// Person is a requester or assignee reference.
type Person struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Ticket is the cache's shadow copy of a platform ticket.
type Ticket struct {
	ID        string       `json:"id"`
	Status    TicketStatus `json:"status"`
	Subject   string       `json:"subject,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Score     *float64     `json:"score,omitempty"`
	Requester *Person      `json:"requester,omitempty"`
	Assignee  *Person      `json:"assignee,omitempty"`
}

// HasScore reports whether a sentiment score is attached.
func (t Ticket) HasScore() bool {
	return t.Score != nil
}

// ScoreOrDefault returns the attached score or DefaultSentiment.
func (t Ticket) ScoreOrDefault() float64 {
	if t.Score == nil {
		return DefaultSentiment
	}
	return *t.Score
}

// WithScore returns a copy of t carrying the normalized score.
func (t Ticket) WithScore(score float64) Ticket {
	s := Normalize(score)
	t.Score = &s
	return t
}

// AuthorRole tags who wrote a comment. Only end users are scored.
type AuthorRole string

const (
	RoleEndUser AuthorRole = "end-user"
	RoleAgent   AuthorRole = "agent"
	RoleAdmin   AuthorRole = "admin"
	RoleUnknown AuthorRole = ""
)

// Comment is immutable once created.
type Comment struct {
	ID         string     `json:"id"`
	Body       string     `json:"body"`
	AuthorID   string     `json:"author_id,omitempty"`
	AuthorRole AuthorRole `json:"author_role"`
	CreatedAt  time.Time  `json:"created_at"`
}

// IsEndUser reports whether the comment is eligible for scoring.
func (c Comment) IsEndUser() bool {
	return c.AuthorRole == RoleEndUser
}

// VectorRecord is a stored embedding/score artifact for one comment.
type VectorRecord struct {
	ID       string         `json:"id"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// VectorID builds the composite "{ticketId}#{commentId}" key.
func VectorID(ticketID, commentID string) string {
	return ticketID + "#" + commentID
}

// SplitVectorID is the inverse of VectorID.
func SplitVectorID(id string) (ticketID, commentID string, ok bool) {
	i := strings.LastIndexByte(id, '#')
	if i <= 0 || i == len(id)-1 {
		return "", "", false
	}
	return id[:i], id[i+1:], true
}

// CompareTicketIDs orders platform ids numerically when both parse as
// integers and lexically otherwise. It returns -1, 0 or 1.
func CompareTicketIDs(a, b string) int {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}
