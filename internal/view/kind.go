package view

import (
	"fmt"
	"strings"
	"time"

	"github.com/godilite/sentiment-sync/internal/domain"
)

// Kind selects which controller a process mounts.
type Kind string

const (
	KindSidebar    Kind = "sidebar"
	KindTopbar     Kind = "topbar"
	KindNavBar     Kind = "navbar"
	KindBackground Kind = "background"
)

// ParseKind resolves a VIEW_KIND value. Matching ignores case and
// surrounding space.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindSidebar, KindTopbar, KindNavBar, KindBackground:
		return k, nil
	}
	return "", fmt.Errorf("unknown view kind %q", s)
}

// NeedsTicketContext reports whether the kind only makes sense inside a
// ticket.
func (k Kind) NeedsTicketContext() bool {
	return k == KindSidebar
}

type Status string

const (
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
	StatusPaused  Status = "paused"
)

const (
	maxMessageLen = 200

	PausedMessage = "Evaluating backlog, please stand by"
	NoCommentsMsg = "No comments found, check back later."
)

// Snapshot is what a renderer needs to draw one view.
type Snapshot struct {
	Kind      Kind      `json:"kind"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`

	Ticket  *TicketSentiment `json:"ticket,omitempty"`
	Summary *Summary         `json:"summary,omitempty"`
	List    *ListPage        `json:"list,omitempty"`
	Sync    *SyncStatus      `json:"sync,omitempty"`
}

// TicketSentiment is the sidebar's model.
type TicketSentiment struct {
	TicketID     string      `json:"ticket_id"`
	Score        float64     `json:"score"`
	Band         domain.Band `json:"band"`
	Submitted    int         `json:"submitted"`
	RollingScore *float64    `json:"rolling_score,omitempty"`
	RollingBand  domain.Band `json:"rolling_band,omitempty"`
}

// Summary is the topbar's model.
type Summary struct {
	Total    int                     `json:"total"`
	Unscored int                     `json:"unscored"`
	Counts   map[domain.Category]int `json:"counts"`
	Bands    map[domain.Band]int     `json:"bands"`
}

// SyncStatus is the background runner's model.
type SyncStatus struct {
	State string `json:"state"`
}

func boundMessage(msg string) string {
	if len(msg) <= maxMessageLen {
		return msg
	}
	return msg[:maxMessageLen-3] + "..."
}
