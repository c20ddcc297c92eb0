package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Event names carried between views.
type Event string

const (
	EventSentimentUpdated     Event = "sentiment.updated"
	EventAnalysisComplete     Event = "analysis.complete"
	EventBacklogPaused        Event = "backlog.paused"
	EventBacklogResumed       Event = "backlog.resumed"
	EventTicketSaved          Event = "ticket.saved"
	EventTicketCommentCreated Event = "ticket.comment.created"
)

// Envelope is the only thing that crosses a context boundary.
type Envelope struct {
	ID      string          `json:"id"`
	Origin  string          `json:"origin"`
	Event   Event           `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	SentAt  time.Time       `json:"sent_at"`
}

func newEnvelope(origin string, event Event, payload any) (Envelope, error) {
	env := Envelope{
		ID:     uuid.NewString(),
		Origin: origin,
		Event:  event,
		SentAt: time.Now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("encode %s payload: %w", event, err)
		}
		env.Payload = raw
	}
	return env, nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", e.Event)
	}
	return json.Unmarshal(e.Payload, v)
}

// Channel is the cross-context transport. Receive yields every envelope
// sent on the channel, including the receiver's own.
type Channel interface {
	Send(ctx context.Context, env Envelope) error
	Receive() <-chan Envelope
	Close() error
}

// TicketPayload is the payload of ticket-scoped events.
type TicketPayload struct {
	TicketID string  `json:"ticketId"`
	Status   string  `json:"status,omitempty"`
	Score    float64 `json:"score,omitempty"`
}
