package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	TypeBatchReceived       = "batch.received"
	TypeTicketStatusChanged = "ticket.status_changed"
	TypeTicketCostChanged   = "ticket.cost_changed"
)

// Event is the envelope every domain event is published in. Type doubles
// as the routing key.
type Event struct {
	ID         uuid.UUID   `json:"id"`
	Type       string      `json:"type"`
	Actor      string      `json:"actor,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

func New(eventType, actor string, payload interface{}) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		Actor:      actor,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

type BatchReceived struct {
	BatchID   uuid.UUID   `json:"batch_id"`
	CompanyID uuid.UUID   `json:"company_id"`
	Created   int         `json:"created"`
	Updated   int         `json:"updated"`
	Deleted   int         `json:"deleted"`
	Submitted int         `json:"submitted"`
	TicketIDs []uuid.UUID `json:"ticket_ids"`
}

type TicketStatusChanged struct {
	TicketIDs []uuid.UUID `json:"ticket_ids"`
	Status    string      `json:"status"`
	Updated   int64       `json:"updated"`
}

type TicketCostChanged struct {
	TicketID uuid.UUID `json:"ticket_id"`
	Cost     int64     `json:"cost"`
}

// Publisher delivers events after the originating transaction commits.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// MemoryPublisher records events in order. Safe for concurrent use.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *MemoryPublisher) Publish(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

func (p *MemoryPublisher) OfType(eventType string) []Event {
	var out []Event
	for _, e := range p.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
