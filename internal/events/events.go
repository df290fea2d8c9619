// Package events carries order lifecycle notifications to other systems.
// Events are published after the change they describe has committed.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/aws"
)

// Type names an event.
type Type string

const (
	OrderCreated      Type = "order.created"
	OrderUpdated      Type = "order.updated"
	OrderStockReduced Type = "order.stock_reduced"
	OrderDeleted      Type = "order.deleted"
	OrderRestored     Type = "order.restored"
)

// Event is the message body published for an order change.
type Event struct {
	ID             string    `json:"event_id"`
	Type           Type      `json:"type"`
	OrderID        string    `json:"order_id"`
	CompanyID      string    `json:"company_id"`
	OrderNumber    string    `json:"order_number,omitempty"`
	Status         string    `json:"status"`
	DeliveryStatus string    `json:"delivery_status"`
	TotalAmount    string    `json:"total_amount"`
	Currency       string    `json:"currency"`
	ActorID        string    `json:"actor_id"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// NewID returns a fresh event id.
func NewID() string { return uuid.NewString() }

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// SQSPublisher sends events to an SQS queue. On FIFO queues events of one
// company keep their order.
type SQSPublisher struct {
	publisher *aws.Publisher
}

// NewSQSPublisher wraps an SQS publisher.
func NewSQSPublisher(p *aws.Publisher) *SQSPublisher {
	return &SQSPublisher{publisher: p}
}

func (p *SQSPublisher) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.Type, err)
	}
	return p.publisher.Send(ctx, aws.Message{
		Body: string(body),
		Attributes: map[string]string{
			"event_type": string(ev.Type),
			"company_id": ev.CompanyID,
			"order_id":   ev.OrderID,
		},
		GroupID:         ev.CompanyID,
		DeduplicationID: ev.ID,
	})
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of what was published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the types of the published events in order.
func (r *Recorder) Types() []Type {
	evs := r.Events()
	out := make([]Type, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}
