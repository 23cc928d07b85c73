// Package events publishes loyalty domain events to downstream consumers
// (notifications, UI feeds). Events are emitted after commit and are best
// effort: the ledger never depends on delivery.
package events

import (
	"context"
	"sync"
	"time"
)

// Type names an event.
type Type string

const (
	EntryAppended       Type = "entry.appended"
	EntrySettled        Type = "entry.settled"
	RedemptionCreated   Type = "redemption.created"
	RedemptionCancelled Type = "redemption.cancelled"
	VoucherUsed         Type = "voucher.used"
	VoucherExpired      Type = "voucher.expired"
)

// Event is one domain event. Key partitions the stream (the customer ID),
// so a consumer sees one customer's events in order.
type Event struct {
	Type       Type      `json:"type"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory. Used in tests and in
// development when no broker is configured.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns recorded events of one type.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
