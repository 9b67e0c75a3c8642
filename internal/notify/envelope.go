// Package notify delivers committed booking events to external brokers.
// Delivery is best effort: a failed publish is logged and never undoes the
// booking change that produced the event.
package notify

import (
	"encoding/json"
	"time"

	"roomledger.org/internal/booking"
	"roomledger.org/internal/ids"
)

// Envelope is the wire format of an outgoing event.
type Envelope struct {
	ID         string        `json:"id"`
	Kind       string        `json:"kind"`
	PropertyID string        `json:"property_id"`
	OccurredAt time.Time     `json:"occurred_at"`
	Event      booking.Event `json:"event"`
}

// Encode wraps the event in an envelope with a fresh sortable id.
func Encode(evt booking.Event) ([]byte, error) {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	return json.Marshal(Envelope{
		ID:         ids.NewAt(evt.OccurredAt),
		Kind:       evt.Kind,
		PropertyID: evt.PropertyID,
		OccurredAt: evt.OccurredAt,
		Event:      evt,
	})
}
