package booking

import (
	"context"
	"time"
)

// Event kinds published after a state change has been committed.
const (
	EventPropertyCreated  = "property.created"
	EventRoomAdded        = "room.added"
	EventBookingCreated   = "booking.created"
	EventBookingCancelled = "booking.cancelled"
	EventFundsWithdrawn   = "funds.withdrawn"
)

// Event describes a committed change. Only the fields relevant to Kind are set.
type Event struct {
	Kind       string    `json:"kind"`
	PropertyID string    `json:"property_id"`
	Actor      string    `json:"actor"`
	RoomID     int64     `json:"room_id,omitempty"`
	BookingID  int64     `json:"booking_id,omitempty"`
	BookingIDs []int64   `json:"booking_ids,omitempty"`
	Status     string    `json:"status,omitempty"`
	Amount     Amount    `json:"amount,omitempty"`
	StartDate  int64     `json:"start_date,omitempty"`
	EndDate    int64     `json:"end_date,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier receives committed events. Implementations must not block for long
// and log their own delivery failures; a failed delivery never undoes the change.
type Notifier interface {
	Notify(ctx context.Context, evt Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, evt Event) error

func (f NotifierFunc) Notify(ctx context.Context, evt Event) error { return f(ctx, evt) }

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Event) error { return nil }
