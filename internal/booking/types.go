package booking

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a booking. The numeric codes are stable.
type Status uint8

const (
	StatusCancelled Status = 0
	StatusConfirmed Status = 1
	StatusPending   Status = 2
	StatusWithdrawn Status = 3
)

var statusNames = [...]string{
	StatusCancelled: "CANCELLED",
	StatusConfirmed: "CONFIRMED",
	StatusPending:   "PENDING",
	StatusWithdrawn: "WITHDRAWN",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// Active reports whether the booking still occupies its room interval.
func (s Status) Active() bool { return s == StatusConfirmed || s == StatusPending }

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool { return s == StatusCancelled || s == StatusWithdrawn }

func (s Status) MarshalText() ([]byte, error) {
	if int(s) >= len(statusNames) {
		return nil, fmt.Errorf("%w: unknown status %d", ErrInvalidInput, uint8(s))
	}
	return []byte(statusNames[s]), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	name := strings.ToUpper(strings.TrimSpace(string(b)))
	for i, n := range statusNames {
		if n == name {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, string(b))
}

// Room is a bookable unit with two immutable price tiers.
type Room struct {
	ID               int64  `json:"id"`
	PricePrepaid     Amount `json:"price_prepaid"`
	PriceCancellable Amount `json:"price_cancellable"`
}

// OffersFreeCancellation reports whether the room can be booked at the
// refundable tier.
func (r Room) OffersFreeCancellation() bool { return r.PriceCancellable > 0 }

// Price returns the total for the interval at the requested tier.
func (r Room) Price(start, end int64, cancellable bool) (Amount, error) {
	unit := r.PricePrepaid
	if cancellable {
		unit = r.PriceCancellable
	}
	return unit.MulNights(Nights(start, end))
}

// Booking is a reservation of a room for the half-open interval [StartDate, EndDate).
type Booking struct {
	ID          int64  `json:"id"`
	PropertyID  string `json:"property_id"`
	Customer    string `json:"customer"`
	RoomID      int64  `json:"room_id"`
	StartDate   int64  `json:"start_date"`
	EndDate     int64  `json:"end_date"`
	AmountPaid  Amount `json:"amount_paid"`
	Cancellable bool   `json:"cancellable"`
	Status      Status `json:"status"`
}

// Overlaps reports whether the booking's interval intersects [start, end).
func (b Booking) Overlaps(start, end int64) bool {
	return start < b.EndDate && b.StartDate < end
}

// Property is the descriptive record of a hotel.
type Property struct {
	ID          string    `json:"id"`
	Owner       string    `json:"owner"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Stars       int       `json:"stars"`
	CreatedAt   time.Time `json:"created_at"`
}

// Withdrawal is the result of an owner withdrawal.
type Withdrawal struct {
	PropertyID string  `json:"property_id"`
	Amount     Amount  `json:"amount"`
	BookingIDs []int64 `json:"booking_ids"`
	Cutoff     int64   `json:"cutoff"`
}

// Statement reconciles the funds that went through a property.
type Statement struct {
	PropertyID string `json:"property_id"`
	PaidIn     Amount `json:"paid_in"`
	Refunded   Amount `json:"refunded"`
	Withdrawn  Amount `json:"withdrawn"`
	Held       Amount `json:"held"`
	Escrow     Amount `json:"escrow"`
}

// Balanced reports whether funds in equal funds out plus funds held, and the
// escrow account holds exactly what the ledger says is held.
func (s Statement) Balanced() bool {
	return s.PaidIn == s.Refunded+s.Withdrawn+s.Held && s.Held == s.Escrow
}
