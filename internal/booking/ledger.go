package booking

import "fmt"

// transitions lists the legal forward moves of the booking state machine.
var transitions = map[Status][]Status{
	StatusPending:   {StatusCancelled, StatusWithdrawn},
	StatusConfirmed: {StatusWithdrawn},
}

func canTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// bookLedger owns the bookings of one property. Booking ids are dense and start
// at 1, so entries[i] holds booking i+1. Callers hold the property lock.
type bookLedger struct {
	entries    []Booking
	byRoom     map[int64][]int64
	byCustomer map[string][]int64

	paidIn    Amount
	refunded  Amount
	withdrawn Amount
}

func newLedger() *bookLedger {
	return &bookLedger{
		byRoom:     make(map[int64][]int64),
		byCustomer: make(map[string][]int64),
	}
}

// quote validates a booking request against the room and the current
// bookings and returns the exact amount that must be paid.
func (l *bookLedger) quote(room Room, start, end, now int64, cancellable bool, payment Amount) (Amount, error) {
	if start >= end {
		return 0, fmt.Errorf("%w: start %d must be before end %d", ErrInvalidDateRange, start, end)
	}
	if start < now {
		return 0, fmt.Errorf("%w: start %d is in the past", ErrInvalidDateRange, start)
	}
	if cancellable && !room.OffersFreeCancellation() {
		return 0, fmt.Errorf("%w: room %d has no free cancellation tier", ErrNotCancellable, room.ID)
	}
	if l.overlapping(room.ID, start, end) {
		return 0, fmt.Errorf("%w: room %d for [%d, %d)", ErrRoomUnavailable, room.ID, start, end)
	}
	price, err := room.Price(start, end, cancellable)
	if err != nil {
		return 0, err
	}
	switch {
	case payment < price:
		return 0, fmt.Errorf("%w: paid %d, price %d", ErrInsufficientPayment, payment, price)
	case payment > price:
		return 0, fmt.Errorf("%w: paid %d, price %d", ErrOverPayment, payment, price)
	}
	return price, nil
}

// overlapping reports whether an active booking of the room intersects [start, end).
func (l *bookLedger) overlapping(roomID, start, end int64) bool {
	for _, id := range l.byRoom[roomID] {
		b := &l.entries[id-1]
		if b.Status.Active() && b.Overlaps(start, end) {
			return true
		}
	}
	return false
}

func (l *bookLedger) insert(b Booking) (Booking, error) {
	paidIn, err := l.paidIn.Add(b.AmountPaid)
	if err != nil {
		return Booking{}, err
	}
	b.ID = int64(len(l.entries)) + 1
	if b.Cancellable {
		b.Status = StatusPending
	} else {
		b.Status = StatusConfirmed
	}
	l.entries = append(l.entries, b)
	l.byRoom[b.RoomID] = append(l.byRoom[b.RoomID], b.ID)
	l.byCustomer[b.Customer] = append(l.byCustomer[b.Customer], b.ID)
	l.paidIn = paidIn
	return b, nil
}

func (l *bookLedger) get(id int64) (*Booking, error) {
	if id < 1 || id > int64(len(l.entries)) {
		return nil, fmt.Errorf("%w: booking %d", ErrNotFound, id)
	}
	return &l.entries[id-1], nil
}

// checkCancel validates a cancellation without mutating anything.
func (l *bookLedger) checkCancel(id int64, caller string, now int64) (*Booking, error) {
	b, err := l.get(id)
	if err != nil {
		return nil, err
	}
	if b.Customer != caller {
		return nil, fmt.Errorf("%w: booking %d belongs to another customer", ErrUnauthorized, id)
	}
	if b.Status != StatusPending {
		return nil, fmt.Errorf("%w: booking %d is %s", ErrNotCancellable, id, b.Status)
	}
	if now >= b.StartDate {
		return nil, fmt.Errorf("%w: booking %d started at %d", ErrTooLate, id, b.StartDate)
	}
	return b, nil
}

func (l *bookLedger) transition(b *Booking, to Status) error {
	if !canTransition(b.Status, to) {
		return fmt.Errorf("%w: booking %d cannot move from %s to %s", ErrNotCancellable, b.ID, b.Status, to)
	}
	switch to {
	case StatusCancelled:
		l.refunded += b.AmountPaid
	case StatusWithdrawn:
		l.withdrawn += b.AmountPaid
	}
	b.Status = to
	return nil
}

// held is the sum of funds paid for bookings not yet cancelled or withdrawn.
func (l *bookLedger) held() Amount {
	var total Amount
	for i := range l.entries {
		if l.entries[i].Status.Active() {
			total += l.entries[i].AmountPaid
		}
	}
	return total
}

func (l *bookLedger) forCustomer(customer string) []Booking {
	ids := l.byCustomer[customer]
	out := make([]Booking, 0, len(ids))
	for _, id := range ids {
		out = append(out, l.entries[id-1])
	}
	return out
}

func (l *bookLedger) all() []Booking {
	out := make([]Booking, len(l.entries))
	copy(out, l.entries)
	return out
}
