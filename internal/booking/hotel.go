package booking

import (
	"context"
	"fmt"
	"sync"
)

// hotel is one property: its room registry, its booking ledger and the lock
// that serializes every mutation of either. Funds move while the write lock
// is held, so a status change is only committed after its transfer succeeded.
type hotel struct {
	mu          sync.RWMutex
	info        Property
	rooms       rooms
	ledger      *bookLedger
	funds       Funds
	withdrawals int64
}

func newHotel(info Property, funds Funds) *hotel {
	return &hotel{info: info, ledger: newLedger(), funds: funds}
}

func (h *hotel) property() Property {
	// info is immutable after creation.
	return h.info
}

func (h *hotel) requireOwner(caller string) error {
	if caller == "" || caller != h.info.Owner {
		return fmt.Errorf("%w: caller is not the owner of property %s", ErrUnauthorized, h.info.ID)
	}
	return nil
}

func (h *hotel) addRoom(caller string, pricePrepaid, priceCancellable Amount) (Room, error) {
	if err := h.requireOwner(caller); err != nil {
		return Room{}, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms.add(pricePrepaid, priceCancellable)
}

func (h *hotel) room(id int64) (Room, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms.get(id)
}

func (h *hotel) roomList() []Room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms.all()
}

func (h *hotel) roomCount() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms.count()
}

func (h *hotel) book(ctx context.Context, caller string, roomID, start, end int64, cancellable bool, payment Amount, now int64) (Booking, error) {
	if caller == "" {
		return Booking{}, fmt.Errorf("%w: caller identity is required", ErrUnauthorized)
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	room, err := h.rooms.get(roomID)
	if err != nil {
		return Booking{}, err
	}
	price, err := h.ledger.quote(room, start, end, now, cancellable, payment)
	if err != nil {
		return Booking{}, err
	}
	if _, err := h.ledger.paidIn.Add(price); err != nil {
		return Booking{}, err
	}

	nextID := int64(len(h.ledger.entries)) + 1
	// Free rooms move no money.
	if !price.IsZero() {
		ref := fmt.Sprintf("booking:%s:%d:collect", h.info.ID, nextID)
		if err := h.funds.Collect(ctx, caller, h.info.ID, price, ref); err != nil {
			return Booking{}, err
		}
	}
	return h.ledger.insert(Booking{
		PropertyID:  h.info.ID,
		Customer:    caller,
		RoomID:      roomID,
		StartDate:   start,
		EndDate:     end,
		AmountPaid:  price,
		Cancellable: cancellable,
	})
}

func (h *hotel) cancel(ctx context.Context, caller string, bookingID, now int64) (Booking, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	b, err := h.ledger.checkCancel(bookingID, caller, now)
	if err != nil {
		return Booking{}, err
	}
	if !b.AmountPaid.IsZero() {
		ref := fmt.Sprintf("booking:%s:%d:refund", h.info.ID, b.ID)
		if err := h.funds.Release(ctx, h.info.ID, b.Customer, b.AmountPaid, ref); err != nil {
			return Booking{}, err
		}
	}
	if err := h.ledger.transition(b, StatusCancelled); err != nil {
		return Booking{}, err
	}
	return *b, nil
}

func (h *hotel) booking(caller string, bookingID int64) (Booking, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	b, err := h.ledger.get(bookingID)
	if err != nil {
		return Booking{}, err
	}
	if caller != b.Customer && caller != h.info.Owner {
		return Booking{}, fmt.Errorf("%w: booking %d", ErrUnauthorized, bookingID)
	}
	return *b, nil
}

func (h *hotel) bookingsFor(customer string) []Booking {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ledger.forCustomer(customer)
}

func (h *hotel) allBookings(caller string) ([]Booking, error) {
	if err := h.requireOwner(caller); err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ledger.all(), nil
}

func (h *hotel) isAvailable(roomID, start, end int64) (bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return isAvailable(&h.rooms, h.ledger, roomID, start, end)
}

func (h *hotel) availableRooms(start, end int64) ([]int64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return availableRooms(&h.rooms, h.ledger, start, end)
}

func (h *hotel) previewWithdrawal(caller string, cutoff int64) (Amount, error) {
	if err := h.requireOwner(caller); err != nil {
		return 0, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, total, err := h.ledger.eligible(cutoff)
	return total, err
}

func (h *hotel) withdraw(ctx context.Context, caller string, cutoff int64) (Withdrawal, error) {
	if err := h.requireOwner(caller); err != nil {
		return Withdrawal{}, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	ids, total, err := h.ledger.eligible(cutoff)
	if err != nil {
		return Withdrawal{}, err
	}
	out := Withdrawal{PropertyID: h.info.ID, Cutoff: cutoff, BookingIDs: []int64{}}
	if len(ids) == 0 {
		return out, nil
	}
	if !total.IsZero() {
		ref := fmt.Sprintf("withdrawal:%s:%d", h.info.ID, h.withdrawals+1)
		if err := h.funds.Release(ctx, h.info.ID, h.info.Owner, total, ref); err != nil {
			return Withdrawal{}, err
		}
		h.withdrawals++
	}
	if err := h.ledger.markWithdrawn(ids); err != nil {
		return Withdrawal{}, err
	}
	out.Amount = total
	out.BookingIDs = ids
	return out, nil
}

func (h *hotel) statement(ctx context.Context, caller string) (Statement, error) {
	if err := h.requireOwner(caller); err != nil {
		return Statement{}, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	escrow, err := h.funds.Escrow(ctx, h.info.ID)
	if err != nil {
		return Statement{}, err
	}
	return Statement{
		PropertyID: h.info.ID,
		PaidIn:     h.ledger.paidIn,
		Refunded:   h.ledger.refunded,
		Withdrawn:  h.ledger.withdrawn,
		Held:       h.ledger.held(),
		Escrow:     escrow,
	}, nil
}
