package booking

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestCreatePropertyValidation(t *testing.T) {
	f := newFixture(t)

	if _, err := f.reg.CreateProperty(f.ctx, "", "Inn", "", 3); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := f.reg.CreateProperty(f.ctx, "olga", "  ", "", 3); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty name, got %v", err)
	}
	if _, err := f.reg.CreateProperty(f.ctx, "olga", "Inn", "", 6); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for stars, got %v", err)
	}

	a := f.property("olga")
	b := f.property("piet")
	c := f.property("olga")

	all, _ := f.reg.ListProperties(f.ctx)
	if len(all) != 3 || all[0].ID != a || all[1].ID != b || all[2].ID != c {
		t.Fatalf("unexpected property order: %+v", all)
	}
	owned, _ := f.reg.ListOwnedProperties(f.ctx, "olga")
	if len(owned) != 2 || owned[0].ID != a || owned[1].ID != c {
		t.Fatalf("unexpected owned properties: %+v", owned)
	}
	if _, err := f.reg.GetProperty(f.ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAddRoom(t *testing.T) {
	f := newFixture(t)
	p := f.property("olga")

	if _, err := f.reg.AddRoom(f.ctx, p, "mallory", 2, 3); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := f.reg.AddRoom(f.ctx, p, "olga", -1, 3); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
	if _, err := f.reg.AddRoom(f.ctx, p, "olga", 2, -3); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice for negative cancellable price, got %v", err)
	}

	first := f.room(p, "olga", 2, 3)
	second := f.room(p, "olga", 5, 0)
	free := f.room(p, "olga", 0, 0)
	if first != 1 || second != 2 || free != 3 {
		t.Fatalf("room ids must be dense from 1, got %d, %d and %d", first, second, free)
	}
	n, _ := f.reg.RoomCount(f.ctx, p)
	if n != 3 {
		t.Fatalf("RoomCount = %d", n)
	}
	room, err := f.reg.GetRoom(f.ctx, p, 2)
	if err != nil || room.PricePrepaid != 5 || room.OffersFreeCancellation() {
		t.Fatalf("GetRoom = %+v, %v", room, err)
	}
	if _, err := f.reg.GetRoom(f.ctx, p, 4); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBookingLifecycleScenario(t *testing.T) {
	f := newFixture(t)
	p := f.property("olga")
	room := f.room(p, "olga", 2, 3)
	f.wallet("carl", 100)

	confirmed := f.book(p, "carl", room, f.day(1), f.day(2), false, 2)
	if got := f.status(p, "carl", confirmed); got != StatusConfirmed {
		t.Fatalf("prepaid booking status = %s", got)
	}
	pending := f.book(p, "carl", room, f.day(3), f.day(4), true, 3)
	if got := f.status(p, "carl", pending); got != StatusPending {
		t.Fatalf("cancellable booking status = %s", got)
	}
	if f.balance("carl") != 95 {
		t.Fatalf("wallet after bookings = %d", f.balance("carl"))
	}

	free, err := f.reg.AvailableRooms(f.ctx, p, f.day(2), f.day(3))
	if err != nil || !reflect.DeepEqual(free, []int64{room}) {
		t.Fatalf("AvailableRooms(gap) = %v, %v", free, err)
	}
	ok, _ := f.reg.IsAvailable(f.ctx, p, room, f.day(3), f.day(4))
	if ok {
		t.Fatalf("booked interval reported available")
	}

	if err := f.reg.Cancel(f.ctx, p, "carl", pending); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if f.balance("carl") != 98 {
		t.Fatalf("refund must return exactly 3, wallet = %d", f.balance("carl"))
	}
	if got := f.status(p, "carl", pending); got != StatusCancelled {
		t.Fatalf("status after cancel = %s", got)
	}
	ok, _ = f.reg.IsAvailable(f.ctx, p, room, f.day(3), f.day(4))
	if !ok {
		t.Fatalf("cancelled interval must be free again")
	}
	f.book(p, "carl", room, f.day(3), f.day(4), true, 3)

	want := []string{EventPropertyCreated, EventRoomAdded, EventBookingCreated, EventBookingCreated, EventBookingCancelled, EventBookingCreated}
	if got := f.kinds(); !reflect.DeepEqual(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestBookRejections(t *testing.T) {
	f := newFixture(t)
	p := f.property("olga")
	room := f.room(p, "olga", 2, 3)
	prepaidOnly := f.room(p, "olga", 4, 0)
	f.wallet("carl", 100)

	cases := []struct {
		name        string
		caller      string
		room        int64
		start, end  int64
		cancellable bool
		pay         Amount
		want        error
	}{
		{"anonymous", "", room, f.day(1), f.day(2), false, 2, ErrUnauthorized},
		{"unknown room", "carl", 9, f.day(1), f.day(2), false, 2, ErrNotFound},
		{"empty range", "carl", room, f.day(2), f.day(2), false, 0, ErrInvalidDateRange},
		{"reversed range", "carl", room, f.day(3), f.day(2), false, 2, ErrInvalidDateRange},
		{"past start", "carl", room, f.day(-1), f.day(1), false, 4, ErrInvalidDateRange},
		{"no cancellable tier", "carl", prepaidOnly, f.day(1), f.day(2), true, 4, ErrNotCancellable},
		{"one unit short", "carl", room, f.day(1), f.day(3), false, 3, ErrInsufficientPayment},
		{"one unit over", "carl", room, f.day(1), f.day(3), false, 5, ErrOverPayment},
		{"cancellable short", "carl", room, f.day(1), f.day(3), true, 5, ErrInsufficientPayment},
		{"no wallet", "dora", room, f.day(1), f.day(2), false, 2, ErrPaymentFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.reg.Book(f.ctx, p, tc.caller, tc.room, tc.start, tc.end, tc.cancellable, tc.pay)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if f.balance("carl") != 100 {
		t.Fatalf("rejected bookings must not move funds, wallet = %d", f.balance("carl"))
	}
	all, _ := f.reg.ListBookings(f.ctx, p, "olga")
	if len(all) != 0 {
		t.Fatalf("rejected bookings must not be recorded: %+v", all)
	}
}

func TestPriceScalesByNights(t *testing.T) {
	f := newFixture(t)
	p := f.property("olga")
	room := f.room(p, "olga", 2, 3)
	f.wallet("carl", 100)

	// A partial night rounds up.
	id := f.book(p, "carl", room, f.day(1), f.day(3)+1, true, 9)
	b, _ := f.reg.GetBooking(f.ctx, p, "carl", id)
	if b.AmountPaid != 9 || !b.Cancellable {
		t.Fatalf("unexpected booking: %+v", b)
	}
}

func TestRebookSameIntervalFails(t *testing.T) {
	f := newFixture(t)
	p := f.property("olga")
	room := f.room(p, "olga", 2, 3)
	f.wallet("carl", 100)
	f.wallet("dora", 100)

	f.book(p, "carl", room, f.day(1), f.day(3), false, 4)
	for _, iv := range [][2]int64{
		{f.day(1), f.day(3)},
		{f.day(2), f.day(4)},
		{f.day(0), f.day(2)},
		{f.day(1) + 1, f.day(2)},
	} {
		if _, err := f.reg.Book(f.ctx, p, "dora", room, iv[0], iv[1], false, Amount(2*Nights(iv[0], iv[1]))); !errors.Is(err, ErrRoomUnavailable) {
			t.Fatalf("interval %v: expected ErrRoomUnavailable, got %v", iv, err)
		}
	}
	// Touching intervals are fine.
	f.book(p, "dora", room, f.day(3), f.day(4), false, 2)
	f.book(p, "dora", room, f.day(0), f.day(1), false, 2)
}

func TestCancelRules(t *testing.T) {
	f := newFixture(t)
	p := f.property("olga")
	room := f.room(p, "olga", 2, 3)
	f.wallet("carl", 100)

	confirmed := f.book(p, "carl", room, f.day(1), f.day(2), false, 2)
	pending := f.book(p, "carl", room, f.day(2), f.day(3), true, 3)

	if err := f.reg.Cancel(f.ctx, p, "carl", confirmed); !errors.Is(err, ErrNotCancellable) {
		t.Fatalf("expected ErrNotCancellable, got %v", err)
	}
	if err := f.reg.Cancel(f.ctx, p, "olga", pending); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("owner must not cancel on behalf of the customer, got %v", err)
	}
	if err := f.reg.Cancel(f.ctx, p, "carl", 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	f.clock.Advance(2 * 24 * time.Hour)
	if err := f.reg.Cancel(f.ctx, p, "carl", pending); !errors.Is(err, ErrTooLate) {
		t.Fatalf("expected ErrTooLate at check-in, got %v", err)
	}
	if f.status(p, "carl", pending) != StatusPending {
		t.Fatalf("failed cancel must not change status")
	}
}

func TestCancelTwice(t *testing.T) {
	f := newFixture(t)
	p := f.property("olga")
	room := f.room(p, "olga", 2, 3)
	f.wallet("carl", 10)

	id := f.book(p, "carl", room, f.day(1), f.day(2), true, 3)
	if err := f.reg.Cancel(f.ctx, p, "carl", id); err != nil {
		t.Fatal(err)
	}
	if err := f.reg.Cancel(f.ctx, p, "carl", id); !errors.Is(err, ErrNotCancellable) {
		t.Fatalf("expected ErrNotCancellable on second cancel, got %v", err)
	}
	if f.balance("carl") != 10 {
		t.Fatalf("refund paid twice: wallet = %d", f.balance("carl"))
	}
}

func TestWithdrawScenario(t *testing.T) {
	f := newFixture(t)
	p := f.property("olga")
	r1 := f.room(p, "olga", 2, 3)
	r2 := f.room(p, "olga", 5, 7)
	f.wallet("carl", 100)
	f.wallet("dora", 100)

	b1 := f.book(p, "carl", r1, f.day(1), f.day(2), false, 2)
	b2 := f.book(p, "dora", r2, f.day(1), f.day(3), false, 10)
	b3 := f.book(p, "carl", r1, f.day(2), f.day(3), false, 2)
	future := f.book(p, "dora", r1, f.day(10), f.day(11), true, 3)

	f.clock.Advance(5 * 24 * time.Hour)
	now := f.clock.Now().Unix()

	preview, err := f.reg.PreviewWithdrawal(f.ctx, p, "olga", now)
	if err != nil || preview != 14 {
		t.Fatalf("PreviewWithdrawal = %d, %v", preview, err)
	}
	if _, err := f.reg.Withdraw(f.ctx, p, "carl", now); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	w, err := f.reg.Withdraw(f.ctx, p, "olga", now)
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if w.Amount != 14 || !reflect.DeepEqual(w.BookingIDs, []int64{b1, b2, b3}) {
		t.Fatalf("unexpected withdrawal: %+v", w)
	}
	if f.balance("olga") != 14 {
		t.Fatalf("owner wallet = %d", f.balance("olga"))
	}
	for _, id := range []int64{b1, b2, b3} {
		if got := f.status(p, "olga", id); got != StatusWithdrawn {
			t.Fatalf("booking %d status = %s", id, got)
		}
	}
	if got := f.status(p, "olga", future); got != StatusPending {
		t.Fatalf("future booking status = %s", got)
	}

	again, err := f.reg.Withdraw(f.ctx, p, "olga", now)
	if err != nil {
		t.Fatal(err)
	}
	if again.Amount != 0 || again.BookingIDs == nil || len(again.BookingIDs) != 0 {
		t.Fatalf("second withdrawal must be empty: %+v", again)
	}
	if f.balance("olga") != 14 {
		t.Fatalf("funds withdrawn twice: %d", f.balance("olga"))
	}

	// The withdrawn booking can no longer be cancelled, and the future one
	// can still be cancelled by its customer.
	if err := f.reg.Cancel(f.ctx, p, "dora", future); err != nil {
		t.Fatalf("Cancel future booking: %v", err)
	}

	st, err := f.reg.Statement(f.ctx, p, "olga")
	if err != nil {
		t.Fatal(err)
	}
	if !st.Balanced() || st.PaidIn != 17 || st.Withdrawn != 14 || st.Refunded != 3 || st.Held != 0 || st.Escrow != 0 {
		t.Fatalf("unexpected statement: %+v", st)
	}
}

func TestFreeRoomMovesNoMoney(t *testing.T) {
	f := newFixture(t)
	p := f.property("olga")
	room := f.room(p, "olga", 0, 3)

	if _, err := f.reg.Book(f.ctx, p, "gina", room, f.day(1), f.day(2), false, 1); !errors.Is(err, ErrOverPayment) {
		t.Fatalf("expected ErrOverPayment, got %v", err)
	}
	// gina has no wallet: a free booking must not touch the funds rail.
	id := f.book(p, "gina", room, f.day(1), f.day(3), false, 0)
	if got := f.status(p, "gina", id); got != StatusConfirmed {
		t.Fatalf("free booking status = %s", got)
	}
	if _, err := f.reg.Book(f.ctx, p, "hugo", room, f.day(2), f.day(3), false, 0); !errors.Is(err, ErrRoomUnavailable) {
		t.Fatalf("free bookings still hold the room, got %v", err)
	}

	f.clock.Advance(2 * 24 * time.Hour)
	w, err := f.reg.Withdraw(f.ctx, p, "olga", f.clock.Now().Unix())
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if w.Amount != 0 || !reflect.DeepEqual(w.BookingIDs, []int64{id}) {
		t.Fatalf("unexpected withdrawal: %+v", w)
	}
	if got := f.status(p, "olga", id); got != StatusWithdrawn {
		t.Fatalf("free booking status after withdrawal = %s", got)
	}
	st, err := f.reg.Statement(f.ctx, p, "olga")
	if err != nil || !st.Balanced() || st.PaidIn != 0 || st.Escrow != 0 {
		t.Fatalf("unexpected statement: %+v, %v", st, err)
	}
}

func TestWithdrawCutoffCannotRunAhead(t *testing.T) {
	f := newFixture(t)
	p := f.property("olga")
	room := f.room(p, "olga", 2, 3)
	f.wallet("carl", 100)

	pending := f.book(p, "carl", room, f.day(1), f.day(2), true, 3)

	w, err := f.reg.Withdraw(f.ctx, p, "olga", f.day(30))
	if err != nil {
		t.Fatal(err)
	}
	if w.Amount != 0 || w.Cutoff != f.today {
		t.Fatalf("future cutoff must be clamped to now: %+v", w)
	}
	if err := f.reg.Cancel(f.ctx, p, "carl", pending); err != nil {
		t.Fatalf("pending booking must remain refundable: %v", err)
	}
}

func TestWithdrawableTotalAcrossProperties(t *testing.T) {
	f := newFixture(t)
	p1 := f.property("olga")
	p2 := f.property("olga")
	other := f.property("piet")
	r1 := f.room(p1, "olga", 2, 3)
	r2 := f.room(p2, "olga", 4, 0)
	r3 := f.room(other, "piet", 8, 0)
	f.wallet("carl", 100)

	f.book(p1, "carl", r1, f.day(1), f.day(2), false, 2)
	f.book(p2, "carl", r2, f.day(1), f.day(3), false, 8)
	f.book(other, "carl", r3, f.day(1), f.day(2), false, 8)
	f.clock.Advance(3 * 24 * time.Hour)

	total, err := f.reg.WithdrawableTotal(f.ctx, "olga", f.clock.Now().Unix())
	if err != nil || total != 10 {
		t.Fatalf("WithdrawableTotal = %d, %v", total, err)
	}

	mine, _ := f.reg.CustomerBookings(f.ctx, "carl")
	if len(mine) != 3 || mine[0].PropertyID != p1 || mine[2].PropertyID != other {
		t.Fatalf("unexpected customer bookings: %+v", mine)
	}
	none, _ := f.reg.CustomerBookings(f.ctx, "nobody")
	if none == nil || len(none) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", none)
	}
}

func TestBookingVisibility(t *testing.T) {
	f := newFixture(t)
	p := f.property("olga")
	room := f.room(p, "olga", 2, 3)
	f.wallet("carl", 100)
	id := f.book(p, "carl", room, f.day(1), f.day(2), false, 2)

	if _, err := f.reg.GetBooking(f.ctx, p, "dora", id); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := f.reg.ListBookings(f.ctx, p, "carl"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := f.reg.Statement(f.ctx, p, "carl"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	list, _ := f.reg.ListBookingsForCustomer(f.ctx, p, "carl")
	if len(list) != 1 || list[0].ID != id {
		t.Fatalf("unexpected list: %+v", list)
	}
	list, _ = f.reg.ListBookingsForCustomer(f.ctx, p, "dora")
	if len(list) != 0 {
		t.Fatalf("expected no bookings for dora: %+v", list)
	}
}

func TestAvailabilityValidation(t *testing.T) {
	f := newFixture(t)
	p := f.property("olga")
	f.room(p, "olga", 2, 3)

	if _, err := f.reg.IsAvailable(f.ctx, p, 1, f.day(2), f.day(1)); !errors.Is(err, ErrInvalidDateRange) {
		t.Fatalf("expected ErrInvalidDateRange, got %v", err)
	}
	if _, err := f.reg.IsAvailable(f.ctx, p, 7, f.day(1), f.day(2)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.reg.AvailableRooms(f.ctx, p, f.day(1), f.day(1)); !errors.Is(err, ErrInvalidDateRange) {
		t.Fatalf("expected ErrInvalidDateRange, got %v", err)
	}
}

// flakyFunds refuses every release; collects go through to the ledger.
type flakyFunds struct {
	*LedgerFunds
}

func (flakyFunds) Release(context.Context, string, string, Amount, string) error {
	return ErrPaymentFailed
}

func TestFailedTransferLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	reg, err := NewRegistry(flakyFunds{f.funds}, WithClock(f.clock.Now))
	if err != nil {
		t.Fatal(err)
	}
	prop, err := reg.CreateProperty(f.ctx, "olga", "Inn", "", 2)
	if err != nil {
		t.Fatal(err)
	}
	room, _ := reg.AddRoom(f.ctx, prop.ID, "olga", 2, 3)
	f.wallet("carl", 10)

	past, err := reg.Book(f.ctx, prop.ID, "carl", room, f.day(1), f.day(2), false, 2)
	if err != nil {
		t.Fatal(err)
	}
	pending, err := reg.Book(f.ctx, prop.ID, "carl", room, f.day(5), f.day(6), true, 3)
	if err != nil {
		t.Fatal(err)
	}

	if err := reg.Cancel(f.ctx, prop.ID, "carl", pending); !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("expected ErrPaymentFailed, got %v", err)
	}
	b, _ := reg.GetBooking(f.ctx, prop.ID, "carl", pending)
	if b.Status != StatusPending {
		t.Fatalf("failed refund must keep the booking pending, got %s", b.Status)
	}

	f.clock.Advance(3 * 24 * time.Hour)
	if _, err := reg.Withdraw(f.ctx, prop.ID, "olga", f.clock.Now().Unix()); !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("expected ErrPaymentFailed, got %v", err)
	}
	b, _ = reg.GetBooking(f.ctx, prop.ID, "olga", past)
	if b.Status != StatusConfirmed {
		t.Fatalf("failed withdrawal must keep the booking confirmed, got %s", b.Status)
	}
	st, _ := reg.Statement(f.ctx, prop.ID, "olga")
	if !st.Balanced() || st.Escrow != 5 {
		t.Fatalf("statement out of balance: %+v", st)
	}
}

func TestNewRegistryRequiresFunds(t *testing.T) {
	if _, err := NewRegistry(nil); err == nil {
		t.Fatal("expected error without a funds rail")
	}
}

type countingClock struct {
	base  time.Time
	reads int
}

func (c *countingClock) Now() time.Time {
	c.reads++
	return c.base.Add(time.Duration(c.reads) * time.Second)
}

func TestOperationsReadClockOnce(t *testing.T) {
	f := newFixture(t)
	clock := &countingClock{base: f.clock.Now()}
	var last Event
	reg, err := NewRegistry(f.funds,
		WithClock(clock.Now),
		WithNotifier(NotifierFunc(func(_ context.Context, evt Event) error {
			last = evt
			return nil
		})),
	)
	if err != nil {
		t.Fatal(err)
	}
	f.wallet("carl", 10)

	var (
		prop      Property
		room      int64
		bookingID int64
	)
	steps := []struct {
		name    string
		run     func() error
		publish bool
	}{
		{"CreateProperty", func() (err error) { prop, err = reg.CreateProperty(f.ctx, "olga", "Inn", "", 3); return err }, true},
		{"AddRoom", func() (err error) { room, err = reg.AddRoom(f.ctx, prop.ID, "olga", 2, 3); return err }, true},
		{"Book", func() (err error) {
			bookingID, err = reg.Book(f.ctx, prop.ID, "carl", room, f.day(1), f.day(2), true, 3)
			return err
		}, true},
		{"Cancel", func() error { return reg.Cancel(f.ctx, prop.ID, "carl", bookingID) }, true},
		{"PreviewWithdrawal", func() error { _, err := reg.PreviewWithdrawal(f.ctx, prop.ID, "olga", f.day(9)); return err }, false},
		{"Withdraw", func() error { _, err := reg.Withdraw(f.ctx, prop.ID, "olga", f.day(9)); return err }, false},
	}
	for _, step := range steps {
		before := clock.reads
		if err := step.run(); err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		if got := clock.reads - before; got != 1 {
			t.Fatalf("%s read the clock %d times", step.name, got)
		}
		want := clock.base.Add(time.Duration(clock.reads) * time.Second).UTC()
		if step.publish && !last.OccurredAt.Equal(want) {
			t.Fatalf("%s event stamped %v, want %v", step.name, last.OccurredAt, want)
		}
	}
}
