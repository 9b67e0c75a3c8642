package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"roomledger.org/internal/ledger"
)

const day = SecondsPerNight

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	clock  *fakeClock
	ledger *ledger.InMemory
	funds  *LedgerFunds
	reg    *Registry
	events []Event
	evMu   sync.Mutex
	today  int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:      t,
		ctx:    context.Background(),
		clock:  &fakeClock{now: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)},
		ledger: ledger.NewInMemory(),
	}
	f.today = f.clock.Now().Unix()
	funds, err := NewLedgerFunds(f.ledger, "eur")
	if err != nil {
		t.Fatalf("NewLedgerFunds: %v", err)
	}
	f.funds = funds
	reg, err := NewRegistry(funds,
		WithClock(f.clock.Now),
		WithNotifier(NotifierFunc(func(_ context.Context, evt Event) error {
			f.evMu.Lock()
			f.events = append(f.events, evt)
			f.evMu.Unlock()
			return nil
		})),
	)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	f.reg = reg
	return f
}

// day returns the timestamp n days after the fixture's "today".
func (f *fixture) day(n int64) int64 { return f.today + n*day }

func (f *fixture) wallet(holder string, amount int64) {
	f.t.Helper()
	if _, err := f.ledger.Deposit(f.ctx, WalletAccount(holder), ledger.Money{Currency: "EUR", Amount: amount}, ""); err != nil {
		f.t.Fatalf("fund wallet %s: %v", holder, err)
	}
}

func (f *fixture) balance(holder string) int64 {
	f.t.Helper()
	bal, err := f.ledger.GetBalance(f.ctx, WalletAccount(holder), "EUR")
	if err != nil {
		f.t.Fatalf("balance %s: %v", holder, err)
	}
	return bal.Amount
}

func (f *fixture) property(owner string) string {
	f.t.Helper()
	p, err := f.reg.CreateProperty(f.ctx, owner, "Hotel "+owner, "by the sea", 4)
	if err != nil {
		f.t.Fatalf("CreateProperty: %v", err)
	}
	return p.ID
}

func (f *fixture) room(propertyID, owner string, prepaid, cancellable Amount) int64 {
	f.t.Helper()
	id, err := f.reg.AddRoom(f.ctx, propertyID, owner, prepaid, cancellable)
	if err != nil {
		f.t.Fatalf("AddRoom: %v", err)
	}
	return id
}

func (f *fixture) book(propertyID, customer string, roomID, start, end int64, cancellable bool, pay Amount) int64 {
	f.t.Helper()
	id, err := f.reg.Book(f.ctx, propertyID, customer, roomID, start, end, cancellable, pay)
	if err != nil {
		f.t.Fatalf("Book(%d, [%d,%d), cancellable=%v, %d): %v", roomID, start, end, cancellable, pay, err)
	}
	return id
}

func (f *fixture) status(propertyID, caller string, bookingID int64) Status {
	f.t.Helper()
	b, err := f.reg.GetBooking(f.ctx, propertyID, caller, bookingID)
	if err != nil {
		f.t.Fatalf("GetBooking: %v", err)
	}
	return b.Status
}

func (f *fixture) kinds() []string {
	f.evMu.Lock()
	defer f.evMu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Kind)
	}
	return out
}
