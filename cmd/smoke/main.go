// Command smoke runs one booking lifecycle end to end against the ledger
// (in memory, or Postgres when ROOMLEDGER_PG_DSN is set) and exits non-zero
// when any balance does not add up.
package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"roomledger.org/internal/booking"
	"roomledger.org/internal/ids"
	"roomledger.org/internal/ledger"
	"roomledger.org/internal/obs"
	"roomledger.org/internal/store/pg"
)

const currency = "EUR"

func main() {
	log := obs.Logger()

	var svc ledger.Service = ledger.NewInMemory()
	if dsn := os.Getenv("ROOMLEDGER_PG_DSN"); dsn != "" {
		store, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open postgres: %v", err)
		}
		defer store.Close()
		svc = store
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Unique names keep repeated runs against one database apart.
	run := ids.New()
	owner, guest := "owner-"+run, "guest-"+run

	now := time.Now().UTC().Truncate(24 * time.Hour)
	clock := func() time.Time { return now }
	night := booking.SecondsPerNight
	day1 := now.Unix() + night

	funds, err := booking.NewLedgerFunds(svc, currency)
	if err != nil {
		log.Fatalf("funds: %v", err)
	}
	reg, err := booking.NewRegistry(funds, booking.WithClock(clock))
	if err != nil {
		log.Fatalf("registry: %v", err)
	}

	if _, err := svc.OpenAccount(ctx, booking.WalletAccount(guest)); err != nil {
		log.Fatalf("open wallet: %v", err)
	}
	if _, err := svc.Deposit(ctx, booking.WalletAccount(guest), ledger.Money{Currency: currency, Amount: 100}, "smoke:"+run); err != nil {
		log.Fatalf("deposit: %v", err)
	}

	prop, err := reg.CreateProperty(ctx, owner, "Smoke Inn", "", 3)
	if err != nil {
		log.Fatalf("create property: %v", err)
	}
	room, err := reg.AddRoom(ctx, prop.ID, owner, 10, 12)
	if err != nil {
		log.Fatalf("add room: %v", err)
	}

	// Two prepaid nights, then one refundable night that is cancelled.
	if _, err := reg.Book(ctx, prop.ID, guest, room, day1, day1+2*night, false, 20); err != nil {
		log.Fatalf("book prepaid: %v", err)
	}
	flexible, err := reg.Book(ctx, prop.ID, guest, room, day1+2*night, day1+3*night, true, 12)
	if err != nil {
		log.Fatalf("book cancellable: %v", err)
	}
	if err := reg.Cancel(ctx, prop.ID, guest, flexible); err != nil {
		log.Fatalf("cancel: %v", err)
	}

	now = now.Add(2 * 24 * time.Hour)
	w, err := reg.Withdraw(ctx, prop.ID, owner, math.MaxInt64)
	if err != nil {
		log.Fatalf("withdraw: %v", err)
	}

	st, err := reg.Statement(ctx, prop.ID, owner)
	if err != nil {
		log.Fatalf("statement: %v", err)
	}
	guestBal, err := svc.GetBalance(ctx, booking.WalletAccount(guest), currency)
	if err != nil {
		log.Fatalf("guest balance: %v", err)
	}
	ownerBal, err := svc.GetBalance(ctx, booking.WalletAccount(owner), currency)
	if err != nil {
		log.Fatalf("owner balance: %v", err)
	}

	switch {
	case w.Amount != 20:
		log.Fatalf("withdrew %d, want 20", w.Amount)
	case guestBal.Amount != 80 || ownerBal.Amount != 20:
		log.Fatalf("unexpected balances: guest=%d owner=%d", guestBal.Amount, ownerBal.Amount)
	case guestBal.Amount+ownerBal.Amount+int64(st.Escrow) != 100:
		log.Fatalf("conservation failed: %d + %d + %d", guestBal.Amount, ownerBal.Amount, st.Escrow)
	case !st.Balanced():
		log.Fatalf("statement not balanced: %+v", st)
	}

	fmt.Printf("smoke test passed: property=%s paid_in=%d refunded=%d withdrawn=%d\n",
		prop.ID, st.PaidIn, st.Refunded, st.Withdrawn)
}
