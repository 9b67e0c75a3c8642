package ledger

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
)

func fund(t *testing.T, s *InMemory, id string, amount int64) {
	t.Helper()
	if _, err := s.Deposit(context.Background(), id, Money{Currency: "EUR", Amount: amount}, ""); err != nil {
		t.Fatalf("deposit %s: %v", id, err)
	}
}

func TestTransferSuccessAndBalance(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	fund(t, s, "wallet:alice", 1000)
	if _, err := s.OpenAccount(ctx, "escrow:h1"); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Transfer(ctx, "wallet:alice", "escrow:h1", Money{Currency: "EUR", Amount: 600}, "k1"); err != nil {
		t.Fatal(err)
	}
	ba, _ := s.GetBalance(ctx, "wallet:alice", "EUR")
	bb, _ := s.GetBalance(ctx, "escrow:h1", "EUR")
	if ba.Amount != 400 || bb.Amount != 600 {
		t.Fatalf("unexpected balances: a=%d b=%d", ba.Amount, bb.Amount)
	}
}

func TestOpenAccountIsIdempotent(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	fund(t, s, "wallet:bob", 50)

	acc, err := s.OpenAccount(ctx, "wallet:bob")
	if err != nil {
		t.Fatal(err)
	}
	if acc.Balances["EUR"] != 50 {
		t.Fatalf("reopening must keep the balance, got %d", acc.Balances["EUR"])
	}
	if _, err := s.OpenAccount(ctx, " padded"); !errors.Is(err, ErrInvalidAccount) {
		t.Fatalf("expected ErrInvalidAccount, got %v", err)
	}
}

func TestInsufficientFunds(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	fund(t, s, "wallet:a", 100)
	_, _ = s.OpenAccount(ctx, "wallet:b")

	if _, err := s.Transfer(ctx, "wallet:a", "wallet:b", Money{Currency: "EUR", Amount: 200}, "k2"); err != ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestTransferUnknownAccount(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	fund(t, s, "wallet:a", 100)

	if _, err := s.Transfer(ctx, "wallet:a", "escrow:missing", Money{Currency: "EUR", Amount: 10}, ""); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Transfer(ctx, "wallet:a", "wallet:a", Money{Currency: "EUR", Amount: 10}, ""); err != ErrSameAccount {
		t.Fatalf("expected ErrSameAccount, got %v", err)
	}
}

func TestIdempotency(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	fund(t, s, "wallet:a", 1000)
	_, _ = s.OpenAccount(ctx, "wallet:b")

	tx1, err := s.Transfer(ctx, "wallet:a", "wallet:b", Money{Currency: "EUR", Amount: 100}, "same-key")
	if err != nil {
		t.Fatal(err)
	}
	tx2, err := s.Transfer(ctx, "wallet:a", "wallet:b", Money{Currency: "EUR", Amount: 100}, "same-key")
	if err != nil {
		t.Fatal(err)
	}
	if tx1.ID != tx2.ID || tx1.Sequence != tx2.Sequence {
		t.Fatalf("idempotency violated: %#v != %#v", tx1, tx2)
	}
	bal, _ := s.GetBalance(ctx, "wallet:a", "EUR")
	if bal.Amount != 900 {
		t.Fatalf("replayed transfer moved funds twice: %d", bal.Amount)
	}
}

func TestListTransactionsPaging(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	fund(t, s, "wallet:a", 10)
	fund(t, s, "wallet:a", 20)
	fund(t, s, "wallet:a", 30)

	page, next, err := s.ListTransactions(ctx, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || next != 2 {
		t.Fatalf("unexpected first page: %d items, next=%d", len(page), next)
	}
	if page[0].FromAccountID != "" {
		t.Fatalf("deposit must have no source account, got %q", page[0].FromAccountID)
	}
	page, next, _ = s.ListTransactions(ctx, 2, next)
	if len(page) != 1 || page[0].Amount != 30 || next != 3 {
		t.Fatalf("unexpected second page: %+v next=%d", page, next)
	}
}

func TestConcurrentTransfers(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	fund(t, s, "wallet:a", 10000)
	_, _ = s.OpenAccount(ctx, "wallet:b")

	var wg sync.WaitGroup
	N := 50
	for i := 0; i < N; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = s.Transfer(ctx, "wallet:a", "wallet:b", Money{Currency: "EUR", Amount: 100}, "")
		}(i)
	}
	wg.Wait()

	ba, _ := s.GetBalance(ctx, "wallet:a", "EUR")
	bb, _ := s.GetBalance(ctx, "wallet:b", "EUR")
	if ba.Amount+bb.Amount != 10000 {
		t.Fatalf("conservation violated: a+b=%d", ba.Amount+bb.Amount)
	}
	if bb.Amount != int64(N)*100 {
		t.Fatalf("expected every transfer to land, got %d", bb.Amount)
	}
}

func TestCreditsCannotOverflow(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	fund(t, s, "wallet:rich", math.MaxInt64)

	if _, err := s.Deposit(ctx, "wallet:rich", Money{Currency: "EUR", Amount: 2}, ""); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow on deposit, got %v", err)
	}
	bal, _ := s.GetBalance(ctx, "wallet:rich", "EUR")
	if bal.Amount != math.MaxInt64 {
		t.Fatalf("balance changed after rejected deposit: %d", bal.Amount)
	}
	if _, err := s.Deposit(ctx, "wallet:fresh", Money{Currency: "EUR", Amount: 1}, ""); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Transfer(ctx, "wallet:fresh", "wallet:rich", Money{Currency: "EUR", Amount: 1}, "t1"); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow on transfer, got %v", err)
	}
	from, _ := s.GetBalance(ctx, "wallet:fresh", "EUR")
	if from.Amount != 1 {
		t.Fatalf("rejected transfer debited the source: %d", from.Amount)
	}
	txs, _, err := s.ListTransactions(ctx, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 2 {
		t.Fatalf("rejected credits must not be journaled, got %d entries", len(txs))
	}
}
