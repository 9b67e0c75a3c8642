package ledger

import (
	"context"
	"math"
	"sync"
	"time"
)

// Service defines ledger operations.
type Service interface {
	OpenAccount(ctx context.Context, id string) (Account, error)
	Deposit(ctx context.Context, id string, amt Money, idemKey string) (Transaction, error)
	GetAccount(ctx context.Context, id string) (Account, error)
	GetBalance(ctx context.Context, id, currency string) (Money, error)
	Transfer(ctx context.Context, fromID, toID string, amt Money, idemKey string) (Transaction, error)
	ListTransactions(ctx context.Context, limit int, afterSeq uint64) ([]Transaction, uint64, error)
}

// InMemory implements Service with in-process concurrency safety.
type InMemory struct {
	mu    sync.RWMutex
	accts map[string]*Account
	seq   uint64
	txs   []Transaction
	idem  map[string]Transaction // idemKey -> tx
}

var _ Service = (*InMemory)(nil)

// NewInMemory creates a fresh ledger.
func NewInMemory() *InMemory {
	return &InMemory{
		accts: make(map[string]*Account),
		idem:  make(map[string]Transaction),
	}
}

// OpenAccount creates the account if it does not exist yet.
func (s *InMemory) OpenAccount(ctx context.Context, id string) (Account, error) {
	if !ValidAccountID(id) {
		return Account{}, ErrInvalidAccount
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accts[id]
	if !ok {
		acc = &Account{
			ID:        id,
			CreatedAt: time.Now().UTC(),
			Balances:  map[string]int64{},
		}
		s.accts[id] = acc
	}
	return copyAccount(acc), nil
}

// Deposit credits funds entering from outside the ledger. The account is
// opened on first deposit.
func (s *InMemory) Deposit(ctx context.Context, id string, amt Money, idemKey string) (Transaction, error) {
	if !ValidAccountID(id) {
		return Transaction{}, ErrInvalidAccount
	}
	if !amt.IsPositive() {
		return Transaction{}, ErrInvalidAmount
	}
	if amt.Currency == "" {
		return Transaction{}, ErrInvalidCurrency
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tx, ok := s.replay(idemKey); ok {
		return tx, nil
	}
	acc, ok := s.accts[id]
	if !ok {
		acc = &Account{ID: id, CreatedAt: time.Now().UTC(), Balances: map[string]int64{}}
	}
	bal, err := credit(acc.Balances[amt.Currency], amt.Amount)
	if err != nil {
		return Transaction{}, err
	}
	s.accts[id] = acc
	acc.Balances[amt.Currency] = bal
	return s.record("", id, amt, idemKey), nil
}

func (s *InMemory) GetAccount(ctx context.Context, id string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return copyAccount(acc), nil
}

func (s *InMemory) GetBalance(ctx context.Context, id, currency string) (Money, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accts[id]
	if !ok {
		return Money{}, ErrNotFound
	}
	return Money{Currency: currency, Amount: acc.Balances[currency]}, nil
}

func (s *InMemory) Transfer(ctx context.Context, fromID, toID string, amt Money, idemKey string) (Transaction, error) {
	if !amt.IsPositive() {
		return Transaction{}, ErrInvalidAmount
	}
	if amt.Currency == "" {
		return Transaction{}, ErrInvalidCurrency
	}
	if fromID == toID {
		return Transaction{}, ErrSameAccount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tx, ok := s.replay(idemKey); ok {
		return tx, nil
	}

	from, ok := s.accts[fromID]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	to, ok := s.accts[toID]
	if !ok {
		return Transaction{}, ErrNotFound
	}

	// Double-entry invariant: total debits == total credits (same currency).
	if from.Balances[amt.Currency] < amt.Amount {
		return Transaction{}, ErrInsufficientFunds
	}
	credited, err := credit(to.Balances[amt.Currency], amt.Amount)
	if err != nil {
		return Transaction{}, err
	}
	from.Balances[amt.Currency] -= amt.Amount
	to.Balances[amt.Currency] = credited

	return s.record(fromID, toID, amt, idemKey), nil
}

func (s *InMemory) ListTransactions(ctx context.Context, limit int, afterSeq uint64) ([]Transaction, uint64, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []Transaction
	var last uint64
	for _, tx := range s.txs {
		if tx.Sequence <= afterSeq {
			continue
		}
		res = append(res, tx)
		last = tx.Sequence
		if len(res) >= limit {
			break
		}
	}
	return res, last, nil
}

func (s *InMemory) replay(idemKey string) (Transaction, bool) {
	if idemKey == "" {
		return Transaction{}, false
	}
	tx, ok := s.idem[idemKey]
	return tx, ok
}

// record appends a transaction. Caller holds the write lock.
func (s *InMemory) record(fromID, toID string, amt Money, idemKey string) Transaction {
	s.seq++
	tx := Transaction{
		ID:             newID(),
		CreatedAt:      time.Now().UTC(),
		FromAccountID:  fromID,
		ToAccountID:    toID,
		Currency:       amt.Currency,
		Amount:         amt.Amount,
		IdempotencyKey: idemKey,
		Sequence:       s.seq,
	}
	s.txs = append(s.txs, tx)
	if idemKey != "" {
		s.idem[idemKey] = tx
	}
	return tx
}

func copyAccount(acc *Account) Account {
	out := *acc
	out.Balances = make(map[string]int64, len(acc.Balances))
	for k, v := range acc.Balances {
		out.Balances[k] = v
	}
	return out
}

// credit adds a positive amount to a balance without wrapping.
func credit(balance, amount int64) (int64, error) {
	if balance > math.MaxInt64-amount {
		return 0, ErrOverflow
	}
	return balance + amount, nil
}
