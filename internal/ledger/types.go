package ledger

import (
	"errors"
	"strings"
	"time"

	"roomledger.org/internal/ids"
)

// Money is represented in minor units (e.g., cents). No floats.
type Money struct {
	Currency string `json:"currency"`
	Amount   int64  `json:"amount"`
}

func (m Money) IsPositive() bool { return m.Amount > 0 }
func (m Money) IsZero() bool     { return m.Amount == 0 }

// Account holds per-currency balances. Ids are chosen by the caller
// ("wallet:<holder>", "escrow:<property>").
type Account struct {
	ID        string           `json:"id"`
	CreatedAt time.Time        `json:"created_at"`
	Balances  map[string]int64 `json:"balances"` // currency -> minor units
}

// Transaction is a double-entry transfer result. Deposits have an empty
// FromAccountID: the funds enter the ledger from outside.
type Transaction struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	FromAccountID  string    `json:"from_account_id,omitempty"`
	ToAccountID    string    `json:"to_account_id"`
	Currency       string    `json:"currency"`
	Amount         int64     `json:"amount"` // minor units
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	Sequence       uint64    `json:"sequence"` // monotonic sequence number
}

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount (must be > 0)")
	ErrInvalidCurrency   = errors.New("invalid currency")
	ErrInvalidAccount    = errors.New("invalid account id")
	ErrSameAccount       = errors.New("source and destination must differ")
	ErrOverflow          = errors.New("balance would overflow")
)

const maxAccountIDLen = 128

// ValidAccountID reports whether id can name a ledger account.
func ValidAccountID(id string) bool {
	return id != "" && len(id) <= maxAccountIDLen && strings.TrimSpace(id) == id
}

func newID() string {
	return ids.New()
}
