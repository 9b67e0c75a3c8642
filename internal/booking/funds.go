package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"roomledger.org/internal/ledger"
)

// Funds moves money between customer wallets, a property's escrow and the
// owner. Every call is a single all-or-nothing transfer; ref is used as the
// idempotency key so a retried call never moves money twice.
type Funds interface {
	OpenEscrow(ctx context.Context, propertyID string) error
	Collect(ctx context.Context, from, propertyID string, amt Amount, ref string) error
	Release(ctx context.Context, propertyID, to string, amt Amount, ref string) error
	Escrow(ctx context.Context, propertyID string) (Amount, error)
}

// WalletAccount is the ledger account id of a caller's wallet.
func WalletAccount(holder string) string { return "wallet:" + holder }

// EscrowAccount is the ledger account id holding a property's collected funds.
func EscrowAccount(propertyID string) string { return "escrow:" + propertyID }

// LedgerFunds implements Funds on top of a ledger.Service.
type LedgerFunds struct {
	svc      ledger.Service
	currency string
}

var _ Funds = (*LedgerFunds)(nil)

// NewLedgerFunds binds the funds rail to a ledger and a single currency.
func NewLedgerFunds(svc ledger.Service, currency string) (*LedgerFunds, error) {
	if svc == nil {
		return nil, errors.New("ledger service is required")
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return nil, ledger.ErrInvalidCurrency
	}
	return &LedgerFunds{svc: svc, currency: currency}, nil
}

func (f *LedgerFunds) Currency() string { return f.currency }

func (f *LedgerFunds) OpenEscrow(ctx context.Context, propertyID string) error {
	_, err := f.svc.OpenAccount(ctx, EscrowAccount(propertyID))
	return err
}

func (f *LedgerFunds) Collect(ctx context.Context, from, propertyID string, amt Amount, ref string) error {
	_, err := f.svc.Transfer(ctx, WalletAccount(from), EscrowAccount(propertyID), f.money(amt), ref)
	if err != nil {
		return fmt.Errorf("%w: collect from %s: %w", ErrPaymentFailed, from, err)
	}
	return nil
}

func (f *LedgerFunds) Release(ctx context.Context, propertyID, to string, amt Amount, ref string) error {
	if _, err := f.svc.OpenAccount(ctx, WalletAccount(to)); err != nil {
		return fmt.Errorf("%w: open wallet %s: %w", ErrPaymentFailed, to, err)
	}
	_, err := f.svc.Transfer(ctx, EscrowAccount(propertyID), WalletAccount(to), f.money(amt), ref)
	if err != nil {
		return fmt.Errorf("%w: release to %s: %w", ErrPaymentFailed, to, err)
	}
	return nil
}

func (f *LedgerFunds) Escrow(ctx context.Context, propertyID string) (Amount, error) {
	bal, err := f.svc.GetBalance(ctx, EscrowAccount(propertyID), f.currency)
	if err != nil {
		return 0, err
	}
	return Amount(bal.Amount), nil
}

func (f *LedgerFunds) money(amt Amount) ledger.Money {
	return ledger.Money{Currency: f.currency, Amount: int64(amt)}
}
