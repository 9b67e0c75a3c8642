package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"roomledger.org/internal/ids"
	"roomledger.org/internal/ledger"
)

const (
	pgErrSerializationFailure = "40001"
	pgErrNumericOutOfRange    = "22003"
	maxTxAttempts             = 3
)

// Store implements ledger.Service on PostgreSQL. Every money movement runs
// in a serializable transaction and is retried on serialization failures.
type Store struct {
	db *sql.DB
}

var _ ledger.Service = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) OpenAccount(ctx context.Context, id string) (ledger.Account, error) {
	if !ledger.ValidAccountID(id) {
		return ledger.Account{}, ledger.ErrInvalidAccount
	}
	if _, err := s.db.ExecContext(ctx,
		`insert into accounts(id, created_at) values($1, now()) on conflict (id) do nothing`, id); err != nil {
		return ledger.Account{}, err
	}
	return s.GetAccount(ctx, id)
}

func (s *Store) Deposit(ctx context.Context, id string, amt ledger.Money, idemKey string) (ledger.Transaction, error) {
	if !ledger.ValidAccountID(id) {
		return ledger.Transaction{}, ledger.ErrInvalidAccount
	}
	if !amt.IsPositive() {
		return ledger.Transaction{}, ledger.ErrInvalidAmount
	}
	if amt.Currency == "" {
		return ledger.Transaction{}, ledger.ErrInvalidCurrency
	}

	var out ledger.Transaction
	err := s.serializable(ctx, func(tx *sql.Tx) error {
		if t, ok, err := findIdempotent(ctx, tx, idemKey); err != nil || ok {
			out = t
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`insert into accounts(id, created_at) values($1, now()) on conflict (id) do nothing`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			insert into balances(account_id, currency, amount)
			values ($1,$2,$3)
			on conflict (account_id, currency) do update
			set amount = balances.amount + excluded.amount
		`, id, amt.Currency, amt.Amount); err != nil {
			return err
		}
		t, err := record(ctx, tx, "", id, amt, idemKey)
		out = t
		return err
	})
	return out, err
}

func (s *Store) GetAccount(ctx context.Context, id string) (ledger.Account, error) {
	var created time.Time
	err := s.db.QueryRowContext(ctx, `select created_at from accounts where id=$1`, id).Scan(&created)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Account{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Account{}, err
	}

	rows, err := s.db.QueryContext(ctx, `select currency, amount from balances where account_id=$1`, id)
	if err != nil {
		return ledger.Account{}, err
	}
	defer rows.Close()

	bals := map[string]int64{}
	for rows.Next() {
		var c string
		var a int64
		if err := rows.Scan(&c, &a); err != nil {
			return ledger.Account{}, err
		}
		bals[c] = a
	}
	return ledger.Account{ID: id, CreatedAt: created, Balances: bals}, rows.Err()
}

func (s *Store) GetBalance(ctx context.Context, id, currency string) (ledger.Money, error) {
	var amt int64
	err := s.db.QueryRowContext(ctx, `
		select coalesce(b.amount,0)
		from accounts a
		left join balances b on b.account_id=a.id and b.currency=$2
		where a.id=$1
	`, id, currency).Scan(&amt)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Money{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Money{}, err
	}
	return ledger.Money{Currency: currency, Amount: amt}, nil
}

func (s *Store) Transfer(ctx context.Context, fromID, toID string, amt ledger.Money, idemKey string) (ledger.Transaction, error) {
	if !amt.IsPositive() {
		return ledger.Transaction{}, ledger.ErrInvalidAmount
	}
	if amt.Currency == "" {
		return ledger.Transaction{}, ledger.ErrInvalidCurrency
	}
	if fromID == toID {
		return ledger.Transaction{}, ledger.ErrSameAccount
	}

	var out ledger.Transaction
	err := s.serializable(ctx, func(tx *sql.Tx) error {
		if t, ok, err := findIdempotent(ctx, tx, idemKey); err != nil || ok {
			out = t
			return err
		}

		// Lock in a stable order to avoid deadlocks.
		for _, acc := range sorted(fromID, toID) {
			var dummy int
			if err := tx.QueryRowContext(ctx, `select 1 from accounts where id=$1 for update`, acc).Scan(&dummy); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return ledger.ErrNotFound
				}
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, `
			insert into balances(account_id, currency, amount)
			values ($1,$2,0) on conflict do nothing
		`, toID, amt.Currency); err != nil {
			return err
		}

		var fromBal int64
		err := tx.QueryRowContext(ctx, `
			select amount from balances where account_id=$1 and currency=$2 for update
		`, fromID, amt.Currency).Scan(&fromBal)
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.ErrInsufficientFunds
		}
		if err != nil {
			return err
		}
		if fromBal < amt.Amount {
			return ledger.ErrInsufficientFunds
		}

		if _, err := tx.ExecContext(ctx, `
			update balances set amount = amount - $3
			where account_id=$1 and currency=$2
		`, fromID, amt.Currency, amt.Amount); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			update balances set amount = amount + $3
			where account_id=$1 and currency=$2
		`, toID, amt.Currency, amt.Amount); err != nil {
			return err
		}
		t, err := record(ctx, tx, fromID, toID, amt, idemKey)
		out = t
		return err
	})
	return out, err
}

func (s *Store) ListTransactions(ctx context.Context, limit int, afterSeq uint64) ([]ledger.Transaction, uint64, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, created_at, coalesce(from_account_id,''), to_account_id, currency, amount, sequence, coalesce(idempotency_key,'')
		from transactions
		where sequence > $1
		order by sequence asc
		limit $2
	`, afterSeq, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var res []ledger.Transaction
	var last uint64
	for rows.Next() {
		var tx ledger.Transaction
		if err := rows.Scan(&tx.ID, &tx.CreatedAt, &tx.FromAccountID, &tx.ToAccountID, &tx.Currency, &tx.Amount, &tx.Sequence, &tx.IdempotencyKey); err != nil {
			return nil, 0, err
		}
		res = append(res, tx)
		last = tx.Sequence
	}
	return res, last, rows.Err()
}

// --- helpers ---

// serializable runs fn in a serializable transaction, retrying when
// PostgreSQL reports a serialization failure.
func (s *Store) serializable(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) {
			return err
		}
		switch pgErr.Code {
		case pgErrSerializationFailure:
		case pgErrNumericOutOfRange:
			return ledger.ErrOverflow
		default:
			return err
		}
	}
	return err
}

func (s *Store) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func findIdempotent(ctx context.Context, tx *sql.Tx, idemKey string) (ledger.Transaction, bool, error) {
	if idemKey == "" {
		return ledger.Transaction{}, false, nil
	}
	var t ledger.Transaction
	err := tx.QueryRowContext(ctx, `
		select id, created_at, coalesce(from_account_id,''), to_account_id, currency, amount, sequence, idempotency_key
		from transactions where idempotency_key=$1
	`, idemKey).Scan(&t.ID, &t.CreatedAt, &t.FromAccountID, &t.ToAccountID, &t.Currency, &t.Amount, &t.Sequence, &t.IdempotencyKey)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Transaction{}, false, nil
	}
	if err != nil {
		return ledger.Transaction{}, false, err
	}
	return t, true, nil
}

func record(ctx context.Context, tx *sql.Tx, fromID, toID string, amt ledger.Money, idemKey string) (ledger.Transaction, error) {
	t := ledger.Transaction{
		ID:             ids.New(),
		FromAccountID:  fromID,
		ToAccountID:    toID,
		Currency:       amt.Currency,
		Amount:         amt.Amount,
		IdempotencyKey: idemKey,
	}
	err := tx.QueryRowContext(ctx, `
		insert into transactions(id, from_account_id, to_account_id, currency, amount, idempotency_key)
		values ($1,nullif($2,''),$3,$4,$5,nullif($6,'')) returning sequence, created_at
	`, t.ID, fromID, toID, amt.Currency, amt.Amount, idemKey).Scan(&t.Sequence, &t.CreatedAt)
	return t, err
}

func sorted(a, b string) []string {
	if a <= b {
		return []string{a, b}
	}
	return []string{b, a}
}
