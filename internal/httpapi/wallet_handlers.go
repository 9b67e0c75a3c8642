package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"roomledger.org/internal/audit"
	"roomledger.org/internal/auth"
	"roomledger.org/internal/booking"
	"roomledger.org/internal/ledger"
)

type depositRequest struct {
	Holder         string `json:"holder" validate:"required,max=64"`
	Amount         int64  `json:"amount" validate:"gt=0"`
	IdempotencyKey string `json:"idempotency_key" validate:"max=128"`
}

type listTransactionsResponse struct {
	Items     []ledger.Transaction `json:"items"`
	NextAfter uint64               `json:"next_after"`
	AsOf      time.Time            `json:"as_of"`
}

// deposit credits a customer wallet from outside the system. Admin only.
func (a *API) deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	idem := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if req.IdempotencyKey != "" {
		bodyKey := strings.TrimSpace(req.IdempotencyKey)
		if idem == "" {
			idem = bodyKey
		} else if idem != bodyKey {
			writeError(w, r, http.StatusBadRequest, "Idempotency-Key header and body value must match")
			return
		}
	}
	if len(idem) > 128 {
		writeError(w, r, http.StatusBadRequest, "Idempotency-Key too long")
		return
	}
	if idem != "" {
		// Client keys get their own namespace in the ledger.
		idem = "deposit:" + idem
	}

	holder := strings.TrimSpace(req.Holder)
	start := time.Now().UTC()
	tx, err := a.ledger.Deposit(r.Context(), booking.WalletAccount(holder), ledger.Money{
		Currency: a.currency,
		Amount:   req.Amount,
	}, idem)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	replayed := idem != "" && tx.CreatedAt.Before(start)

	meta := map[string]any{
		"holder":   holder,
		"amount":   req.Amount,
		"currency": a.currency,
	}
	if idem != "" {
		meta["idempotency_key"] = idem
		w.Header().Set("Idempotency-Key", strings.TrimPrefix(idem, "deposit:"))
	}
	event := "wallet.deposit"
	if replayed {
		event = "wallet.deposit.idempotent_replay"
	}
	_ = audit.LogEvent(r.Context(), event, meta)

	writeJSON(w, http.StatusCreated, tx)
}

// walletBalance is visible to the holder and to admins.
func (a *API) walletBalance(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	holder := mux.Vars(r)["holder"]
	if holder != who && !auth.HasRole(r.Context(), auth.RoleAdmin) {
		writeError(w, r, http.StatusForbidden, "not your wallet")
		return
	}
	bal, err := a.ledger.GetBalance(r.Context(), booking.WalletAccount(holder), a.currency)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

// listTransactions pages through the ledger journal. Admin only.
func (a *API) listTransactions(w http.ResponseWriter, r *http.Request) {
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 100, 1, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var after uint64
	if raw := strings.TrimSpace(r.URL.Query().Get("after")); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "after must be a non-negative integer")
			return
		}
		after = n
	}

	list, next, err := a.ledger.ListTransactions(r.Context(), limit, after)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	if list == nil {
		list = []ledger.Transaction{}
	}
	writeJSON(w, http.StatusOK, listTransactionsResponse{
		Items:     list,
		NextAfter: next,
		AsOf:      time.Now().UTC(),
	})
}
