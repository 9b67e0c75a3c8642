package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"roomledger.org/internal/auth"
	"roomledger.org/internal/booking"
	"roomledger.org/internal/ledger"
	"roomledger.org/internal/obs"
)

var validate = validator.New()

// decodeJSON decodes exactly one JSON document into dst and runs the struct
// validation tags.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	if err := validate.Struct(dst); err != nil {
		return validationMessage(err)
	}
	return nil
}

func validationMessage(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "max", "lte":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s", field, fe.Param()))
		case "min", "gte":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", field, fe.Param()))
		case "gt":
			msgs = append(msgs, fmt.Sprintf("%s must be greater than %s", field, fe.Param()))
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

// rejectionReason is the metric label for a booking-core error.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, booking.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, booking.ErrNotFound):
		return "not_found"
	case errors.Is(err, booking.ErrInvalidDateRange):
		return "invalid_date_range"
	case errors.Is(err, booking.ErrInvalidPrice):
		return "invalid_price"
	case errors.Is(err, booking.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, booking.ErrRoomUnavailable):
		return "room_unavailable"
	case errors.Is(err, booking.ErrNotCancellable):
		return "not_cancellable"
	case errors.Is(err, booking.ErrTooLate):
		return "too_late"
	case errors.Is(err, booking.ErrInsufficientPayment):
		return "insufficient_payment"
	case errors.Is(err, booking.ErrOverPayment):
		return "over_payment"
	case errors.Is(err, booking.ErrPaymentFailed):
		return "payment_failed"
	case errors.Is(err, booking.ErrAmountOverflow):
		return "amount_overflow"
	default:
		return "internal"
	}
}

func handleBookingError(w http.ResponseWriter, r *http.Request, err error) {
	obs.RecordRejection(rejectionReason(err))
	switch {
	case errors.Is(err, booking.ErrUnauthorized):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, booking.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, booking.ErrInvalidDateRange),
		errors.Is(err, booking.ErrInvalidPrice),
		errors.Is(err, booking.ErrInvalidInput),
		errors.Is(err, booking.ErrAmountOverflow):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, booking.ErrRoomUnavailable),
		errors.Is(err, booking.ErrNotCancellable),
		errors.Is(err, booking.ErrTooLate):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, booking.ErrInsufficientPayment),
		errors.Is(err, booking.ErrOverPayment),
		errors.Is(err, booking.ErrPaymentFailed):
		writeError(w, r, http.StatusPaymentRequired, err.Error())
	default:
		obs.Logger().WithError(err).WithField("request_id", RequestIDFromContext(r.Context())).Error("booking operation failed")
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func handleLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidCurrency),
		errors.Is(err, ledger.ErrInvalidAccount),
		errors.Is(err, ledger.ErrSameAccount),
		errors.Is(err, ledger.ErrOverflow):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		obs.Logger().WithError(err).WithField("request_id", RequestIDFromContext(r.Context())).Error("ledger operation failed")
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, "user already exists")
	case errors.Is(err, auth.ErrUnauthorized):
		unauthorized(w, r, "invalid credentials")
	default:
		obs.Logger().WithError(err).WithField("request_id", RequestIDFromContext(r.Context())).Error("auth operation failed")
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}
