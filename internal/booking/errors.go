package booking

import "errors"

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrNotFound            = errors.New("not found")
	ErrInvalidDateRange    = errors.New("invalid date range")
	ErrRoomUnavailable     = errors.New("room unavailable")
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrOverPayment         = errors.New("over payment")
	ErrNotCancellable      = errors.New("booking not cancellable")
	ErrTooLate             = errors.New("too late")
	ErrInvalidPrice        = errors.New("invalid price")
	ErrInvalidInput        = errors.New("invalid input")
	ErrAmountOverflow      = errors.New("amount overflow")
	ErrPaymentFailed       = errors.New("payment failed")
)
