package booking

import (
	"fmt"
	"math"
)

// Amount is a value in the smallest indivisible currency unit. No floats.
type Amount int64

func (a Amount) IsZero() bool     { return a == 0 }
func (a Amount) IsNegative() bool { return a < 0 }

// Add returns a+b or ErrAmountOverflow.
func (a Amount) Add(b Amount) (Amount, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, fmt.Errorf("%w: %d + %d", ErrAmountOverflow, a, b)
	}
	return a + b, nil
}

// Sub returns a-b. The result may not drop below zero.
func (a Amount) Sub(b Amount) (Amount, error) {
	if b < 0 {
		return 0, fmt.Errorf("%w: cannot subtract negative amount %d", ErrInvalidInput, b)
	}
	if a < b {
		return 0, fmt.Errorf("%w: %d - %d below zero", ErrAmountOverflow, a, b)
	}
	return a - b, nil
}

// MulNights returns the price of the given number of nights.
func (a Amount) MulNights(nights int64) (Amount, error) {
	if a < 0 || nights < 0 {
		return 0, fmt.Errorf("%w: negative price or nights", ErrInvalidInput)
	}
	if nights != 0 && a > math.MaxInt64/Amount(nights) {
		return 0, fmt.Errorf("%w: %d x %d nights", ErrAmountOverflow, a, nights)
	}
	return a * Amount(nights), nil
}

// SecondsPerNight is the length of one billable night.
const SecondsPerNight int64 = 24 * 60 * 60

// Nights counts billable nights in [start, end). A partial night is billed
// as a whole one.
func Nights(start, end int64) int64 {
	if end <= start {
		return 0
	}
	d := end - start
	n := d / SecondsPerNight
	if d%SecondsPerNight != 0 {
		n++
	}
	return n
}
