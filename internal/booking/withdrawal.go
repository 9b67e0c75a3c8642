package booking

import "fmt"

// eligible selects the bookings whose check-in is before cutoff and whose
// funds have neither been refunded nor withdrawn. Ids come back ascending.
func (l *bookLedger) eligible(cutoff int64) ([]int64, Amount, error) {
	var (
		ids   []int64
		total Amount
	)
	for i := range l.entries {
		b := &l.entries[i]
		if !b.Status.Active() || b.StartDate >= cutoff {
			continue
		}
		sum, err := total.Add(b.AmountPaid)
		if err != nil {
			return nil, 0, err
		}
		total = sum
		ids = append(ids, b.ID)
	}
	return ids, total, nil
}

// markWithdrawn flips every selected booking to WITHDRAWN. The selection
// comes from eligible under the same lock, so every transition is legal.
func (l *bookLedger) markWithdrawn(ids []int64) error {
	selected := make([]*Booking, 0, len(ids))
	for _, id := range ids {
		b, err := l.get(id)
		if err != nil {
			return err
		}
		if !canTransition(b.Status, StatusWithdrawn) {
			return fmt.Errorf("%w: booking %d is %s", ErrNotCancellable, id, b.Status)
		}
		selected = append(selected, b)
	}
	for _, b := range selected {
		if err := l.transition(b, StatusWithdrawn); err != nil {
			return err
		}
	}
	return nil
}
