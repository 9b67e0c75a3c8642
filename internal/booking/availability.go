package booking

import "fmt"

// Availability is answered by scanning the ledger: O(rooms × bookings per
// room). That is fine for a single property; a secondary interval index would
// only be needed at a much larger scale.

func isAvailable(rs *rooms, l *bookLedger, roomID, start, end int64) (bool, error) {
	if start >= end {
		return false, fmt.Errorf("%w: start %d must be before end %d", ErrInvalidDateRange, start, end)
	}
	if _, err := rs.get(roomID); err != nil {
		return false, err
	}
	return !l.overlapping(roomID, start, end), nil
}

func availableRooms(rs *rooms, l *bookLedger, start, end int64) ([]int64, error) {
	if start >= end {
		return nil, fmt.Errorf("%w: start %d must be before end %d", ErrInvalidDateRange, start, end)
	}
	free := make([]int64, 0, rs.count())
	for id := int64(1); id <= rs.count(); id++ {
		if !l.overlapping(id, start, end) {
			free = append(free, id)
		}
	}
	return free, nil
}
