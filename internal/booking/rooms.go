package booking

import "fmt"

// rooms is the room registry of one property. Ids are dense and start at 1,
// so rooms[i] holds room i+1. Callers hold the property lock.
type rooms struct {
	list []Room
}

func (rs *rooms) add(pricePrepaid, priceCancellable Amount) (Room, error) {
	if pricePrepaid.IsNegative() || priceCancellable.IsNegative() {
		return Room{}, fmt.Errorf("%w: prices must be >= 0", ErrInvalidPrice)
	}
	room := Room{
		ID:               int64(len(rs.list)) + 1,
		PricePrepaid:     pricePrepaid,
		PriceCancellable: priceCancellable,
	}
	rs.list = append(rs.list, room)
	return room, nil
}

func (rs *rooms) get(id int64) (Room, error) {
	if id < 1 || id > int64(len(rs.list)) {
		return Room{}, fmt.Errorf("%w: room %d", ErrNotFound, id)
	}
	return rs.list[id-1], nil
}

func (rs *rooms) count() int64 { return int64(len(rs.list)) }

func (rs *rooms) all() []Room {
	out := make([]Room, len(rs.list))
	copy(out, rs.list)
	return out
}
