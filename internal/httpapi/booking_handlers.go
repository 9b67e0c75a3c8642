package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"roomledger.org/internal/audit"
	"roomledger.org/internal/booking"
)

type createPropertyRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=4000"`
	Stars       int    `json:"stars" validate:"gte=0,lte=5"`
}

type addRoomRequest struct {
	PricePrepaid     int64 `json:"price_prepaid" validate:"gte=0"`
	PriceCancellable int64 `json:"price_cancellable" validate:"gte=0"`
}

type bookRequest struct {
	RoomID      int64 `json:"room_id" validate:"gt=0"`
	Start       Date  `json:"start" validate:"required"`
	End         Date  `json:"end" validate:"required"`
	Cancellable bool  `json:"cancellable"`
	Payment     int64 `json:"payment" validate:"gte=0"`
}

type withdrawRequest struct {
	Cutoff *Date `json:"cutoff"`
}

type availabilityResponse struct {
	PropertyID string `json:"property_id"`
	RoomID     int64  `json:"room_id"`
	Start      int64  `json:"start"`
	End        int64  `json:"end"`
	Available  bool   `json:"available"`
}

type availableRoomsResponse struct {
	PropertyID string  `json:"property_id"`
	Start      int64   `json:"start"`
	End        int64   `json:"end"`
	RoomIDs    []int64 `json:"room_ids"`
}

type amountResponse struct {
	Amount   booking.Amount `json:"amount"`
	Currency string         `json:"currency"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
}

func items[T any](v []T) listResponse[T] {
	if v == nil {
		v = []T{}
	}
	return listResponse[T]{Items: v}
}

// --- properties ---

func (a *API) createProperty(w http.ResponseWriter, r *http.Request) {
	owner, ok := caller(w, r)
	if !ok {
		return
	}
	var req createPropertyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	prop, err := a.bookings.CreateProperty(r.Context(), owner, req.Name, req.Description, req.Stars)
	if err != nil {
		handleBookingError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "property.create", map[string]any{
		"property_id": prop.ID,
		"name":        prop.Name,
	})
	w.Header().Set("Location", "/v1/properties/"+prop.ID)
	writeJSON(w, http.StatusCreated, prop)
}

func (a *API) listProperties(w http.ResponseWriter, r *http.Request) {
	if strings.EqualFold(r.URL.Query().Get("owner"), "me") {
		a.myProperties(w, r)
		return
	}
	props, err := a.bookings.ListProperties(r.Context())
	if err != nil {
		handleBookingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items(props))
}

func (a *API) myProperties(w http.ResponseWriter, r *http.Request) {
	owner, ok := caller(w, r)
	if !ok {
		return
	}
	props, err := a.bookings.ListOwnedProperties(r.Context(), owner)
	if err != nil {
		handleBookingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items(props))
}

func (a *API) getProperty(w http.ResponseWriter, r *http.Request) {
	prop, err := a.bookings.GetProperty(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		handleBookingError(w, r, err)
		return
	}
	rooms, err := a.bookings.RoomCount(r.Context(), prop.ID)
	if err != nil {
		handleBookingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		booking.Property
		RoomCount int64 `json:"room_count"`
	}{prop, rooms})
}

// --- rooms ---

func (a *API) addRoom(w http.ResponseWriter, r *http.Request) {
	owner, ok := caller(w, r)
	if !ok {
		return
	}
	var req addRoomRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	pid := mux.Vars(r)["id"]
	id, err := a.bookings.AddRoom(r.Context(), pid, owner, booking.Amount(req.PricePrepaid), booking.Amount(req.PriceCancellable))
	if err != nil {
		handleBookingError(w, r, err)
		return
	}
	room, err := a.bookings.GetRoom(r.Context(), pid, id)
	if err != nil {
		handleBookingError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/properties/"+pid+"/rooms/"+strconv.FormatInt(id, 10))
	writeJSON(w, http.StatusCreated, room)
}

func (a *API) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := a.bookings.ListRooms(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		handleBookingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items(rooms))
}

func (a *API) getRoom(w http.ResponseWriter, r *http.Request) {
	roomID, err := pathInt(r, "roomID")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	room, err := a.bookings.GetRoom(r.Context(), mux.Vars(r)["id"], roomID)
	if err != nil {
		handleBookingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (a *API) roomAvailability(w http.ResponseWriter, r *http.Request) {
	roomID, err := pathInt(r, "roomID")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	start, end, ok := interval(w, r)
	if !ok {
		return
	}
	pid := mux.Vars(r)["id"]
	free, err := a.bookings.IsAvailable(r.Context(), pid, roomID, start, end)
	if err != nil {
		handleBookingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, availabilityResponse{PropertyID: pid, RoomID: roomID, Start: start, End: end, Available: free})
}

func (a *API) availableRooms(w http.ResponseWriter, r *http.Request) {
	start, end, ok := interval(w, r)
	if !ok {
		return
	}
	pid := mux.Vars(r)["id"]
	ids, err := a.bookings.AvailableRooms(r.Context(), pid, start, end)
	if err != nil {
		handleBookingError(w, r, err)
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	writeJSON(w, http.StatusOK, availableRoomsResponse{PropertyID: pid, Start: start, End: end, RoomIDs: ids})
}

func interval(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	start, err := queryDate(r, "start")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return 0, 0, false
	}
	end, err := queryDate(r, "end")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return 0, 0, false
	}
	return start, end, true
}

// --- bookings ---

func (a *API) book(w http.ResponseWriter, r *http.Request) {
	customer, ok := caller(w, r)
	if !ok {
		return
	}
	var req bookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	pid := mux.Vars(r)["id"]
	id, err := a.bookings.Book(r.Context(), pid, customer, req.RoomID, int64(req.Start), int64(req.End), req.Cancellable, booking.Amount(req.Payment))
	if err != nil {
		handleBookingError(w, r, err)
		return
	}
	b, err := a.bookings.GetBooking(r.Context(), pid, customer, id)
	if err != nil {
		handleBookingError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "booking.create", map[string]any{
		"property_id": pid,
		"booking_id":  b.ID,
		"room_id":     b.RoomID,
		"amount":      int64(b.AmountPaid),
		"currency":    a.currency,
		"status":      b.Status.String(),
	})
	w.Header().Set("Location", "/v1/properties/"+pid+"/bookings/"+strconv.FormatInt(id, 10))
	writeJSON(w, http.StatusCreated, b)
}

// listBookings returns every booking to the owner and the caller's own
// bookings to anyone else.
func (a *API) listBookings(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	pid := mux.Vars(r)["id"]
	prop, err := a.bookings.GetProperty(r.Context(), pid)
	if err != nil {
		handleBookingError(w, r, err)
		return
	}
	var list []booking.Booking
	if prop.Owner == who {
		list, err = a.bookings.ListBookings(r.Context(), pid, who)
	} else {
		list, err = a.bookings.ListBookingsForCustomer(r.Context(), pid, who)
	}
	if err != nil {
		handleBookingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items(list))
}

func (a *API) getBooking(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, err := pathInt(r, "bookingID")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	b, err := a.bookings.GetBooking(r.Context(), mux.Vars(r)["id"], who, id)
	if err != nil {
		handleBookingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (a *API) cancelBooking(w http.ResponseWriter, r *http.Request) {
	customer, ok := caller(w, r)
	if !ok {
		return
	}
	id, err := pathInt(r, "bookingID")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	pid := mux.Vars(r)["id"]
	if err := a.bookings.Cancel(r.Context(), pid, customer, id); err != nil {
		handleBookingError(w, r, err)
		return
	}
	b, err := a.bookings.GetBooking(r.Context(), pid, customer, id)
	if err != nil {
		handleBookingError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "booking.cancel", map[string]any{
		"property_id": pid,
		"booking_id":  id,
		"refund":      int64(b.AmountPaid),
		"currency":    a.currency,
	})
	writeJSON(w, http.StatusOK, b)
}

func (a *API) myBookings(w http.ResponseWriter, r *http.Request) {
	customer, ok := caller(w, r)
	if !ok {
		return
	}
	list, err := a.bookings.CustomerBookings(r.Context(), customer)
	if err != nil {
		handleBookingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items(list))
}

// --- owner payouts ---

func (a *API) previewWithdrawal(w http.ResponseWriter, r *http.Request) {
	owner, ok := caller(w, r)
	if !ok {
		return
	}
	cutoff, err := queryCutoff(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	amt, err := a.bookings.PreviewWithdrawal(r.Context(), mux.Vars(r)["id"], owner, cutoff)
	if err != nil {
		handleBookingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: amt, Currency: a.currency})
}

func (a *API) withdraw(w http.ResponseWriter, r *http.Request) {
	owner, ok := caller(w, r)
	if !ok {
		return
	}
	var req withdrawRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}
	cutoff, err := queryCutoff(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Cutoff != nil {
		cutoff = int64(*req.Cutoff)
	}
	pid := mux.Vars(r)["id"]
	wd, err := a.bookings.Withdraw(r.Context(), pid, owner, cutoff)
	if err != nil {
		handleBookingError(w, r, err)
		return
	}
	if wd.BookingIDs == nil {
		wd.BookingIDs = []int64{}
	}
	if len(wd.BookingIDs) > 0 {
		_ = audit.LogEvent(r.Context(), "funds.withdraw", map[string]any{
			"property_id": pid,
			"amount":      int64(wd.Amount),
			"currency":    a.currency,
			"bookings":    len(wd.BookingIDs),
			"cutoff":      wd.Cutoff,
		})
	}
	writeJSON(w, http.StatusOK, wd)
}

func (a *API) statement(w http.ResponseWriter, r *http.Request) {
	owner, ok := caller(w, r)
	if !ok {
		return
	}
	st, err := a.bookings.Statement(r.Context(), mux.Vars(r)["id"], owner)
	if err != nil {
		handleBookingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		booking.Statement
		Currency string `json:"currency"`
		Balanced bool   `json:"balanced"`
	}{st, a.currency, st.Balanced()})
}

func (a *API) myWithdrawable(w http.ResponseWriter, r *http.Request) {
	owner, ok := caller(w, r)
	if !ok {
		return
	}
	cutoff, err := queryCutoff(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	amt, err := a.bookings.WithdrawableTotal(r.Context(), owner, cutoff)
	if err != nil {
		handleBookingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: amt, Currency: a.currency})
}
