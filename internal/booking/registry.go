package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"roomledger.org/internal/ids"
)

// Service is the command/query surface of the booking core.
type Service interface {
	CreateProperty(ctx context.Context, owner, name, description string, stars int) (Property, error)
	ListProperties(ctx context.Context) ([]Property, error)
	ListOwnedProperties(ctx context.Context, owner string) ([]Property, error)
	GetProperty(ctx context.Context, propertyID string) (Property, error)

	AddRoom(ctx context.Context, propertyID, caller string, pricePrepaid, priceCancellable Amount) (int64, error)
	GetRoom(ctx context.Context, propertyID string, roomID int64) (Room, error)
	ListRooms(ctx context.Context, propertyID string) ([]Room, error)
	RoomCount(ctx context.Context, propertyID string) (int64, error)

	Book(ctx context.Context, propertyID, caller string, roomID, start, end int64, wantsCancellable bool, payment Amount) (int64, error)
	Cancel(ctx context.Context, propertyID, caller string, bookingID int64) error
	GetBooking(ctx context.Context, propertyID, caller string, bookingID int64) (Booking, error)
	ListBookings(ctx context.Context, propertyID, caller string) ([]Booking, error)
	ListBookingsForCustomer(ctx context.Context, propertyID, customer string) ([]Booking, error)
	CustomerBookings(ctx context.Context, customer string) ([]Booking, error)

	IsAvailable(ctx context.Context, propertyID string, roomID, start, end int64) (bool, error)
	AvailableRooms(ctx context.Context, propertyID string, start, end int64) ([]int64, error)

	PreviewWithdrawal(ctx context.Context, propertyID, caller string, cutoff int64) (Amount, error)
	Withdraw(ctx context.Context, propertyID, caller string, cutoff int64) (Withdrawal, error)
	WithdrawableTotal(ctx context.Context, owner string, cutoff int64) (Amount, error)
	Statement(ctx context.Context, propertyID, caller string) (Statement, error)
}

const maxStars = 5

// Registry creates properties and routes every operation to the owning
// property. It implements Service.
type Registry struct {
	mu      sync.RWMutex
	hotels  map[string]*hotel
	order   []string
	byOwner map[string][]string

	funds    Funds
	clock    func() time.Time
	notifier Notifier
	tracer   trace.Tracer
	newID    func() string
}

var _ Service = (*Registry)(nil)

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the trusted time source. Each operation reads it once.
func WithClock(clock func() time.Time) Option {
	return func(r *Registry) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithNotifier sets the receiver of committed events.
func WithNotifier(n Notifier) Option {
	return func(r *Registry) {
		if n != nil {
			r.notifier = n
		}
	}
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(r *Registry) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithIDGenerator overrides property id generation.
func WithIDGenerator(gen func() string) Option {
	return func(r *Registry) {
		if gen != nil {
			r.newID = gen
		}
	}
}

// NewRegistry returns an empty, ready to use registry.
func NewRegistry(funds Funds, opts ...Option) (*Registry, error) {
	if funds == nil {
		return nil, errors.New("funds rail is required")
	}
	r := &Registry{
		hotels:   make(map[string]*hotel),
		byOwner:  make(map[string][]string),
		funds:    funds,
		clock:    time.Now,
		notifier: nopNotifier{},
		tracer:   otel.Tracer("roomledger.org/internal/booking"),
		newID:    ids.New,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Registry) CreateProperty(ctx context.Context, owner, name, description string, stars int) (prop Property, err error) {
	ctx, span := r.start(ctx, "CreateProperty", attribute.String("owner", owner))
	defer func() { finish(span, err) }()

	owner = strings.TrimSpace(owner)
	if owner == "" {
		return Property{}, fmt.Errorf("%w: owner is required", ErrUnauthorized)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Property{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if stars < 0 || stars > maxStars {
		return Property{}, fmt.Errorf("%w: stars must be between 0 and %d", ErrInvalidInput, maxStars)
	}

	now := r.clock().UTC()
	prop = Property{
		ID:          r.newID(),
		Owner:       owner,
		Name:        name,
		Description: strings.TrimSpace(description),
		Stars:       stars,
		CreatedAt:   now,
	}
	if err := r.funds.OpenEscrow(ctx, prop.ID); err != nil {
		return Property{}, fmt.Errorf("open escrow: %w", err)
	}

	r.mu.Lock()
	r.hotels[prop.ID] = newHotel(prop, r.funds)
	r.order = append(r.order, prop.ID)
	r.byOwner[owner] = append(r.byOwner[owner], prop.ID)
	r.mu.Unlock()

	r.publish(ctx, now, Event{Kind: EventPropertyCreated, PropertyID: prop.ID, Actor: owner})
	return prop, nil
}

func (r *Registry) ListProperties(ctx context.Context) ([]Property, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Property, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.hotels[id].property())
	}
	return out, nil
}

func (r *Registry) ListOwnedProperties(ctx context.Context, owner string) ([]Property, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owned := r.byOwner[owner]
	out := make([]Property, 0, len(owned))
	for _, id := range owned {
		out = append(out, r.hotels[id].property())
	}
	return out, nil
}

func (r *Registry) GetProperty(ctx context.Context, propertyID string) (Property, error) {
	h, err := r.hotel(propertyID)
	if err != nil {
		return Property{}, err
	}
	return h.property(), nil
}

func (r *Registry) AddRoom(ctx context.Context, propertyID, caller string, pricePrepaid, priceCancellable Amount) (id int64, err error) {
	ctx, span := r.start(ctx, "AddRoom", attribute.String("property.id", propertyID))
	defer func() { finish(span, err) }()

	h, err := r.hotel(propertyID)
	if err != nil {
		return 0, err
	}
	room, err := h.addRoom(caller, pricePrepaid, priceCancellable)
	if err != nil {
		return 0, err
	}
	r.publish(ctx, r.clock().UTC(), Event{Kind: EventRoomAdded, PropertyID: propertyID, Actor: caller, RoomID: room.ID})
	return room.ID, nil
}

func (r *Registry) GetRoom(ctx context.Context, propertyID string, roomID int64) (Room, error) {
	h, err := r.hotel(propertyID)
	if err != nil {
		return Room{}, err
	}
	return h.room(roomID)
}

func (r *Registry) ListRooms(ctx context.Context, propertyID string) ([]Room, error) {
	h, err := r.hotel(propertyID)
	if err != nil {
		return nil, err
	}
	return h.roomList(), nil
}

func (r *Registry) RoomCount(ctx context.Context, propertyID string) (int64, error) {
	h, err := r.hotel(propertyID)
	if err != nil {
		return 0, err
	}
	return h.roomCount(), nil
}

func (r *Registry) Book(ctx context.Context, propertyID, caller string, roomID, start, end int64, wantsCancellable bool, payment Amount) (id int64, err error) {
	ctx, span := r.start(ctx, "Book",
		attribute.String("property.id", propertyID),
		attribute.Int64("room.id", roomID),
		attribute.Bool("cancellable", wantsCancellable),
	)
	defer func() { finish(span, err) }()

	h, err := r.hotel(propertyID)
	if err != nil {
		return 0, err
	}
	now := r.clock().UTC()
	b, err := h.book(ctx, caller, roomID, start, end, wantsCancellable, payment, now.Unix())
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int64("booking.id", b.ID))
	r.publish(ctx, now, Event{
		Kind:       EventBookingCreated,
		PropertyID: propertyID,
		Actor:      caller,
		RoomID:     b.RoomID,
		BookingID:  b.ID,
		Status:     b.Status.String(),
		Amount:     b.AmountPaid,
		StartDate:  b.StartDate,
		EndDate:    b.EndDate,
	})
	return b.ID, nil
}

func (r *Registry) Cancel(ctx context.Context, propertyID, caller string, bookingID int64) (err error) {
	ctx, span := r.start(ctx, "Cancel",
		attribute.String("property.id", propertyID),
		attribute.Int64("booking.id", bookingID),
	)
	defer func() { finish(span, err) }()

	h, err := r.hotel(propertyID)
	if err != nil {
		return err
	}
	now := r.clock().UTC()
	b, err := h.cancel(ctx, caller, bookingID, now.Unix())
	if err != nil {
		return err
	}
	r.publish(ctx, now, Event{
		Kind:       EventBookingCancelled,
		PropertyID: propertyID,
		Actor:      caller,
		RoomID:     b.RoomID,
		BookingID:  b.ID,
		Status:     b.Status.String(),
		Amount:     b.AmountPaid,
		StartDate:  b.StartDate,
		EndDate:    b.EndDate,
	})
	return nil
}

func (r *Registry) GetBooking(ctx context.Context, propertyID, caller string, bookingID int64) (Booking, error) {
	h, err := r.hotel(propertyID)
	if err != nil {
		return Booking{}, err
	}
	return h.booking(caller, bookingID)
}

func (r *Registry) ListBookings(ctx context.Context, propertyID, caller string) ([]Booking, error) {
	h, err := r.hotel(propertyID)
	if err != nil {
		return nil, err
	}
	return h.allBookings(caller)
}

func (r *Registry) ListBookingsForCustomer(ctx context.Context, propertyID, customer string) ([]Booking, error) {
	h, err := r.hotel(propertyID)
	if err != nil {
		return nil, err
	}
	return h.bookingsFor(customer), nil
}

// CustomerBookings lists a customer's bookings across every property, in
// property creation order then booking id order.
func (r *Registry) CustomerBookings(ctx context.Context, customer string) ([]Booking, error) {
	var out []Booking
	for _, h := range r.snapshot() {
		out = append(out, h.bookingsFor(customer)...)
	}
	if out == nil {
		out = []Booking{}
	}
	return out, nil
}

func (r *Registry) IsAvailable(ctx context.Context, propertyID string, roomID, start, end int64) (bool, error) {
	h, err := r.hotel(propertyID)
	if err != nil {
		return false, err
	}
	return h.isAvailable(roomID, start, end)
}

func (r *Registry) AvailableRooms(ctx context.Context, propertyID string, start, end int64) ([]int64, error) {
	h, err := r.hotel(propertyID)
	if err != nil {
		return nil, err
	}
	return h.availableRooms(start, end)
}

func (r *Registry) PreviewWithdrawal(ctx context.Context, propertyID, caller string, cutoff int64) (Amount, error) {
	h, err := r.hotel(propertyID)
	if err != nil {
		return 0, err
	}
	return h.previewWithdrawal(caller, clampCutoff(cutoff, r.clock().Unix()))
}

func (r *Registry) Withdraw(ctx context.Context, propertyID, caller string, cutoff int64) (w Withdrawal, err error) {
	ctx, span := r.start(ctx, "Withdraw", attribute.String("property.id", propertyID))
	defer func() { finish(span, err) }()

	h, err := r.hotel(propertyID)
	if err != nil {
		return Withdrawal{}, err
	}
	now := r.clock().UTC()
	w, err = h.withdraw(ctx, caller, clampCutoff(cutoff, now.Unix()))
	if err != nil {
		return Withdrawal{}, err
	}
	span.SetAttributes(attribute.Int64("amount", int64(w.Amount)), attribute.Int("bookings", len(w.BookingIDs)))
	if len(w.BookingIDs) > 0 {
		r.publish(ctx, now, Event{
			Kind:       EventFundsWithdrawn,
			PropertyID: propertyID,
			Actor:      caller,
			BookingIDs: w.BookingIDs,
			Status:     StatusWithdrawn.String(),
			Amount:     w.Amount,
		})
	}
	return w, nil
}

// WithdrawableTotal sums PreviewWithdrawal over every property the owner holds.
func (r *Registry) WithdrawableTotal(ctx context.Context, owner string, cutoff int64) (Amount, error) {
	owned, err := r.ListOwnedProperties(ctx, owner)
	if err != nil {
		return 0, err
	}
	var total Amount
	for _, p := range owned {
		amt, err := r.PreviewWithdrawal(ctx, p.ID, owner, cutoff)
		if err != nil {
			return 0, err
		}
		if total, err = total.Add(amt); err != nil {
			return 0, err
		}
	}
	return total, nil
}

func (r *Registry) Statement(ctx context.Context, propertyID, caller string) (Statement, error) {
	h, err := r.hotel(propertyID)
	if err != nil {
		return Statement{}, err
	}
	return h.statement(ctx, caller)
}

// --- helpers ---

func (r *Registry) hotel(propertyID string) (*hotel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.hotels[propertyID]
	if !ok {
		return nil, fmt.Errorf("%w: property %s", ErrNotFound, propertyID)
	}
	return h, nil
}

func (r *Registry) snapshot() []*hotel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*hotel, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.hotels[id])
	}
	return out
}

// clampCutoff keeps the cutoff from running ahead of the trusted clock, so a
// pending booking can never be withdrawn before its check-in.
func clampCutoff(cutoff, now int64) int64 {
	if cutoff > now {
		return now
	}
	return cutoff
}

// publish stamps the event with the operation's clock reading.
func (r *Registry) publish(ctx context.Context, at time.Time, evt Event) {
	evt.OccurredAt = at
	_ = r.notifier.Notify(ctx, evt)
}

func (r *Registry) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, "booking."+op, trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
