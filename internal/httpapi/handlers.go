package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"roomledger.org/internal/auth"
	"roomledger.org/internal/booking"
	"roomledger.org/internal/ledger"
	"roomledger.org/internal/obs"
	"roomledger.org/internal/stream"
)

const serviceName = "roomledger-api"

// ReadyProbe is a simple readiness check (e.g. a database ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// Options carries everything the HTTP layer needs.
type Options struct {
	Bookings  booking.Service
	Ledger    ledger.Service
	Currency  string
	Directory *auth.Directory
	Stream    *stream.Stream
	Ready     readinessChecker
	Version   string

	RateBurst  int
	RatePerSec int
	MaxBody    int64
	Origins    []string
}

// API is the HTTP layer.
type API struct {
	router    *mux.Router
	handler   http.Handler
	bookings  booking.Service
	ledger    ledger.Service
	currency  string
	directory *auth.Directory
	stream    *stream.Stream
	ready     readinessChecker
	version   string

	rateBurst  int
	ratePerSec int
	maxBody    int64
	origins    []string
}

func New(opts Options) *API {
	a := &API{
		router:     mux.NewRouter(),
		bookings:   opts.Bookings,
		ledger:     opts.Ledger,
		currency:   opts.Currency,
		directory:  opts.Directory,
		stream:     opts.Stream,
		ready:      opts.Ready,
		version:    opts.Version,
		rateBurst:  opts.RateBurst,
		ratePerSec: opts.RatePerSec,
		maxBody:    opts.MaxBody,
		origins:    opts.Origins,
	}
	if a.ready == nil {
		a.ready = ReadyProbe{}
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 20
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 10
	}
	if a.maxBody <= 0 {
		a.maxBody = 1 << 20
	}
	a.routes()
	a.handler = a.chain(a.router)
	return a
}

func (a *API) routes() {
	r := a.router
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	// health/ready/info
	r.HandleFunc("/healthz", a.Healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.Ready).Methods(http.MethodGet)
	r.HandleFunc("/v1/info", a.Info).Methods(http.MethodGet)
	r.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)

	// identity
	r.HandleFunc("/v1/auth/register", a.register).Methods(http.MethodPost)
	r.HandleFunc("/v1/auth/token", a.issueToken).Methods(http.MethodPost)

	// funds
	admin := RequireRole(auth.RoleAdmin)
	r.Handle("/v1/wallets", admin(http.HandlerFunc(a.deposit))).Methods(http.MethodPost)
	r.HandleFunc("/v1/wallets/{holder}/balance", a.walletBalance).Methods(http.MethodGet)
	r.Handle("/v1/transactions", admin(http.HandlerFunc(a.listTransactions))).Methods(http.MethodGet)

	// properties and rooms
	r.HandleFunc("/v1/properties", a.createProperty).Methods(http.MethodPost)
	r.HandleFunc("/v1/properties", a.listProperties).Methods(http.MethodGet)
	r.HandleFunc("/v1/properties/{id}", a.getProperty).Methods(http.MethodGet)
	r.HandleFunc("/v1/properties/{id}/rooms", a.addRoom).Methods(http.MethodPost)
	r.HandleFunc("/v1/properties/{id}/rooms", a.listRooms).Methods(http.MethodGet)
	r.HandleFunc("/v1/properties/{id}/rooms/{roomID:[0-9]+}", a.getRoom).Methods(http.MethodGet)
	r.HandleFunc("/v1/properties/{id}/rooms/{roomID:[0-9]+}/availability", a.roomAvailability).Methods(http.MethodGet)
	r.HandleFunc("/v1/properties/{id}/availability", a.availableRooms).Methods(http.MethodGet)

	// bookings
	r.HandleFunc("/v1/properties/{id}/bookings", a.book).Methods(http.MethodPost)
	r.HandleFunc("/v1/properties/{id}/bookings", a.listBookings).Methods(http.MethodGet)
	r.HandleFunc("/v1/properties/{id}/bookings/{bookingID:[0-9]+}", a.getBooking).Methods(http.MethodGet)
	r.HandleFunc("/v1/properties/{id}/bookings/{bookingID:[0-9]+}/cancel", a.cancelBooking).Methods(http.MethodPost)

	// owner payouts
	r.HandleFunc("/v1/properties/{id}/withdrawal", a.previewWithdrawal).Methods(http.MethodGet)
	r.HandleFunc("/v1/properties/{id}/withdrawal", a.withdraw).Methods(http.MethodPost)
	r.HandleFunc("/v1/properties/{id}/statement", a.statement).Methods(http.MethodGet)

	// caller-centric views
	r.HandleFunc("/v1/me/properties", a.myProperties).Methods(http.MethodGet)
	r.HandleFunc("/v1/me/bookings", a.myBookings).Methods(http.MethodGet)
	r.HandleFunc("/v1/me/withdrawable", a.myWithdrawable).Methods(http.MethodGet)

	r.HandleFunc("/v1/events", a.Stream).Methods(http.MethodGet)
}

// chain wraps the router with the middleware stack, outermost first.
func (a *API) chain(next http.Handler) http.Handler {
	h := a.withAuth(next)
	h = MaxBodyBytes(h, a.maxBody)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h, a.origins)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	h = Recover(h)
	return obs.Instrument(h)
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	return a.handler
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":     serviceName,
		"time":     time.Now().UTC().Format(time.RFC3339),
		"version":  a.version,
		"currency": a.currency,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
