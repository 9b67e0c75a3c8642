package obs

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"roomledger.org/internal/booking"
)

// HTTP metrics
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Booking metrics
var (
	bookingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomledger_bookings_total",
			Help: "Bookings created, by initial status.",
		},
		[]string{"status"},
	)

	cancellationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roomledger_cancellations_total",
		Help: "Bookings cancelled and refunded.",
	})

	withdrawnAmountTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roomledger_withdrawn_amount_total",
		Help: "Minor units paid out to property owners.",
	})

	readyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "roomledger_ready",
		Help: "1 when the last readiness check passed.",
	})

	rejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomledger_booking_rejections_total",
			Help: "Rejected booking-core requests, by reason.",
		},
		[]string{"reason"},
	)
)

var initOnce sync.Once

// Init registers every metric in the default registry. Safe to call twice.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			bookingsTotal, cancellationsTotal, withdrawnAmountTotal, rejectionsTotal,
			readyGauge,
		)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records RPS, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// routeShapes lists the API paths with their variable segments marked.
var routeShapes = [][]string{
	{"v1", "properties", ":id"},
	{"v1", "properties", ":id", "rooms"},
	{"v1", "properties", ":id", "rooms", ":room"},
	{"v1", "properties", ":id", "rooms", ":room", "availability"},
	{"v1", "properties", ":id", "availability"},
	{"v1", "properties", ":id", "bookings"},
	{"v1", "properties", ":id", "bookings", ":booking"},
	{"v1", "properties", ":id", "bookings", ":booking", "cancel"},
	{"v1", "properties", ":id", "withdrawal"},
	{"v1", "properties", ":id", "statement"},
	{"v1", "wallets", ":holder"},
	{"v1", "wallets", ":holder", "balance"},
}

var staticPaths = map[string]struct{}{
	"/":                   {},
	"/healthz":            {},
	"/readyz":             {},
	"/metrics":            {},
	"/v1/info":            {},
	"/v1/auth/register":   {},
	"/v1/auth/token":      {},
	"/v1/properties":      {},
	"/v1/wallets":         {},
	"/v1/me/properties":   {},
	"/v1/me/bookings":     {},
	"/v1/me/withdrawable": {},
	"/v1/events":          {},
	"/v1/transactions":    {},
}

// CanonicalPath collapses identifiers so the path label keeps a bounded
// cardinality. Unknown paths are reported as "/other".
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	if _, ok := staticPaths[path]; ok {
		return path
	}
	segs := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for _, shape := range routeShapes {
		if matchShape(shape, segs) {
			return "/" + strings.Join(shape, "/")
		}
	}
	return "/other"
}

func matchShape(shape, segs []string) bool {
	if len(shape) != len(segs) {
		return false
	}
	for i, s := range shape {
		if segs[i] == "" {
			return false
		}
		if !strings.HasPrefix(s, ":") && s != segs[i] {
			return false
		}
	}
	return true
}

// SetReady records the outcome of the latest readiness probe.
func SetReady(ok bool) {
	if ok {
		readyGauge.Set(1)
		return
	}
	readyGauge.Set(0)
}

// RecordRejection counts a booking-core error by its reason.
func RecordRejection(reason string) {
	rejectionsTotal.WithLabelValues(reason).Inc()
}

// Notifier turns committed booking events into counters.
type Notifier struct{}

var _ booking.Notifier = Notifier{}

func (Notifier) Notify(_ context.Context, evt booking.Event) error {
	switch evt.Kind {
	case booking.EventBookingCreated:
		bookingsTotal.WithLabelValues(evt.Status).Inc()
	case booking.EventBookingCancelled:
		cancellationsTotal.Inc()
	case booking.EventFundsWithdrawn:
		withdrawnAmountTotal.Add(float64(evt.Amount))
	}
	return nil
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps server-sent events working through the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
