package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

// Date is a point in time on the wire, accepted as unix seconds, an
// RFC 3339 timestamp or a calendar day ("2026-05-01", midnight UTC).
type Date int64

func (d *Date) UnmarshalJSON(b []byte) error {
	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		*d = Date(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.New("date must be unix seconds or a date string")
	}
	v, err := parseDate(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func parseDate(raw string) (Date, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return Date(n), nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return Date(t.Unix()), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return Date(t.Unix()), nil
	}
	return 0, fmt.Errorf("invalid date %q", raw)
}

// queryDate reads a required date query parameter.
func queryDate(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if strings.TrimSpace(raw) == "" {
		return 0, fmt.Errorf("%s query parameter is required", name)
	}
	d, err := parseDate(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return int64(d), nil
}

// queryCutoff reads an optional cutoff. Without one the booking core clamps
// the cutoff to its own clock.
func queryCutoff(r *http.Request) (int64, error) {
	if strings.TrimSpace(r.URL.Query().Get("cutoff")) == "" {
		return math.MaxInt64, nil
	}
	return queryDate(r, "cutoff")
}

func pathInt(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return v, nil
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if val < min || val > max {
		return 0, fmt.Errorf("limit must be between %d and %d", min, max)
	}
	return val, nil
}
