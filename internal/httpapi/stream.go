package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"roomledger.org/internal/booking"
)

// Stream serves committed booking events as Server-Sent Events. A caller
// sees the events it caused and every event of the properties it owns.
// ?property=<id> narrows the stream to one property.
func (a *API) Stream(w http.ResponseWriter, r *http.Request) {
	if a.stream == nil {
		writeError(w, r, http.StatusServiceUnavailable, "streaming disabled")
		return
	}
	who, ok := caller(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := a.stream.Subscribe(ctx, strings.TrimSpace(r.URL.Query().Get("property")))

	// Send an initial comment to establish the stream
	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	owned := map[string]bool{}
	for event := range ch {
		if !a.visible(ctx, who, event, owned) {
			continue
		}
		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}
		_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Kind, payload)
		flusher.Flush()
	}
}

func (a *API) visible(ctx context.Context, who string, evt booking.Event, owned map[string]bool) bool {
	if evt.Actor == who {
		return true
	}
	isOwner, seen := owned[evt.PropertyID]
	if !seen {
		prop, err := a.bookings.GetProperty(ctx, evt.PropertyID)
		isOwner = err == nil && prop.Owner == who
		owned[evt.PropertyID] = isOwner
	}
	return isOwner
}
