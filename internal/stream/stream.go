package stream

import (
	"context"
	"sync"

	"roomledger.org/internal/booking"
)

// Stream fans committed booking events out to every active subscriber
// (SSE clients). It implements booking.Notifier.
type Stream struct {
	mu     sync.RWMutex
	subs   map[int]subscriber
	next   int
	buffer int
	closed bool
}

type subscriber struct {
	ch         chan booking.Event
	propertyID string
}

var _ booking.Notifier = (*Stream)(nil)

// New returns an empty stream. Each subscriber buffers up to buffer events.
func New(buffer int) *Stream {
	if buffer <= 0 {
		buffer = 16
	}
	return &Stream{subs: make(map[int]subscriber), buffer: buffer}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events, optionally only those of one property. The channel is closed when
// ctx ends.
func (s *Stream) Subscribe(ctx context.Context, propertyID string) <-chan booking.Event {
	ch := make(chan booking.Event, s.buffer)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch
	}
	id := s.next
	s.next++
	s.subs[id] = subscriber{ch: ch, propertyID: propertyID}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub.ch)
		}
		s.mu.Unlock()
	}()

	return ch
}

// Publish fans the event out to all matching subscribers.
func (s *Stream) Publish(evt booking.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if sub.propertyID != "" && sub.propertyID != evt.PropertyID {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// slow subscriber, drop
		}
	}
}

func (s *Stream) Notify(_ context.Context, evt booking.Event) error {
	s.Publish(evt)
	return nil
}

// Close ends every subscription and refuses new ones.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sub := range s.subs {
		delete(s.subs, id)
		close(sub.ch)
	}
	s.closed = true
}

// Subscribers reports the number of active subscribers.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
