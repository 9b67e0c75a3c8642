package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"roomledger.org/internal/booking"
	"roomledger.org/internal/obs"
)

// Multi delivers every event to each notifier in order. Failures are logged
// and joined; later notifiers still run.
type Multi []booking.Notifier

func (m Multi) Notify(ctx context.Context, evt booking.Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, evt); err != nil {
			obs.Logger().WithFields(logrus.Fields{
				"event":       evt.Kind,
				"property_id": evt.PropertyID,
				"error":       err.Error(),
			}).Warn("event delivery failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Async hands events to a background worker so slow brokers never hold up a
// request. Events are dropped when the queue is full.
type Async struct {
	next   booking.Notifier
	queue  chan booking.Event
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

var _ booking.Notifier = (*Async)(nil)

func NewAsync(next booking.Notifier, size int) *Async {
	if size <= 0 {
		size = 256
	}
	a := &Async{next: next, queue: make(chan booking.Event, size)}
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *Async) run() {
	defer a.wg.Done()
	for evt := range a.queue {
		_ = a.next.Notify(context.Background(), evt)
	}
}

var (
	ErrQueueFull = errors.New("notify: queue full")
	ErrClosed    = errors.New("notify: closed")
)

func (a *Async) Notify(_ context.Context, evt booking.Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		obs.Logger().WithField("event", evt.Kind).Warn("event after close, dropping")
		return ErrClosed
	}
	select {
	case a.queue <- evt:
		return nil
	default:
		obs.Logger().WithField("event", evt.Kind).Warn("event queue full, dropping")
		return ErrQueueFull
	}
}

// Close drains the queue and stops the worker. Later Notify calls return
// ErrClosed.
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	a.wg.Wait()
}
