package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"roomledger.org/internal/booking"
	"roomledger.org/internal/obs"
)

// DefaultExchange is the topic exchange events are published to. The
// routing key is the event kind.
const DefaultExchange = "roomledger.events"

// channel is the subset of *amqp.Channel the publisher needs.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// dialer opens a channel with the exchange declared.
type dialer func() (channel, error)

// AMQPPublisher publishes events to RabbitMQ behind a circuit breaker. The
// channel is opened lazily and reopened after a failed publish.
type AMQPPublisher struct {
	exchange string
	dial     dialer
	breaker  *gobreaker.CircuitBreaker
	timeout  time.Duration

	mu   sync.Mutex
	conn *amqp.Connection
	ch   channel
}

var _ booking.Notifier = (*AMQPPublisher)(nil)

// NewAMQPPublisher prepares a publisher for url. No connection is made until
// the first event.
func NewAMQPPublisher(url, exchange string) *AMQPPublisher {
	if exchange == "" {
		exchange = DefaultExchange
	}
	p := &AMQPPublisher{exchange: exchange}
	p.dial = func() (channel, error) { return p.open(url) }
	p.init()
	return p
}

func (p *AMQPPublisher) init() {
	if p.timeout == 0 {
		p.timeout = 3 * time.Second
	}
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "amqp:" + p.exchange,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			obs.Logger().WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	})
}

func (p *AMQPPublisher) open(url string) (channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp exchange declare: %w", err)
	}
	p.conn = conn
	return ch, nil
}

func (p *AMQPPublisher) Notify(ctx context.Context, evt booking.Event) error {
	body, err := Encode(evt)
	if err != nil {
		return err
	}
	_, err = p.breaker.Execute(func() (interface{}, error) {
		return nil, p.publish(ctx, evt.Kind, body, evt.OccurredAt)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("amqp publish skipped: %w", err)
	}
	return err
}

func (p *AMQPPublisher) publish(ctx context.Context, key string, body []byte, at time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		ch, err := p.dial()
		if err != nil {
			return err
		}
		p.ch = ch
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	err := p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    at,
		Body:         body,
	})
	if err != nil {
		p.resetLocked()
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

func (p *AMQPPublisher) resetLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Close releases the broker connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	return nil
}
