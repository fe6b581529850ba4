// Package service publishes account events to RabbitMQ.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/athlia-api/internal/queue"
)

// defaultDialTimeout bounds the TCP connect and AMQP handshake when ctx has
// no deadline of its own.
const defaultDialTimeout = 3 * time.Second

// EventPublisher is what handlers depend on.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.AccountEvent) error
}

// Publisher sends persistent JSON messages to a durable queue on the default
// exchange. Each Publish dials its own connection, so a broker outage only
// costs the event being published.
type Publisher struct {
	URL   string
	Queue string
	dial  func(url string, timeout time.Duration) (*amqp.Connection, error)
}

func NewPublisher(url, queueName string) *Publisher {
	if queueName == "" {
		queueName = queue.DefaultQueue
	}
	return &Publisher{URL: url, Queue: queueName, dial: dialAMQP}
}

// Publish marshals ev and publishes it. Errors are logged and returned; the
// caller decides whether they matter.
func (p *Publisher) Publish(ctx context.Context, ev queue.AccountEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	timeout, err := dialTimeout(ctx)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	conn, err := p.dial(p.URL, timeout)
	if err != nil {
		slog.WarnContext(ctx, "rabbitmq: dial failed", "error", err)
		return fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		slog.WarnContext(ctx, "rabbitmq: channel open failed", "error", err)
		return fmt.Errorf("channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(p.Queue, true, false, false, false, nil); err != nil {
		slog.WarnContext(ctx, "rabbitmq: queue declare failed", "queue", p.Queue, "error", err)
		return fmt.Errorf("queue declare: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         ev.Type,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.Queue, false, false, msg); err != nil {
		slog.WarnContext(ctx, "rabbitmq: publish failed", "type", ev.Type, "error", err)
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// dialAMQP is amqp.Dial with the connect and handshake bounded by timeout.
func dialAMQP(url string, timeout time.Duration) (*amqp.Connection, error) {
	return amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
}

// dialTimeout is the time left before ctx's deadline, capped at
// defaultDialTimeout.
func dialTimeout(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		return defaultDialTimeout, nil
	}
	left := time.Until(deadline)
	if left <= 0 {
		return 0, context.DeadlineExceeded
	}
	return min(left, defaultDialTimeout), nil
}

// NopPublisher drops every event. It is used when events are disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, queue.AccountEvent) error { return nil }

// PublishAsync publishes ev on its own goroutine with a 3s timeout detached
// from the request, logging any failure.
func PublishAsync(pub EventPublisher, ev queue.AccountEvent) {
	if pub == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := pub.Publish(ctx, ev); err != nil {
			slog.Warn("account event not published", "type", ev.Type, "account_id", ev.AccountID, "error", err)
		}
	}()
}
