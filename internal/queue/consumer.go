package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sethvargo/go-retry"
)

// DefaultQueue is the durable queue account events travel on.
const DefaultQueue = "account.events"

const accountLogFile = "account.log"

var knownEventTypes = map[string]bool{
	EventRegistered:      true,
	EventLoggedIn:        true,
	EventPasswordChanged: true,
	EventProfileUpserted: true,
}

// StartAccountConsumer consumes queueName and appends every event as one line
// to <dir>/account.log. Broker failures are retried with exponential backoff
// from 1s capped at 30s. It returns only once ctx is cancelled.
func StartAccountConsumer(ctx context.Context, url, queueName, dir string) error {
	backoff := retry.WithCappedDuration(30*time.Second, retry.NewExponential(time.Second))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		conn, err := amqp.Dial(url)
		if err != nil {
			slog.WarnContext(ctx, "account-consumer: dial failed", "error", err)
			return retry.RetryableError(err)
		}
		defer func() { _ = conn.Close() }()

		if err := consumeLoop(ctx, conn, queueName, dir); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.WarnContext(ctx, "account-consumer: consume loop ended, reconnecting", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, queueName, dir string) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		slog.WarnContext(ctx, "account-consumer: set QoS failed", "error", err)
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	slog.InfoContext(ctx, "account-consumer: consuming", "queue", queueName)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := handleMessage(dir, d.Body); err != nil {
				slog.ErrorContext(ctx, "account-consumer: handle message failed", "error", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// handleMessage validates one delivery and appends it to the account log.
func handleMessage(dir string, body []byte) error {
	var ev AccountEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if !knownEventTypes[ev.Type] {
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
	if ev.AccountID == "" {
		return errors.New("event without account_id")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	f, err := os.OpenFile(filepath.Join(dir, accountLogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(formatEvent(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func formatEvent(ev AccountEvent) string {
	line := fmt.Sprintf("[%s] %s | account_id=%s", ev.OccurredAt.UTC().Format(time.RFC3339), ev.Type, ev.AccountID)
	if ev.Mail != "" {
		line += fmt.Sprintf(" | mail=%q", ev.Mail)
	}
	return line + "\n"
}
