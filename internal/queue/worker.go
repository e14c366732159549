package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/leadhub/crm/internal/metrics"
)

// Deliverer is the downstream channel, normally the Telegram client.
type Deliverer interface {
	Deliver(ctx context.Context, recipient, text string) error
}

type Worker struct {
	Channel   *amqp.Channel
	Deliverer Deliverer
	Timeout   time.Duration
}

func NewWorker(ch *amqp.Channel, d Deliverer) *Worker {
	return &Worker{Channel: ch, Deliverer: d, Timeout: 15 * time.Second}
}

// Run consumes with manual acks until ctx is done or the channel closes.
func (w *Worker) Run(ctx context.Context) error {
	msgs, err := w.Channel.Consume(
		QueueName,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", QueueName, err)
	}
	log.Printf("[queue] worker consuming %s", QueueName)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("queue: delivery channel closed")
			}
			w.handle(ctx, d)
		}
	}
}

// handle acks on success and rejects without requeue otherwise, which routes
// the message to the dead-letter queue.
func (w *Worker) handle(ctx context.Context, d amqp.Delivery) {
	var n Notification
	if err := json.Unmarshal(d.Body, &n); err != nil || strings.TrimSpace(n.Recipient) == "" {
		log.Printf("[queue] malformed message dropped to DLQ: %v", err)
		_ = d.Nack(false, false)
		return
	}

	dctx, cancel := context.WithTimeout(ctx, w.Timeout)
	defer cancel()
	if err := w.Deliverer.Deliver(dctx, n.Recipient, n.Text); err != nil {
		metrics.RecordNotifyFailure("queue")
		log.Printf("[queue] deliver to %s: %v", n.Recipient, err)
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}
