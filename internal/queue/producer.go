package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Notification is the message body on the wire.
type Notification struct {
	Recipient string `json:"recipient"`
	Text      string `json:"text"`
}

type channelPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher enqueues notifications; it satisfies services.Notifier.
type Publisher struct {
	mu sync.Mutex
	ch channelPublisher
}

func NewPublisher(ch *amqp.Channel) *Publisher {
	return &Publisher{ch: ch}
}

func (p *Publisher) Deliver(ctx context.Context, recipient, text string) error {
	body, err := json.Marshal(Notification{Recipient: recipient, Text: text})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx,
		ExchangeName,
		RoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
