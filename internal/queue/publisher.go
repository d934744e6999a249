package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is the notification dispatcher: Send enqueues an email on a
// durable queue and returns once the broker has accepted it.
type Publisher struct {
	URL   string
	Queue string
	Log   *log.Logger
	now   func() time.Time
}

func NewPublisher(url, queue string, logger *log.Logger) *Publisher {
	if logger == nil {
		logger = log.Default()
	}
	return &Publisher{URL: url, Queue: queue, Log: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Send publishes one message. A connection is opened per call; activation
// mail is rare enough that pooling is not worth the reconnect handling.
func (p *Publisher) Send(ctx context.Context, to, subject, body string) error {
	conn, err := amqp.Dial(p.URL)
	if err != nil {
		p.Log.Printf("rabbitmq: dial failed: %v", err)
		return fmt.Errorf("dial broker: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.Log.Printf("rabbitmq: channel open failed: %v", err)
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := declareQueue(ch, p.Queue); err != nil {
		p.Log.Printf("rabbitmq: queue declare failed: %v", err)
		return err
	}

	pub, err := newPublishing(MailMessage{To: to, Subject: subject, Body: body}, p.now())
	if err != nil {
		return err
	}
	if err := ch.PublishWithContext(ctx,
		"",      // default exchange
		p.Queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		pub,
	); err != nil {
		p.Log.Printf("rabbitmq: publish failed: %v", err)
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func newPublishing(msg MailMessage, now time.Time) (amqp.Publishing, error) {
	msg.QueuedAt = now
	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal mail message: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    now,
		Body:         body,
	}, nil
}

// declareQueue makes sure the durable queue exists; it is idempotent.
func declareQueue(ch *amqp.Channel, name string) error {
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	return nil
}
