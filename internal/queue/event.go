// Package queue carries outbound email over RabbitMQ: the API publishes,
// a background consumer delivers.
package queue

import "time"

// MailMessage is one email waiting for delivery.
type MailMessage struct {
	To       string    `json:"to"`
	Subject  string    `json:"subject"`
	Body     string    `json:"body"`
	QueuedAt time.Time `json:"queued_at"`
}
