package model

import "time"

// QueueMessage is one delivery received from a queue.
type QueueMessage struct {
	ID            string
	ReceiptHandle string
	Body          string
	// ReceiveCount is the platform's delivery counter for this message.
	ReceiveCount int
	SentAt       time.Time
}
