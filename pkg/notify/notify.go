// Package notify delivers SMS side-channel messages. Delivery never affects
// the USSD response: failures are logged and counted only.
package notify

import (
	"context"
	"errors"
	"strings"
)

// Message is one outbound SMS.
type Message struct {
	To       string
	Body     string
	SenderID string
}

// Validate rejects messages with no recipient or body.
func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" || m.Body == "" {
		return ErrInvalidMessage
	}
	return nil
}

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

var (
	ErrInvalidMessage = errors.New("notify: message needs a recipient and body")
	ErrQueueFull      = errors.New("notify: queue full, message dropped")
	ErrClosed         = errors.New("notify: dispatcher is closed")
	ErrRejected       = errors.New("notify: gateway rejected message")
)

// Stats describes dispatcher activity.
type Stats struct {
	QueueDepth int   `json:"queue_depth"`
	Enqueued   int64 `json:"enqueued"`
	Dropped    int64 `json:"dropped"`
	Delivered  int64 `json:"delivered"`
	Failed     int64 `json:"failed"`
}
