package notifier

import (
	"context"
	"time"

	"postcal/internal/transport"
)

// Config controls the async notification pipeline.
type Config struct {
	Enabled       bool
	Workers       int
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}

// Notification is one message to deliver. Key identifies it in logs and events.
type Notification struct {
	Key     string
	Target  transport.ChatTarget
	Text    string
	Options *transport.SendOptions
}

// Sender is the part of transport.Adapter the notifier needs.
type Sender interface {
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error)
}

// Event is the payload of notifier bus events.
type Event struct {
	Key      string    `json:"key"`
	ChatID   int64     `json:"chat_id"`
	ThreadID int       `json:"thread_id,omitempty"`
	Attempts int       `json:"attempts,omitempty"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
}
