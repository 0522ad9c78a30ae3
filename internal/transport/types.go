package transport

import "context"

// ChatTarget identifies a chat destination. ThreadID is the forum topic
// thread id on platforms that have threads (0 if none).
type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Sender is the outbound-only chat surface the reporter needs. The
// reporter never consumes inbound messages, so there is no update stream.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	Close() error
}
