// Package bus is the client for the internal message bus used for
// operational alerts. Messages are addressed by recipient kind plus a
// channel name; channel names are mapped to concrete chat targets by
// configuration.
package bus

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	kit "errwatch/internal/transport"
	logx "errwatch/pkg/logx"
)

// MaxSubjectLength is the message-model cap on subject length. Subjects
// longer than this are truncated by the caller before sending.
const MaxSubjectLength = 60

// RecipientKind selects how the channel argument of SendInternalMessage
// is interpreted.
type RecipientKind int

const (
	// RecipientStream addresses a named channel.
	RecipientStream RecipientKind = iota + 1
	// RecipientUser addresses a single user by address.
	RecipientUser
)

func (k RecipientKind) String() string {
	switch k {
	case RecipientStream:
		return "stream"
	case RecipientUser:
		return "user"
	default:
		return fmt.Sprintf("recipient(%d)", int(k))
	}
}

type Config struct {
	// SenderAddress is the bot address stamped on outgoing messages.
	SenderAddress string

	// Channels maps bus channel names to chat targets.
	Channels map[string]kit.ChatTarget

	// Users maps user addresses to chat targets (direct messages).
	Users map[string]kit.ChatTarget

	// RatePerSec caps outgoing sends. Defaults to 1.
	RatePerSec int
}

type Client struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	sender kit.Sender
	log    logx.Logger
}

func New(cfg Config, sender kit.Sender, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Client{sender: sender, log: log}
	c.Apply(cfg)
	return c
}

// Apply swaps the channel map and rate limit at runtime.
func (c *Client) Apply(cfg Config) {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	c.mu.Lock()
	c.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	c.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	c.mu.Unlock()
}

// SendInternalMessage delivers a subject+body message to the named
// recipient. It blocks until the rate limiter admits the send or ctx is
// done. The sender address is informational and becomes part of the
// message header line.
func (c *Client) SendInternalMessage(ctx context.Context, sender string, kind RecipientKind, channel, subject, body string) error {
	if c == nil || c.sender == nil {
		return fmt.Errorf("bus: no transport configured")
	}

	c.mu.Lock()
	cfg := c.cfg
	lim := c.limiter
	c.mu.Unlock()

	target, err := resolveTarget(cfg, kind, channel)
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	if err := lim.Wait(ctx); err != nil {
		return err
	}

	text := composeMessage(sender, channel, subject, body)
	_, err = c.sender.SendText(ctx, target, text, &kit.SendOptions{DisablePreview: true})
	if err != nil {
		return fmt.Errorf("bus: send to %s %q: %w", kind, channel, err)
	}
	c.log.Debug("bus message sent",
		logx.String("kind", kind.String()),
		logx.String("channel", channel),
		logx.String("subject", subject),
	)
	return nil
}

func resolveTarget(cfg Config, kind RecipientKind, channel string) (kit.ChatTarget, error) {
	var m map[string]kit.ChatTarget
	switch kind {
	case RecipientStream:
		m = cfg.Channels
	case RecipientUser:
		m = cfg.Users
	default:
		return kit.ChatTarget{}, fmt.Errorf("bus: unknown recipient kind %d", int(kind))
	}
	target, ok := m[channel]
	if !ok || target.ChatID == 0 {
		return kit.ChatTarget{}, fmt.Errorf("bus: no target configured for %s %q", kind, channel)
	}
	return target, nil
}

func composeMessage(sender, channel, subject, body string) string {
	var b strings.Builder
	b.WriteString(subject)
	b.WriteString("\n")
	if sender != "" {
		b.WriteString("from: ")
		b.WriteString(sender)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(body)
	return b.String()
}
