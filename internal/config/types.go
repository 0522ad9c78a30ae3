package config

import (
	"errors"
	"fmt"
	"strings"
)

// Config is the full daemon configuration. It decodes strictly: unknown
// fields are rejected so typos fail fast instead of silently disabling a
// reporting channel.
type Config struct {
	Logging LoggingConfig `json:"logging"`

	Telegram TelegramConfig `json:"telegram"`
	Bus      BusConfig      `json:"bus"`
	Mail     MailConfig     `json:"mail"`
	Report   ReportConfig   `json:"report"`

	Storage *StorageConfig `json:"storage,omitempty"`
	Digest  *DigestConfig  `json:"digest,omitempty"`

	HTTP HTTPConfig `json:"http"`
}

type LoggingConfig struct {
	Level   string `json:"level,omitempty"`
	Console bool   `json:"console"`
	File    struct {
		Enabled bool   `json:"enabled"`
		Path    string `json:"path,omitempty"`
	} `json:"file"`
}

type TelegramConfig struct {
	Token string `json:"token,omitempty"`

	// ClientTimeout is a Go duration string bounding each API call.
	ClientTimeout string `json:"client_timeout,omitempty"`
}

// ChatTargetConfig names a concrete chat destination.
type ChatTargetConfig struct {
	ChatID   int64 `json:"chat_id"`
	ThreadID int   `json:"thread_id,omitempty"`
}

type BusConfig struct {
	// SenderAddress is the bot address stamped on bus messages.
	SenderAddress string `json:"sender_address,omitempty"`

	// Channels maps bus channel names ("devel", ...) to chat targets.
	Channels map[string]ChatTargetConfig `json:"channels,omitempty"`

	// Users maps user addresses to chat targets for direct messages.
	Users map[string]ChatTargetConfig `json:"users,omitempty"`

	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type MailConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	From     string `json:"from,omitempty"`

	Admins []string `json:"admins,omitempty"`

	SubjectPrefix string `json:"subject_prefix,omitempty"`

	// IncludeHTML attaches an HTML traceback to admin mail.
	IncludeHTML bool `json:"include_html"`

	// Timeout is a Go duration string for the SMTP conversation.
	Timeout string `json:"timeout,omitempty"`
}

type ReportConfig struct {
	// Host overrides the hostname used in subjects. Defaults to
	// os.Hostname().
	Host string `json:"host,omitempty"`

	// Channel is the bus channel error reports go to. Default "devel".
	Channel string `json:"channel,omitempty"`

	// BusEnabled/MailEnabled switch the two handlers individually.
	// Omitted means enabled when the underlying transport is configured.
	BusEnabled  *bool `json:"bus_enabled,omitempty"`
	MailEnabled *bool `json:"mail_enabled,omitempty"`
}

// StorageConfig controls the optional report history store.
//
// Driver values:
//   - "file":   dependency-free JSONL backend
//   - "sqlite": SQLite database file (requires the sqlite build tag)
//
// Empty or "none" disables history.
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type DigestConfig struct {
	Enabled bool `json:"enabled"`

	// Schedule is a cron spec (five fields). Default "0 9 * * *".
	Schedule string `json:"schedule,omitempty"`

	// Channel overrides the digest destination. Defaults to the report
	// channel.
	Channel string `json:"channel,omitempty"`
}

type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default ":8080"
}

// Validate checks cross-field consistency. It is also installed as the
// watch validator so a bad edit never replaces a working config.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	busWanted := c.Report.BusEnabled == nil || *c.Report.BusEnabled
	if busWanted && strings.TrimSpace(c.Telegram.Token) != "" {
		channel := c.Report.Channel
		if channel == "" {
			channel = "devel"
		}
		if _, ok := c.Bus.Channels[channel]; !ok {
			return fmt.Errorf("bus.channels is missing the report channel %q", channel)
		}
	}

	mailWanted := c.Report.MailEnabled == nil || *c.Report.MailEnabled
	if mailWanted && c.Mail.Enabled {
		if strings.TrimSpace(c.Mail.Host) == "" {
			return errors.New("mail.host is required when mail is enabled")
		}
		if strings.TrimSpace(c.Mail.From) == "" {
			return errors.New("mail.from is required when mail is enabled")
		}
		if len(c.Mail.Admins) == 0 {
			return errors.New("mail.admins is required when mail is enabled")
		}
		if _, err := ParseDurationField("mail.timeout", c.Mail.Timeout); err != nil {
			return err
		}
	}

	if _, err := ParseDurationField("telegram.client_timeout", c.Telegram.ClientTimeout); err != nil {
		return err
	}
	if c.Storage != nil {
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}
