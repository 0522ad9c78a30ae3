package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free JSONL backend
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Outcome values for ReportEntry.
const (
	OutcomeSent   = "sent"
	OutcomeFailed = "failed"
)

// ReportEntry records one handler invocation for one dispatched record.
// Keep it compact and schema-stable.
type ReportEntry struct {
	At      time.Time `json:"at"`
	Handler string    `json:"handler"`
	Subject string    `json:"subject"`
	Outcome string    `json:"outcome"`
	Error   string    `json:"error,omitempty"`
}
