package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "errwatch/pkg/logx"
)

// Store is the minimal persistence API used by the dispatcher and digest.
type Store interface {
	AppendReport(ctx context.Context, e ReportEntry) error
	RecentReports(ctx context.Context, since time.Time, limit int) ([]ReportEntry, error)
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
