// Package digest posts a scheduled summary of the report history to the
// internal bus, so a quiet day is visible as "0 errors" instead of
// silence that might mean a broken reporter.
package digest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"errwatch/internal/bus"
	"errwatch/internal/report"
	"errwatch/internal/storage"
	logx "errwatch/pkg/logx"
)

const defaultSchedule = "0 9 * * *"

type Config struct {
	Enabled  bool
	Schedule string // cron spec, five fields
	Channel  string // defaults to report.DefaultChannel
	Sender   string // bot address for the bus message
}

type Service struct {
	cfg   Config
	store storage.Store
	bus   report.InternalSender
	log   logx.Logger

	mu      sync.Mutex
	c       *cron.Cron
	lastRun time.Time
}

func New(cfg Config, store storage.Store, sender report.InternalSender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = defaultSchedule
	}
	if cfg.Channel == "" {
		cfg.Channel = report.DefaultChannel
	}
	return &Service{cfg: cfg, store: store, bus: sender, log: log}
}

// Start registers the cron job. It is a no-op when the digest is
// disabled or missing its collaborators.
func (s *Service) Start() error {
	if !s.cfg.Enabled || s.store == nil || s.bus == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(s.cfg.Schedule, s.runScheduled); err != nil {
		return fmt.Errorf("digest: bad schedule %q: %w", s.cfg.Schedule, err)
	}
	s.c = c
	s.lastRun = time.Now()
	c.Start()
	s.log.Info("digest scheduled", logx.String("schedule", s.cfg.Schedule), logx.String("channel", s.cfg.Channel))
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c != nil {
		c.Stop()
	}
}

func (s *Service) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.mu.Lock()
	since := s.lastRun
	s.lastRun = time.Now()
	s.mu.Unlock()

	if err := s.RunOnce(ctx, since); err != nil {
		s.log.Warn("digest run failed", logx.Err(err))
	}
}

// RunOnce summarizes report history since the given time and posts it to
// the digest channel.
func (s *Service) RunOnce(ctx context.Context, since time.Time) error {
	entries, err := s.store.RecentReports(ctx, since, 0)
	if err != nil {
		return fmt.Errorf("digest: read history: %w", err)
	}

	subject, body := Compose(entries, since)
	return s.bus.SendInternalMessage(ctx, s.cfg.Sender, bus.RecipientStream, s.cfg.Channel, subject, body)
}

// Compose renders the digest message for a window of report entries.
func Compose(entries []storage.ReportEntry, since time.Time) (subject, body string) {
	sent := 0
	failed := 0
	var failures []storage.ReportEntry
	for _, e := range entries {
		switch e.Outcome {
		case storage.OutcomeSent:
			sent++
		case storage.OutcomeFailed:
			failed++
			failures = append(failures, e)
		}
	}

	subject = report.FormatSubject(fmt.Sprintf("error digest: %d sent, %d failed", sent, failed))

	var b strings.Builder
	fmt.Fprintf(&b, "Error report digest since %s\n\n", since.Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&b, "- reports delivered: %d\n", sent)
	fmt.Fprintf(&b, "- deliveries failed: %d\n", failed)

	if len(failures) > 0 {
		b.WriteString("\nMost recent failures:\n")
		start := 0
		if len(failures) > 5 {
			start = len(failures) - 5
		}
		for _, e := range failures[start:] {
			fmt.Fprintf(&b, "- [%s] %s via %s: %s\n",
				e.At.Format("15:04:05"), e.Subject, e.Handler, e.Error)
		}
	}
	return subject, b.String()
}
