package digest

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"errwatch/internal/bus"
	"errwatch/internal/storage"
	logx "errwatch/pkg/logx"
)

type fakeBus struct {
	channel string
	subject string
	body    string
	calls   int
}

func (f *fakeBus) SendInternalMessage(ctx context.Context, sender string, kind bus.RecipientKind, channel, subject, body string) error {
	f.calls++
	f.channel = channel
	f.subject = subject
	f.body = body
	return nil
}

func TestComposeCounts(t *testing.T) {
	t.Parallel()
	now := time.Now()
	entries := []storage.ReportEntry{
		{At: now, Handler: "bus", Subject: "a", Outcome: storage.OutcomeSent},
		{At: now, Handler: "bus", Subject: "b", Outcome: storage.OutcomeSent},
		{At: now, Handler: "mail", Subject: "c", Outcome: storage.OutcomeFailed, Error: "relay down"},
	}
	subject, body := Compose(entries, now.Add(-24*time.Hour))
	if !strings.Contains(subject, "2 sent") || !strings.Contains(subject, "1 failed") {
		t.Fatalf("unexpected subject: %q", subject)
	}
	if !strings.Contains(body, "reports delivered: 2") {
		t.Fatalf("missing delivered count: %q", body)
	}
	if !strings.Contains(body, "relay down") {
		t.Fatalf("missing failure detail: %q", body)
	}
}

func TestComposeEmptyWindow(t *testing.T) {
	t.Parallel()
	subject, body := Compose(nil, time.Now())
	if !strings.Contains(subject, "0 sent, 0 failed") {
		t.Fatalf("unexpected subject: %q", subject)
	}
	if strings.Contains(body, "Most recent failures") {
		t.Fatalf("empty window should have no failures section: %q", body)
	}
}

func TestRunOnce(t *testing.T) {
	t.Parallel()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "h.jsonl")}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	now := time.Now()
	_ = st.AppendReport(ctx, storage.ReportEntry{At: now, Handler: "bus", Subject: "s", Outcome: storage.OutcomeSent})
	_ = st.AppendReport(ctx, storage.ReportEntry{At: now.Add(-48 * time.Hour), Handler: "bus", Subject: "old", Outcome: storage.OutcomeFailed})

	fb := &fakeBus{}
	svc := New(Config{Enabled: true, Channel: "ops", Sender: "bot"}, st, fb, logx.Nop())

	if err := svc.RunOnce(ctx, now.Add(-24*time.Hour)); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if fb.calls != 1 || fb.channel != "ops" {
		t.Fatalf("digest not sent to ops channel: %+v", fb)
	}
	if !strings.Contains(fb.body, "reports delivered: 1") {
		t.Fatalf("old entries should be excluded: %q", fb.body)
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	t.Parallel()
	fb := &fakeBus{}
	st, _ := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "h.jsonl")}, logx.Nop())
	defer st.Close()

	svc := New(Config{Enabled: true, Schedule: "not a cron"}, st, fb, logx.Nop())
	if err := svc.Start(); err == nil {
		t.Fatal("expected schedule parse error")
	}
}

func TestStartDisabledIsNoop(t *testing.T) {
	t.Parallel()
	svc := New(Config{Enabled: false}, nil, nil, logx.Nop())
	if err := svc.Start(); err != nil {
		t.Fatalf("disabled Start should be nil, got %v", err)
	}
	svc.Stop()
}
