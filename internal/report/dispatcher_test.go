package report

import (
	"context"
	"errors"
	"sync"
	"testing"

	logx "errwatch/pkg/logx"
)

type recordingHandler struct {
	mu   sync.Mutex
	recs []Record
	err  error
}

func (h *recordingHandler) Emit(ctx context.Context, rec Record) error {
	h.mu.Lock()
	h.recs = append(h.recs, rec)
	h.mu.Unlock()
	return h.err
}

type panickingHandler struct{}

func (panickingHandler) Emit(ctx context.Context, rec Record) error {
	panic("handler exploded")
}

func TestDispatcherFansOut(t *testing.T) {
	t.Parallel()
	a := &recordingHandler{}
	b := &recordingHandler{}
	d := NewDispatcher("web1", logx.Nop())
	d.Register("a", a)
	d.Register("b", b)

	d.Report(context.Background(), Record{Message: "boom"})

	if len(a.recs) != 1 || len(b.recs) != 1 {
		t.Fatalf("expected both handlers invoked, got %d/%d", len(a.recs), len(b.recs))
	}
	if a.recs[0].Host != "web1" {
		t.Fatalf("host not filled in: %+v", a.recs[0])
	}
	if a.recs[0].Time.IsZero() {
		t.Fatal("time not filled in")
	}
}

func TestDispatcherSurvivesPanickingHandler(t *testing.T) {
	t.Parallel()
	after := &recordingHandler{}
	d := NewDispatcher("web1", logx.Nop())
	d.Register("boom", panickingHandler{})
	d.Register("after", after)

	// Must not panic, and the later handler must still run.
	d.Report(context.Background(), Record{Message: "m"})

	if len(after.recs) != 1 {
		t.Fatalf("handler after the panicking one did not run")
	}
}

func TestDispatcherObserver(t *testing.T) {
	t.Parallel()
	failing := &recordingHandler{err: errors.New("bus down")}
	ok := &recordingHandler{}

	d := NewDispatcher("web1", logx.Nop())
	d.Register("bus", failing)
	d.Register("mail", ok)

	var outcomes []Outcome
	d.SetObserver(func(ctx context.Context, o Outcome) {
		outcomes = append(outcomes, o)
	})

	d.Report(context.Background(), Record{Message: "DB error"})

	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].Handler != "bus" || outcomes[0].Err == nil {
		t.Fatalf("first outcome wrong: %+v", outcomes[0])
	}
	if outcomes[1].Handler != "mail" || outcomes[1].Err != nil {
		t.Fatalf("second outcome wrong: %+v", outcomes[1])
	}
	if outcomes[0].Subject != "web1: DB error" {
		t.Fatalf("outcome subject = %q", outcomes[0].Subject)
	}
}

func TestDispatcherSurvivesPanickingObserver(t *testing.T) {
	t.Parallel()
	h := &recordingHandler{}
	d := NewDispatcher("web1", logx.Nop())
	d.Register("h", h)
	d.SetObserver(func(ctx context.Context, o Outcome) { panic("observer exploded") })

	d.Report(context.Background(), Record{Message: "m"})
	if len(h.recs) != 1 {
		t.Fatal("handler should have run despite observer panic")
	}
}

func TestDispatcherRegisterNil(t *testing.T) {
	t.Parallel()
	d := NewDispatcher("web1", logx.Nop())
	d.Register("nil", nil)
	d.Report(context.Background(), Record{Message: "m"})
}
