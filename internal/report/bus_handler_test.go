package report

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"errwatch/internal/bus"
	logx "errwatch/pkg/logx"
)

type fakeInternalSender struct {
	channel string
	subject string
	body    string
	calls   int
	err     error
}

func (f *fakeInternalSender) SendInternalMessage(ctx context.Context, sender string, kind bus.RecipientKind, channel, subject, body string) error {
	f.calls++
	f.channel = channel
	f.subject = subject
	f.body = body
	return f.err
}

type passthroughFilter struct{}

func (passthroughFilter) GetPostParameters(r *http.Request) url.Values {
	_ = r.ParseForm()
	return r.PostForm
}

func TestBusHandlerEndToEnd(t *testing.T) {
	t.Parallel()
	fs := &fakeInternalSender{}
	h := &BusHandler{Bus: fs, Filter: passthroughFilter{}, Log: logx.Nop(), Sender: "errwatch-bot@example.com"}

	r := httptest.NewRequest("GET", "/foo?x=1", nil)
	rec := Record{Host: "web1", Message: "DB error", Request: r}

	if err := h.Emit(context.Background(), rec); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if fs.calls != 1 {
		t.Fatalf("expected 1 send, got %d", fs.calls)
	}
	if fs.channel != "devel" {
		t.Fatalf("channel = %q, want devel", fs.channel)
	}
	if fs.subject != "web1: DB error" {
		t.Fatalf("subject = %q", fs.subject)
	}
	for _, want := range []string{
		"Anonymous user (not logged in)",
		"No stack trace available",
		"~~~~ pytb",
		"- path: /foo",
		"- GET: x=1",
	} {
		if !strings.Contains(fs.body, want) {
			t.Fatalf("body missing %q:\n%s", want, fs.body)
		}
	}
}

func TestBusHandlerPostUsesFilter(t *testing.T) {
	t.Parallel()
	fs := &fakeInternalSender{}
	h := &BusHandler{Bus: fs, Filter: redactAllFilter{}, Log: logx.Nop()}

	form := url.Values{"password": {"hunter2"}}
	r := httptest.NewRequest("POST", "/login", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if err := h.Emit(context.Background(), Record{Host: "h", Message: "m", Request: r}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if strings.Contains(fs.body, "hunter2") {
		t.Fatalf("unredacted POST value leaked:\n%s", fs.body)
	}
	if !strings.Contains(fs.body, "- POST: ") {
		t.Fatalf("body missing POST block:\n%s", fs.body)
	}
}

type redactAllFilter struct{}

func (redactAllFilter) GetPostParameters(r *http.Request) url.Values {
	_ = r.ParseForm()
	out := url.Values{}
	for k := range r.PostForm {
		out[k] = []string{"********"}
	}
	return out
}

func TestBusHandlerNoRequestFallsBack(t *testing.T) {
	t.Parallel()
	fs := &fakeInternalSender{}
	h := &BusHandler{Bus: fs, Filter: passthroughFilter{}, Log: logx.Nop()}

	if err := h.Emit(context.Background(), Record{Host: "h", Message: "plain failure"}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if !strings.Contains(fs.body, "Log record message:\nplain failure") {
		t.Fatalf("fallback block missing:\n%s", fs.body)
	}
}

func TestBusHandlerBrokenRequestFallsBack(t *testing.T) {
	t.Parallel()
	fs := &fakeInternalSender{}
	h := &BusHandler{Bus: fs, Filter: passthroughFilter{}, Log: logx.Nop()}

	// A request with a nil URL panics on access; the handler must fall
	// back to the message block instead of raising.
	broken := &http.Request{Method: "GET"}
	if err := h.Emit(context.Background(), Record{Host: "h", Message: "broken req", Request: broken}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if !strings.Contains(fs.body, "Log record message:\nbroken req") {
		t.Fatalf("fallback block missing:\n%s", fs.body)
	}
}

func TestBusHandlerSendFailureWarnsLocally(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := logx.NewWriter(&buf, "debug")

	fs := &fakeInternalSender{err: errors.New("bus unreachable")}
	h := &BusHandler{Bus: fs, Filter: passthroughFilter{}, Log: log}

	err := h.Emit(context.Background(), Record{Host: "h", Message: "m"})
	if err == nil {
		t.Fatal("expected send error for accounting")
	}
	out := buf.String()
	if !strings.Contains(out, `"level":"warn"`) {
		t.Fatalf("expected warn-level log, got: %s", out)
	}
	if !strings.Contains(out, "reporting an error triggered an error") {
		t.Fatalf("warning message missing: %s", out)
	}
	if strings.Contains(out, `"level":"error"`) {
		t.Fatalf("error-level logging on the reporting path risks recursion: %s", out)
	}
}

func TestBusHandlerMetaDefaults(t *testing.T) {
	t.Parallel()
	fs := &fakeInternalSender{}
	h := &BusHandler{Bus: fs, Filter: passthroughFilter{}, Log: logx.Nop()}

	r := httptest.NewRequest("GET", "/bare", nil)
	r.RemoteAddr = ""
	r.Host = ""

	if err := h.Emit(context.Background(), Record{Host: "h", Message: "m", Request: r}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if !strings.Contains(fs.body, `- REMOTE_ADDR: "(None)"`) {
		t.Fatalf("missing REMOTE_ADDR default:\n%s", fs.body)
	}
	if !strings.Contains(fs.body, `- QUERY_STRING: "(None)"`) {
		t.Fatalf("missing QUERY_STRING default:\n%s", fs.body)
	}
	if !strings.Contains(fs.body, `- SERVER_NAME: "(None)"`) {
		t.Fatalf("missing SERVER_NAME default:\n%s", fs.body)
	}
}
