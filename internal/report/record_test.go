package report

import (
	"net/http/httptest"
	"strings"
	"testing"

	"errwatch/internal/bus"
)

func TestFormatRecordNoStack(t *testing.T) {
	t.Parallel()
	subject, stack, userInfo := FormatRecord(Record{Host: "web1", Message: "DB error"})
	if subject != "web1: DB error" {
		t.Fatalf("subject = %q", subject)
	}
	if stack != "No stack trace available" {
		t.Fatalf("stack = %q", stack)
	}
	if userInfo != "Anonymous user (not logged in)" {
		t.Fatalf("userInfo = %q", userInfo)
	}
}

func TestFormatRecordWithStack(t *testing.T) {
	t.Parallel()
	trace := "goroutine 1 [running]:\nmain.main()\n\t/srv/app/main.go:10 +0x20"
	_, stack, _ := FormatRecord(Record{Host: "web1", Message: "boom", Stack: trace})
	if stack != trace {
		t.Fatalf("stack not passed through verbatim: %q", stack)
	}
}

func TestFormatRecordUserInfo(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest("GET", "/foo", nil)
	_, _, userInfo := FormatRecord(Record{
		Host:    "web1",
		Message: "boom",
		Request: r,
		User:    &User{FullName: "Alice", Email: "alice@x.com"},
	})
	if userInfo != "Alice (alice@x.com)" {
		t.Fatalf("userInfo = %q", userInfo)
	}
}

func TestFormatRecordUserWithoutRequestIsAnonymous(t *testing.T) {
	t.Parallel()
	_, _, userInfo := FormatRecord(Record{
		Host:    "web1",
		Message: "boom",
		User:    &User{FullName: "Alice", Email: "alice@x.com"},
	})
	if userInfo != "Anonymous user (not logged in)" {
		t.Fatalf("userInfo = %q", userInfo)
	}
}

func TestFormatRecordUserMissingEmail(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest("GET", "/foo", nil)
	_, _, userInfo := FormatRecord(Record{Host: "h", Message: "m", Request: r, User: &User{FullName: "Bob"}})
	if userInfo != "Anonymous user (not logged in)" {
		t.Fatalf("userInfo = %q", userInfo)
	}
}

func TestFormatSubjectEscapesAndTruncates(t *testing.T) {
	t.Parallel()
	got := FormatSubject("line one\nline two\rend")
	if strings.ContainsAny(got, "\n\r") {
		t.Fatalf("raw control characters survived: %q", got)
	}
	if !strings.Contains(got, `\n`) || !strings.Contains(got, `\r`) {
		t.Fatalf("escape sequences missing: %q", got)
	}

	long := strings.Repeat("x", 500) + "\n" + strings.Repeat("y", 500)
	got = FormatSubject(long)
	if len(got) > bus.MaxSubjectLength {
		t.Fatalf("subject length %d exceeds %d", len(got), bus.MaxSubjectLength)
	}
}

func TestFormatSubjectShortPassesThrough(t *testing.T) {
	t.Parallel()
	if got := FormatSubject("web1: DB error"); got != "web1: DB error" {
		t.Fatalf("got %q", got)
	}
}
