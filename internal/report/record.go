// Package report formats error-log records and dispatches them to the
// configured notification channels (internal bus, admin email).
//
// Nothing in this package may let a failure escape to the code path that
// produced the original record: every extraction step has a fallback and
// every handler invocation is recovered.
package report

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"errwatch/internal/bus"
)

const (
	noStackTrace  = "No stack trace available"
	anonymousUser = "Anonymous user (not logged in)"
)

// User is the resolved identity of the person whose request triggered the
// record. Resolution happens upstream (middleware); the formatter only
// renders it.
type User struct {
	FullName string
	Email    string
}

// Record is a single error-log event as seen by the dispatch pipeline.
// Request and User are optional; Stack is the captured stack text (empty
// when the record carried no exception info).
type Record struct {
	Time    time.Time
	Level   string
	Message string
	Err     error
	Stack   string
	Request *http.Request
	User    *User

	// Host identifies the machine that produced the record. Filled in by
	// the dispatcher when empty.
	Host string
}

// FormatRecord extracts the interesting details of a record for use by
// the notification handlers: the subject line, the stack trace text and a
// short description of the triggering user.
func FormatRecord(rec Record) (subject, stackTrace, userInfo string) {
	subject = fmt.Sprintf("%s: %s", rec.Host, rec.Message)

	if strings.TrimSpace(rec.Stack) != "" {
		stackTrace = rec.Stack
	} else {
		stackTrace = noStackTrace
	}

	userInfo = formatUserInfo(rec)
	return subject, stackTrace, userInfo
}

// formatUserInfo is best-effort cosmetic output: any failure, including a
// panic out of a misbehaving User value, degrades to the anonymous label.
func formatUserInfo(rec Record) (info string) {
	defer func() {
		if recover() != nil {
			info = anonymousUser
		}
	}()

	if rec.Request == nil || rec.User == nil {
		return anonymousUser
	}
	u := rec.User
	if u.Email == "" {
		return anonymousUser
	}
	name := u.FullName
	if name == "" {
		name = u.Email
	}
	return fmt.Sprintf("%s (%s)", name, u.Email)
}

// FormatSubject escapes CR and LF characters and limits the subject to
// bus.MaxSubjectLength bytes.
func FormatSubject(subject string) string {
	s := strings.ReplaceAll(subject, "\n", `\n`)
	s = strings.ReplaceAll(s, "\r", `\r`)
	if len(s) > bus.MaxSubjectLength {
		s = s[:bus.MaxSubjectLength]
	}
	return s
}

// messageFallback is the request-block replacement used whenever request
// context cannot be extracted.
func messageFallback(rec Record) string {
	return "Log record message:\n" + rec.Message
}
