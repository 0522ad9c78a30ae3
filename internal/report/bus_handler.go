package report

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"errwatch/internal/bus"
	logx "errwatch/pkg/logx"
)

// InternalSender is the message-bus collaborator. Satisfied by *bus.Client.
type InternalSender interface {
	SendInternalMessage(ctx context.Context, sender string, kind bus.RecipientKind, channel, subject, body string) error
}

// PostFilter redacts sensitive POST fields before they are included in a
// report. Satisfied by *request.Filter.
type PostFilter interface {
	GetPostParameters(r *http.Request) url.Values
}

// DefaultChannel is where error reports land on the internal bus.
const DefaultChannel = "devel"

// BusHandler sends a request summary plus the formatted record to a fixed
// channel on the internal message bus.
type BusHandler struct {
	Bus    InternalSender
	Filter PostFilter
	Log    logx.Logger

	// Sender is the bot address stamped on outgoing messages.
	Sender string

	// Channel overrides DefaultChannel when set.
	Channel string
}

func (h *BusHandler) Emit(ctx context.Context, rec Record) error {
	requestRepr := h.requestRepr(rec)

	subject, stackTrace, userInfo := FormatRecord(rec)
	body := fmt.Sprintf("Error generated by %s\n\n~~~~ pytb\n%s\n\n~~~~\n%s",
		userInfo, stackTrace, requestRepr)

	channel := h.Channel
	if channel == "" {
		channel = DefaultChannel
	}

	err := h.Bus.SendInternalMessage(ctx, h.Sender, bus.RecipientStream, channel, FormatSubject(subject), body)
	if err != nil {
		// Complain loudly but locally. Never at error level: the report
		// sink picks error-level records back up and we would loop.
		log := h.Log
		if log.IsZero() {
			log = logx.Nop()
		}
		log.Warn("reporting an error triggered an error", logx.Err(err), logx.String("channel", channel))
	}
	return err
}

// requestRepr builds the human-readable request summary block. Any
// failure while reading the request, including a panic out of a
// half-constructed *http.Request, falls back to the record message.
func (h *BusHandler) requestRepr(rec Record) (repr string) {
	defer func() {
		if recover() != nil {
			repr = messageFallback(rec)
		}
	}()

	r := rec.Request
	if r == nil {
		return messageFallback(rec)
	}

	var b strings.Builder
	b.WriteString("Request info:\n~~~~\n")
	fmt.Fprintf(&b, "- path: %s\n", r.URL.Path)
	switch r.Method {
	case http.MethodGet:
		fmt.Fprintf(&b, "- GET: %s\n", r.URL.Query().Encode())
	case http.MethodPost:
		if h.Filter == nil {
			// No privacy filter wired; leaking raw POST bodies is worse
			// than losing the block.
			return messageFallback(rec)
		}
		fmt.Fprintf(&b, "- POST: %s\n", h.Filter.GetPostParameters(r).Encode())
	}
	for _, field := range []string{"REMOTE_ADDR", "QUERY_STRING", "SERVER_NAME"} {
		fmt.Fprintf(&b, "- %s: %q\n", field, metaValue(r, field))
	}
	b.WriteString("~~~~")
	return b.String()
}

// metaValue maps the classic request-environment field names onto their
// net/http equivalents, defaulting to "(None)" when absent.
func metaValue(r *http.Request, field string) string {
	v := ""
	switch field {
	case "REMOTE_ADDR":
		v = r.RemoteAddr
	case "QUERY_STRING":
		v = r.URL.RawQuery
	case "SERVER_NAME":
		v = r.Host
	}
	if v == "" {
		return "(None)"
	}
	return v
}
