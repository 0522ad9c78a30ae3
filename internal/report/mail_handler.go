package report

import (
	"context"
	"fmt"
	"net/http"

	logx "errwatch/pkg/logx"
)

// AdminMailer is the mail transport collaborator. Satisfied by
// *mailer.Mailer.
type AdminMailer interface {
	MailAdmins(ctx context.Context, subject, body, htmlBody string) error
}

// RequestFilter is the privacy-aware request representation collaborator.
// Satisfied by *request.Filter.
type RequestFilter interface {
	PostFilter
	GetRequestRepr(r *http.Request) string
}

// MailHandler emails formatted records to the site administrators.
// Delivery failures are silent: mail is the channel of last resort and
// has nowhere useful to complain to.
type MailHandler struct {
	Mailer AdminMailer
	Filter RequestFilter
	Log    logx.Logger

	// IncludeHTML attaches an HTML rendering of the traceback when the
	// record carries exception info.
	IncludeHTML bool
}

func (h *MailHandler) Emit(ctx context.Context, rec Record) error {
	requestRepr, hasRequest := h.requestRepr(rec)
	if !hasRequest {
		// Treat the request as absent for the rest of the report.
		rec.Request = nil
	}

	subject, stackTrace, userInfo := FormatRecord(rec)
	message := fmt.Sprintf("Error generated by %s\n\n%s\n\n%s", userInfo, stackTrace, requestRepr)

	htmlBody := h.renderHTML(rec, subject, stackTrace, userInfo, requestRepr)

	err := h.Mailer.MailAdmins(ctx, FormatSubject(subject), message, htmlBody)
	if err != nil {
		log := h.Log
		if log.IsZero() {
			log = logx.Nop()
		}
		// Mail failures stay quiet; debug only so operators can still
		// diagnose a dead SMTP relay when they go looking.
		log.Debug("admin mail delivery failed", logx.Err(err))
	}
	return err
}

func (h *MailHandler) requestRepr(rec Record) (repr string, hasRequest bool) {
	defer func() {
		if recover() != nil {
			repr = messageFallback(rec)
			hasRequest = false
		}
	}()

	if rec.Request == nil || h.Filter == nil {
		return messageFallback(rec), false
	}
	return h.Filter.GetRequestRepr(rec.Request), true
}

// renderHTML builds the HTML traceback. Only attempted when HTML is
// enabled and the record actually carries exception info; any failure
// yields a plaintext-only mail.
func (h *MailHandler) renderHTML(rec Record, subject, stackTrace, userInfo, requestRepr string) (out string) {
	defer func() {
		if recover() != nil {
			out = ""
		}
	}()

	if !h.IncludeHTML {
		return ""
	}
	if rec.Stack == "" && rec.Err == nil {
		return ""
	}

	html, err := renderTracebackHTML(tracebackData{
		Subject:     subject,
		Message:     rec.Message,
		UserInfo:    userInfo,
		Stack:       stackTrace,
		RequestRepr: requestRepr,
		At:          rec.Time,
	})
	if err != nil {
		return ""
	}
	return html
}
