// Package mailer delivers admin mail over SMTP. Delivery is synchronous
// and, by default, fail-silent: error reporting by mail has nowhere to
// report its own failures to.
package mailer

import (
	"context"
	"fmt"
	"time"

	mail "github.com/wneessen/go-mail"

	logx "errwatch/pkg/logx"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string

	// From is the envelope/header sender.
	From string

	// Admins are the destination addresses. Empty list disables mail.
	Admins []string

	// SubjectPrefix is prepended to every subject, e.g. "[errwatch] ".
	SubjectPrefix string

	// FailSilently suppresses delivery errors (the default for the
	// reporting path). When false, MailAdmins returns them.
	FailSilently bool

	// Timeout bounds each SMTP conversation. Defaults to 10s.
	Timeout time.Duration
}

type Mailer struct {
	cfg Config
	log logx.Logger

	// send is swappable for tests.
	send func(ctx context.Context, msg *mail.Msg) error
}

func New(cfg Config, log logx.Logger) *Mailer {
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &Mailer{cfg: cfg, log: log}
	m.send = m.smtpSend
	return m
}

// Enabled reports whether there is anyone to mail.
func (m *Mailer) Enabled() bool {
	return m != nil && m.cfg.Host != "" && len(m.cfg.Admins) > 0
}

// MailAdmins sends subject+body (and an optional HTML alternative) to the
// configured admin addresses. With FailSilently set, delivery errors are
// logged at debug level and swallowed.
func (m *Mailer) MailAdmins(ctx context.Context, subject, body, htmlBody string) error {
	if !m.Enabled() {
		return nil
	}

	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return m.fail(fmt.Errorf("mailer: invalid from address: %w", err))
	}
	if err := msg.To(m.cfg.Admins...); err != nil {
		return m.fail(fmt.Errorf("mailer: invalid admin address: %w", err))
	}
	msg.Subject(m.cfg.SubjectPrefix + subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	if htmlBody != "" {
		msg.AddAlternativeString(mail.TypeTextHTML, htmlBody)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	timeout := m.cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := m.send(sctx, msg); err != nil {
		return m.fail(fmt.Errorf("mailer: send: %w", err))
	}
	return nil
}

func (m *Mailer) smtpSend(ctx context.Context, msg *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, msg)
}

func (m *Mailer) fail(err error) error {
	if m.cfg.FailSilently {
		m.log.Debug("admin mail suppressed failure", logx.Err(err))
		return nil
	}
	return err
}
