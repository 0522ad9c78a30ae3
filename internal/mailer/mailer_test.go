package mailer

import (
	"context"
	"errors"
	"testing"

	mail "github.com/wneessen/go-mail"

	logx "errwatch/pkg/logx"
)

func testMailer(cfg Config) (*Mailer, *[]*mail.Msg) {
	var sent []*mail.Msg
	m := New(cfg, logx.Nop())
	m.send = func(ctx context.Context, msg *mail.Msg) error {
		sent = append(sent, msg)
		return nil
	}
	return m, &sent
}

func TestMailAdminsDisabledWithoutAdmins(t *testing.T) {
	t.Parallel()
	m, sent := testMailer(Config{Host: "smtp.example.com", From: "noreply@example.com"})
	if err := m.MailAdmins(context.Background(), "s", "b", ""); err != nil {
		t.Fatalf("MailAdmins: %v", err)
	}
	if len(*sent) != 0 {
		t.Fatalf("expected no mail, got %d", len(*sent))
	}
}

func TestMailAdminsSends(t *testing.T) {
	t.Parallel()
	m, sent := testMailer(Config{
		Host:          "smtp.example.com",
		From:          "noreply@example.com",
		Admins:        []string{"ops@example.com"},
		SubjectPrefix: "[errwatch] ",
	})
	if err := m.MailAdmins(context.Background(), "subj", "body", "<p>html</p>"); err != nil {
		t.Fatalf("MailAdmins: %v", err)
	}
	if len(*sent) != 1 {
		t.Fatalf("expected 1 mail, got %d", len(*sent))
	}
}

func TestMailAdminsFailSilently(t *testing.T) {
	t.Parallel()
	m := New(Config{
		Host:         "smtp.example.com",
		From:         "noreply@example.com",
		Admins:       []string{"ops@example.com"},
		FailSilently: true,
	}, logx.Nop())
	m.send = func(ctx context.Context, msg *mail.Msg) error {
		return errors.New("relay down")
	}
	if err := m.MailAdmins(context.Background(), "s", "b", ""); err != nil {
		t.Fatalf("expected silent failure, got %v", err)
	}
}

func TestMailAdminsLoudFailure(t *testing.T) {
	t.Parallel()
	m := New(Config{
		Host:   "smtp.example.com",
		From:   "noreply@example.com",
		Admins: []string{"ops@example.com"},
	}, logx.Nop())
	m.send = func(ctx context.Context, msg *mail.Msg) error {
		return errors.New("relay down")
	}
	if err := m.MailAdmins(context.Background(), "s", "b", ""); err == nil {
		t.Fatal("expected delivery error")
	}
}
