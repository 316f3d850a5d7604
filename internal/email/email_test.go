package email

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"crm-platform/internal/audit"
	"crm-platform/internal/config"
	"crm-platform/internal/store"
	"crm-platform/pkg/logger"
)

func TestRender_AllTemplates(t *testing.T) {
	for _, name := range []Template{TemplateInvitation, TemplateWelcome, TemplatePasswordChanged, TemplateTest} {
		subject, html, text, err := Render(name, Data{AppName: "Acme CRM", RecipientName: "Jane", ActionURL: "https://x/y", Role: "admin"})
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if !strings.Contains(subject, "Acme CRM") || !strings.Contains(html, "<html>") || text == "" {
			t.Fatalf("%s: unexpected output %q %q", name, subject, text)
		}
	}
	if _, _, _, err := Render("nope", Data{}); err == nil {
		t.Fatalf("unknown template must fail")
	}
}

func TestRender_EscapesHTML(t *testing.T) {
	_, html, text, err := Render(TemplateWelcome, Data{RecipientName: "<script>x</script>"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(html, "<script>") {
		t.Fatalf("html body must escape user data")
	}
	if !strings.Contains(text, "<script>") {
		t.Fatalf("text body is not escaped")
	}
}

func TestNewSender_LogWhenSMTPMissing(t *testing.T) {
	s := NewSender(config.EmailConfig{}, logger.Discard())
	if s.Mode() != ModeLog {
		t.Fatalf("expected log sender, got %s", s.Mode())
	}
	res, err := s.Send(context.Background(), Message{To: "a@example.com", Subject: "hi"})
	if err != nil || !res.Simulated {
		t.Fatalf("log sender must report a simulated delivery, got %+v %v", res, err)
	}
}

func TestSMTPSender_BuildsMultipartMessage(t *testing.T) {
	s := NewSMTPSender(config.EmailConfig{SMTPHost: "smtp.example.com", SMTPPort: 587, SMTPUsername: "u", SMTPPassword: "p", From: "crm@example.com"})
	var gotAddr, gotFrom string
	var gotMsg []byte
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotMsg = addr, from, msg
		return nil
	}
	res, err := s.Send(context.Background(), Message{To: "a@example.com", From: "CRM <crm@example.com>", Subject: "S", HTML: "<p>h</p>", Text: "t"})
	if err != nil || res.Simulated || res.Mode != ModeSMTP {
		t.Fatalf("unexpected result %+v %v", res, err)
	}
	if gotAddr != "smtp.example.com:587" || gotFrom != "crm@example.com" {
		t.Fatalf("unexpected envelope %s %s", gotAddr, gotFrom)
	}
	body := string(gotMsg)
	if !strings.Contains(body, "multipart/alternative") || !strings.Contains(body, "text/plain") || !strings.Contains(body, "<p>h</p>") {
		t.Fatalf("unexpected message:\n%s", body)
	}
}

func TestSMTPSender_PropagatesFailure(t *testing.T) {
	s := NewSMTPSender(config.EmailConfig{SMTPHost: "h", SMTPPort: 25, From: "a@b.c"})
	s.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("connection refused") }
	if _, err := s.Send(context.Background(), Message{To: "x@y.z"}); !errors.Is(err, ErrDelivery) {
		t.Fatalf("expected error")
	}
}

type recordingSender struct {
	sent []Message
}

func (r *recordingSender) Mode() string { return ModeLog }

func (r *recordingSender) Send(ctx context.Context, m Message) (Result, error) {
	r.sent = append(r.sent, m)
	return Result{ID: "id", Mode: ModeLog, Simulated: true}, nil
}

func TestDispatcher_SendInvitationRecordsActivity(t *testing.T) {
	rec := &recordingSender{}
	events := audit.NewMemoryRepo()
	d := NewDispatcher(rec, DispatcherOptions{
		Config:   config.EmailConfig{From: "crm@example.com", FromName: "CRM", RatePerSec: 100},
		AppName:  "Acme CRM",
		BaseURL:  "https://crm.example.com/",
		Activity: audit.NewService(events),
	})
	res, err := d.SendInvitation(context.Background(), "new@example.com", "tok123", "member", "Sales", "Admin", time.Now().Add(time.Hour))
	if err != nil || !res.Simulated {
		t.Fatalf("send: %+v %v", res, err)
	}
	if len(rec.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(rec.sent))
	}
	m := rec.sent[0]
	if m.From != "CRM <crm@example.com>" || !strings.Contains(m.Text, "https://crm.example.com/accept-invitation?token=tok123") {
		t.Fatalf("unexpected message %+v", m)
	}
	if evs := events.Events(); len(evs) != 1 || evs[0].Type != audit.EventEmailSent {
		t.Fatalf("expected one email.sent event, got %+v", evs)
	}
	if st := d.Status(); !st.Simulated || st.Mode != ModeLog {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestDispatcher_RejectsBadRecipient(t *testing.T) {
	d := NewDispatcher(&recordingSender{}, DispatcherOptions{})
	if _, err := d.SendTest(context.Background(), "not-an-email"); !errors.Is(err, store.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestDispatcher_CancelledWhileThrottled(t *testing.T) {
	d := NewDispatcher(&recordingSender{}, DispatcherOptions{Config: config.EmailConfig{RatePerSec: 0.001}})
	if _, err := d.SendTest(context.Background(), "a@example.com"); err != nil {
		t.Fatalf("first send uses the burst: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := d.SendTest(ctx, "a@example.com"); err == nil {
		t.Fatalf("expected the throttled send to fail with the context")
	}
}
