// Package email renders the outbound templates and hands them to a Sender.
package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"crm-platform/internal/config"

	"github.com/google/uuid"
)

var (
	ErrNoRecipient = errors.New("email: recipient required")
	// ErrDelivery wraps relay failures.
	ErrDelivery = errors.New("email delivery failed")
)

// Message is the payload of one outbound email.
type Message struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

// Result reports how a message was handled. Simulated is true when nothing left the process.
type Result struct {
	ID        string `json:"id"`
	Mode      string `json:"mode"`
	Simulated bool   `json:"simulated"`
}

type Sender interface {
	Send(ctx context.Context, m Message) (Result, error)
	Mode() string
}

const (
	ModeSMTP = "smtp"
	ModeLog  = "log"
)

// NewSender returns an SMTPSender when SMTP is configured and a LogSender otherwise.
func NewSender(cfg config.EmailConfig, log *slog.Logger) Sender {
	if cfg.SMTPConfigured() {
		return NewSMTPSender(cfg)
	}
	return NewLogSender(log)
}

// SMTPSender delivers through an SMTP relay with PLAIN auth when a username is set.
type SMTPSender struct {
	addr string
	host string
	auth smtp.Auth
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(cfg config.EmailConfig) *SMTPSender {
	s := &SMTPSender{
		addr: net.JoinHostPort(cfg.SMTPHost, strconv.Itoa(cfg.SMTPPort)),
		host: cfg.SMTPHost,
		send: smtp.SendMail,
	}
	if cfg.SMTPUsername != "" {
		s.auth = smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)
	}
	return s
}

func (s *SMTPSender) Mode() string { return ModeSMTP }

func (s *SMTPSender) Send(ctx context.Context, m Message) (Result, error) {
	if m.To == "" {
		return Result{}, ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	id := uuid.NewString()
	if err := s.send(s.addr, s.auth, envelopeAddress(m.From), []string{m.To}, buildMIME(id, m)); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return Result{ID: id, Mode: ModeSMTP}, nil
}

// LogSender writes the message summary to the log and reports a simulated delivery.
type LogSender struct {
	log *slog.Logger
}

func NewLogSender(log *slog.Logger) *LogSender {
	if log == nil {
		log = slog.Default()
	}
	return &LogSender{log: log}
}

func (s *LogSender) Mode() string { return ModeLog }

func (s *LogSender) Send(ctx context.Context, m Message) (Result, error) {
	if m.To == "" {
		return Result{}, ErrNoRecipient
	}
	id := uuid.NewString()
	s.log.InfoContext(ctx, "email simulated, smtp not configured", "id", id, "to", m.To, "subject", m.Subject)
	return Result{ID: id, Mode: ModeLog, Simulated: true}, nil
}

// envelopeAddress strips a display name: "Name <a@b>" -> "a@b".
func envelopeAddress(from string) string {
	if i := strings.LastIndex(from, "<"); i >= 0 {
		return strings.TrimSuffix(strings.TrimSpace(from[i+1:]), ">")
	}
	return from
}

func buildMIME(id string, m Message) []byte {
	boundary := "crm-" + strings.ReplaceAll(id, "-", "")
	var b bytes.Buffer
	fmt.Fprintf(&b, "To: %s\r\n", m.To)
	fmt.Fprintf(&b, "From: %s\r\n", m.From)
	fmt.Fprintf(&b, "Subject: %s\r\n", m.Subject)
	fmt.Fprintf(&b, "Message-ID: <%s@crm-platform>\r\n", id)
	fmt.Fprintf(&b, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)

	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s\r\n\r\n", boundary, m.Text)
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s\r\n\r\n", boundary, m.HTML)
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return b.Bytes()
}
