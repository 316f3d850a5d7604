package email

import (
	"context"
	"fmt"
	"strings"
	"time"

	"crm-platform/internal/audit"
	"crm-platform/internal/config"
	"crm-platform/internal/metrics"
	"crm-platform/pkg/validate"

	"golang.org/x/time/rate"
)

// Dispatcher renders templates and sends them through the Sender, at most RatePerSec per second.
type Dispatcher struct {
	sender   Sender
	limiter  *rate.Limiter
	from     string
	host     string
	appName  string
	baseURL  string
	activity *audit.Service
}

type DispatcherOptions struct {
	Config   config.EmailConfig
	AppName  string
	BaseURL  string
	Activity *audit.Service
}

// Status is what the email setup page shows. Simulated means messages are logged, not sent.
type Status struct {
	Mode      string `json:"mode"`
	Simulated bool   `json:"simulated"`
	From      string `json:"from"`
	Host      string `json:"host,omitempty"`
}

func NewDispatcher(sender Sender, opts DispatcherOptions) *Dispatcher {
	perSec := opts.Config.RatePerSec
	if perSec <= 0 {
		perSec = 5
	}
	from := opts.Config.From
	if from == "" {
		from = "no-reply@localhost"
	}
	if opts.Config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", opts.Config.FromName, from)
	}
	return &Dispatcher{
		sender:   sender,
		limiter:  rate.NewLimiter(rate.Limit(perSec), 1),
		from:     from,
		host:     opts.Config.SMTPHost,
		appName:  opts.AppName,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		activity: opts.Activity,
	}
}

func (d *Dispatcher) Status() Status {
	st := Status{Mode: d.sender.Mode(), Simulated: d.sender.Mode() != ModeSMTP, From: d.from}
	if !st.Simulated {
		st.Host = d.host
	}
	return st
}

// Send renders name for data and delivers it to to. It waits for the rate limiter,
// so a cancelled ctx aborts a queued send.
func (d *Dispatcher) Send(ctx context.Context, name Template, to string, data Data) (Result, error) {
	to = strings.TrimSpace(to)
	if err := validate.Var(to, "required,email"); err != nil {
		return Result{}, err
	}
	if data.AppName == "" {
		data.AppName = d.appName
	}
	subject, html, text, err := Render(name, data)
	if err != nil {
		return Result{}, err
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return Result{}, err
	}

	res, err := d.sender.Send(ctx, Message{To: to, From: d.from, Subject: subject, HTML: html, Text: text})
	if err != nil {
		metrics.EmailsSent.WithLabelValues(string(name), "failed").Inc()
		return Result{}, err
	}
	metrics.EmailsSent.WithLabelValues(string(name), res.Mode).Inc()
	d.activity.Record(ctx, audit.Event{
		Type:       audit.EventEmailSent,
		TargetType: "email",
		TargetID:   res.ID,
		Message:    subject,
		Metadata:   map[string]string{"template": string(name), "to": to, "mode": res.Mode},
	})
	return res, nil
}

// SendInvitation mails the accept link for token.
func (d *Dispatcher) SendInvitation(ctx context.Context, to, token, role, workspaceName, inviter string, expires time.Time) (Result, error) {
	return d.Send(ctx, TemplateInvitation, to, Data{
		ActionURL:     d.baseURL + "/accept-invitation?token=" + token,
		Role:          role,
		WorkspaceName: workspaceName,
		InviterName:   inviter,
		ExpiresAt:     expires.UTC().Format("January 2, 2006"),
	})
}

func (d *Dispatcher) SendWelcome(ctx context.Context, to, name string) (Result, error) {
	return d.Send(ctx, TemplateWelcome, to, Data{RecipientName: name, ActionURL: d.baseURL + "/dashboard"})
}

func (d *Dispatcher) SendPasswordChanged(ctx context.Context, to, name string) (Result, error) {
	return d.Send(ctx, TemplatePasswordChanged, to, Data{RecipientName: name})
}

func (d *Dispatcher) SendTest(ctx context.Context, to string) (Result, error) {
	return d.Send(ctx, TemplateTest, to, Data{})
}
