package email

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

type Template string

const (
	TemplateInvitation      Template = "invitation"
	TemplateWelcome         Template = "welcome"
	TemplatePasswordChanged Template = "password_changed"
	TemplateTest            Template = "test"
)

// Data fills every template; unused fields are ignored.
type Data struct {
	AppName       string
	RecipientName string
	ActionURL     string
	InviterName   string
	Role          string
	WorkspaceName string
	ExpiresAt     string
}

type templateSet struct {
	subject *texttemplate.Template
	html    *htmltemplate.Template
	text    *texttemplate.Template
}

var templates = map[Template]templateSet{
	TemplateInvitation: mustSet(
		`You're invited to {{.AppName}}`,
		layout(`<h2>You have been invited</h2>
<p>{{if .InviterName}}{{.InviterName}} invited you{{else}}You have been invited{{end}} to join {{if .WorkspaceName}}<strong>{{.WorkspaceName}}</strong> on {{end}}{{.AppName}} as <strong>{{.Role}}</strong>.</p>
<p><a href="{{.ActionURL}}" class="button">Accept invitation</a></p>
<p class="link">{{.ActionURL}}</p>
<p>This invitation expires on {{.ExpiresAt}}.</p>`),
		`You have been invited to join {{if .WorkspaceName}}{{.WorkspaceName}} on {{end}}{{.AppName}} as {{.Role}}.

Accept the invitation: {{.ActionURL}}

This invitation expires on {{.ExpiresAt}}.
`),
	TemplateWelcome: mustSet(
		`Welcome to {{.AppName}}`,
		layout(`<h2>Welcome{{if .RecipientName}}, {{.RecipientName}}{{end}}!</h2>
<p>Your {{.AppName}} account is ready.</p>
<p><a href="{{.ActionURL}}" class="button">Open dashboard</a></p>`),
		`Welcome{{if .RecipientName}}, {{.RecipientName}}{{end}}!

Your {{.AppName}} account is ready: {{.ActionURL}}
`),
	TemplatePasswordChanged: mustSet(
		`Your {{.AppName}} password was changed`,
		layout(`<h2>Password changed</h2>
<p>Hi {{.RecipientName}}, the password of your {{.AppName}} account was just changed.</p>
<div class="warning">If you did not do this, contact your administrator immediately.</div>`),
		`Hi {{.RecipientName}}, the password of your {{.AppName}} account was just changed.

If you did not do this, contact your administrator immediately.
`),
	TemplateTest: mustSet(
		`{{.AppName}} test email`,
		layout(`<h2>Email is working</h2>
<p>This is a test message from {{.AppName}}. If you can read it, outbound email is configured.</p>`),
		`This is a test message from {{.AppName}}. If you can read it, outbound email is configured.
`),
}

func layout(body string) string {
	return `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>{{.AppName}}</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
.button { display: inline-block; padding: 12px 24px; background: #0066cc; color: white; text-decoration: none; border-radius: 4px; }
.link { word-break: break-all; color: #0066cc; }
.warning { background: #fff3cd; padding: 12px; border-radius: 4px; }
</style>
</head>
<body>
<h1>{{.AppName}}</h1>
` + body + `
</body>
</html>`
}

func mustSet(subject, html, text string) templateSet {
	return templateSet{
		subject: texttemplate.Must(texttemplate.New("subject").Parse(subject)),
		html:    htmltemplate.Must(htmltemplate.New("html").Parse(html)),
		text:    texttemplate.Must(texttemplate.New("text").Parse(text)),
	}
}

// Render produces the subject, HTML and text bodies of name.
func Render(name Template, data Data) (subject, html, text string, err error) {
	set, ok := templates[name]
	if !ok {
		return "", "", "", fmt.Errorf("email: unknown template %q", name)
	}
	if data.AppName == "" {
		data.AppName = "CRM Platform"
	}
	var s, h, t bytes.Buffer
	if err := set.subject.Execute(&s, data); err != nil {
		return "", "", "", err
	}
	if err := set.html.Execute(&h, data); err != nil {
		return "", "", "", err
	}
	if err := set.text.Execute(&t, data); err != nil {
		return "", "", "", err
	}
	return s.String(), h.String(), t.String(), nil
}
