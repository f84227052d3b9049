package mailer

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"

	"github.com/arklim/social-identity/internal/core/domain"
)

type codeTemplateData struct {
	Name    string
	Code    string
	Minutes int
	Action  string
}

type codeTemplate struct {
	subject string
	action  string
}

var codeTemplates = map[domain.CodePurpose]codeTemplate{
	domain.CodePurposeRegistration: {
		subject: "Verify your email address",
		action:  "finish creating your account",
	},
	domain.CodePurposeForgotPassword: {
		subject: "Reset your password",
		action:  "reset your password",
	},
}

var htmlBody = htmltemplate.Must(htmltemplate.New("code.html").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2933;">
  <p>Hi {{.Name}},</p>
  <p>Use the code below to {{.Action}}:</p>
  <p style="font-size: 28px; letter-spacing: 6px; font-weight: bold;">{{.Code}}</p>
  <p>This code expires in {{.Minutes}} minutes. If you did not request it, you can ignore this email.</p>
</body>
</html>
`))

var textBody = texttemplate.Must(texttemplate.New("code.txt").Parse(`Hi {{.Name}},

Use the code below to {{.Action}}:

{{.Code}}

This code expires in {{.Minutes}} minutes. If you did not request it, you can ignore this email.
`))

// renderCode builds the outbound message for a one-time code.
func renderCode(to, name, code string, purpose domain.CodePurpose, minutes int) (domain.Notification, error) {
	tpl, ok := codeTemplates[purpose]
	if !ok {
		return domain.Notification{}, fmt.Errorf("no template for purpose %q", purpose)
	}
	if name == "" {
		name = "there"
	}
	if minutes < 1 {
		minutes = 1
	}

	data := codeTemplateData{Name: name, Code: code, Minutes: minutes, Action: tpl.action}

	var html, text bytes.Buffer
	if err := htmlBody.Execute(&html, data); err != nil {
		return domain.Notification{}, fmt.Errorf("render html body: %w", err)
	}
	if err := textBody.Execute(&text, data); err != nil {
		return domain.Notification{}, fmt.Errorf("render text body: %w", err)
	}

	return domain.Notification{
		To:      to,
		Subject: tpl.subject,
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}
