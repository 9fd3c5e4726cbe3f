package mailer

import (
	"bytes"
	"fmt"
	"html/template"
)

const layoutHead = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; margin: 0; padding: 0; background-color: #0b0b0f;">
<table role="presentation" style="width: 100%; border: 0;">
<tr><td style="padding: 40px 0; text-align: center;">
<table role="presentation" style="max-width: 520px; margin: 0 auto; background: #ffffff; border-radius: 8px; overflow: hidden;">
<tr><td style="padding: 32px 40px; text-align: left;">`

const layoutFoot = `</td></tr>
</table>
<p style="margin: 16px 0 0; color: #888; font-size: 12px;">Armonyco &middot; Hospitality automation</p>
</td></tr>
</table>
</body>
</html>`

var (
	welcomeTemplate = template.Must(template.New("welcome").Parse(layoutHead + `
<h1 style="margin: 0 0 16px; font-size: 24px; color: #1a1a1a;">Welcome to Armonyco, {{.Name}}</h1>
<p style="margin: 0 0 16px; color: #444; font-size: 15px; line-height: 1.5;">
{{if .OrganizationName}}Your organization <strong>{{.OrganizationName}}</strong> is ready.{{else}}Your account is ready.{{end}}
Armo Credits power every automation you run.
</p>
{{if .DashboardURL}}<a href="{{.DashboardURL}}" style="display: inline-block; padding: 12px 32px; background: #d4af37; color: #000; text-decoration: none; border-radius: 6px; font-size: 15px; font-weight: 600;">Open dashboard</a>{{end}}
` + layoutFoot))

	receiptTemplate = template.Must(template.New("receipt").Parse(layoutHead + `
<h1 style="margin: 0 0 16px; font-size: 22px; color: #1a1a1a;">Armo Credits added</h1>
<p style="margin: 0 0 8px; color: #444; font-size: 15px;">{{.Credits}} credits were added to your organization.</p>
<p style="margin: 0; color: #444; font-size: 15px;">New balance: <strong>{{.NewBalance}}</strong></p>
` + layoutFoot))

	inviteTemplate = template.Must(template.New("invite").Parse(layoutHead + `
<h1 style="margin: 0 0 16px; font-size: 22px; color: #1a1a1a;">You have been invited to Armonyco</h1>
<p style="margin: 0 0 16px; color: #444; font-size: 15px; line-height: 1.5;">
You were invited to join an organization as <strong>{{.Role}}</strong>. Create your account with this email address to get access.
</p>
{{if .SignupURL}}<a href="{{.SignupURL}}" style="display: inline-block; padding: 12px 32px; background: #d4af37; color: #000; text-decoration: none; border-radius: 6px; font-size: 15px; font-weight: 600;">Accept invitation</a>{{end}}
` + layoutFoot))
)

type WelcomeData struct {
	Title            string
	Name             string
	OrganizationName string
	DashboardURL     string
}

type ReceiptData struct {
	Title      string
	Credits    int64
	NewBalance int64
}

type InviteData struct {
	Title     string
	Role      string
	SignupURL string
}

func RenderWelcome(data WelcomeData) (html, text string, err error) {
	if data.Name == "" {
		data.Name = "there"
	}
	if data.Title == "" {
		data.Title = "Welcome to Armonyco"
	}
	var buf bytes.Buffer
	if err := welcomeTemplate.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render welcome template: %w", err)
	}
	text = fmt.Sprintf("Welcome to Armonyco, %s!\n\nYour account is ready.", data.Name)
	if data.DashboardURL != "" {
		text += "\n\nOpen your dashboard: " + data.DashboardURL
	}
	return buf.String(), text, nil
}

func RenderReceipt(data ReceiptData) (html, text string, err error) {
	if data.Title == "" {
		data.Title = "Armo Credits added"
	}
	var buf bytes.Buffer
	if err := receiptTemplate.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render receipt template: %w", err)
	}
	text = fmt.Sprintf("%d Armo Credits were added to your organization.\nNew balance: %d", data.Credits, data.NewBalance)
	return buf.String(), text, nil
}

func RenderInvite(data InviteData) (html, text string, err error) {
	if data.Title == "" {
		data.Title = "You have been invited to Armonyco"
	}
	var buf bytes.Buffer
	if err := inviteTemplate.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render invite template: %w", err)
	}
	text = fmt.Sprintf("You were invited to join an Armonyco organization as %s.", data.Role)
	if data.SignupURL != "" {
		text += "\n\nAccept: " + data.SignupURL
	}
	return buf.String(), text, nil
}
