package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"armonyco/internal/mailer"
	"armonyco/internal/metrics"
	"armonyco/internal/model"
)

const defaultWelcomeSubject = "Welcome to Armonyco"

// Notifications implements NotificationService.
type Notifications struct {
	sender  mailer.Sender
	from    string
	baseURL string
}

func NewNotifications(sender mailer.Sender, from, baseURL string) *Notifications {
	return &Notifications{sender: sender, from: from, baseURL: strings.TrimRight(baseURL, "/")}
}

func (n *Notifications) SendWelcome(ctx context.Context, req model.WelcomeEmailRequest) (*model.EmailResult, error) {
	to := strings.TrimSpace(req.To)
	if to == "" {
		return nil, fmt.Errorf("%w: to", ErrMissingFields)
	}
	if _, err := mail.ParseAddress(to); err != nil {
		return nil, fmt.Errorf("%w: invalid recipient", ErrInvalidRequest)
	}
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		subject = defaultWelcomeSubject
	}

	data := mailer.WelcomeData{
		Title:            subject,
		Name:             firstNonEmpty(req.Data["name"], req.Data["firstName"], req.Data["fullName"]),
		OrganizationName: req.Data["organizationName"],
		DashboardURL:     req.Data["dashboardUrl"],
	}
	if data.DashboardURL == "" && n.baseURL != "" {
		data.DashboardURL = n.baseURL + "/dashboard"
	}
	html, text, err := mailer.RenderWelcome(data)
	if err != nil {
		return nil, err
	}

	if mailer.IsMock(n.sender) {
		slog.Info("email: welcome not sent, no provider configured", "to", to)
		return &model.EmailResult{
			Success: true,
			Mock:    true,
			Message: "Email provider not configured; message logged",
		}, nil
	}

	id, err := n.sender.Send(ctx, mailer.Message{
		From:     n.from,
		FromName: "Armonyco",
		To:       to,
		Subject:  subject,
		HTML:     html,
		Text:     text,
	})
	if err != nil {
		metrics.EmailsSentTotal.WithLabelValues("welcome", "failed").Inc()
		return nil, fmt.Errorf("send welcome email: %w", err)
	}
	metrics.EmailsSentTotal.WithLabelValues("welcome", "sent").Inc()
	slog.Info("email: welcome sent", "to", to, "message_id", id)
	return &model.EmailResult{Success: true, MessageID: id, Message: "Email sent"}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

var _ NotificationService = (*Notifications)(nil)
