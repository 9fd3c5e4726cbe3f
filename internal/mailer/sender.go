package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Sender sends transactional emails and returns the provider message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

type Message struct {
	From     string
	FromName string
	To       string
	Subject  string
	HTML     string
	Text     string
}

// New returns a SendGrid sender, or a LogSender when apiKey is empty.
func New(apiKey string) Sender {
	if strings.TrimSpace(apiKey) == "" {
		return NewLogSender()
	}
	return NewSendGridSender(apiKey)
}

type SendGridSender struct {
	client *sendgrid.Client
}

func NewSendGridSender(apiKey string) *SendGridSender {
	return &SendGridSender{client: sendgrid.NewSendClient(apiKey)}
}

func (s *SendGridSender) Send(ctx context.Context, msg Message) (string, error) {
	from := mail.NewEmail(msg.FromName, msg.From)
	to := mail.NewEmail("", msg.To)
	m := mail.NewSingleEmail(from, msg.Subject, to, msg.Text, msg.HTML)

	resp, err := s.client.SendWithContext(ctx, m)
	if err != nil {
		return "", fmt.Errorf("sendgrid request failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("sendgrid error (HTTP %d): %s", resp.StatusCode, truncate(resp.Body, 512))
	}

	var id string
	for k, v := range resp.Headers {
		if strings.EqualFold(k, "X-Message-Id") && len(v) > 0 {
			id = v[0]
		}
	}
	return id, nil
}

// LogSender logs emails instead of sending them. Used when no provider key
// is configured.
type LogSender struct{}

func NewLogSender() *LogSender {
	return &LogSender{}
}

func (l *LogSender) Send(_ context.Context, msg Message) (string, error) {
	slog.Info("mailer: email not sent (no provider configured)",
		"to", msg.To,
		"subject", msg.Subject,
	)
	return "", nil
}

// IsMock reports whether s only logs messages.
func IsMock(s Sender) bool {
	_, ok := s.(*LogSender)
	return ok || s == nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
