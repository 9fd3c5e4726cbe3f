package service

import (
	"context"
	"errors"
	"testing"

	"armonyco/internal/mailer"
	"armonyco/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendWelcome(t *testing.T) {
	sender := &mockSender{}
	n := NewNotifications(sender, "noreply@armonyco.test", "https://app.armonyco.test/")

	res, err := n.SendWelcome(context.Background(), model.WelcomeEmailRequest{
		To:   "maria@hotel.test",
		Data: map[string]string{"name": "Maria", "organizationName": "Villa Sole"},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.Mock)
	assert.Equal(t, "msg-1", res.MessageID)

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, defaultWelcomeSubject, msg.Subject)
	assert.Equal(t, "noreply@armonyco.test", msg.From)
	assert.Contains(t, msg.HTML, "Villa Sole")
	assert.Contains(t, msg.HTML, "https://app.armonyco.test/dashboard")
	assert.Contains(t, msg.Text, "Maria")
}

func TestSendWelcome_MockWithoutProvider(t *testing.T) {
	n := NewNotifications(mailer.NewLogSender(), "noreply@armonyco.test", "")

	res, err := n.SendWelcome(context.Background(), model.WelcomeEmailRequest{To: "a@b.test", Subject: "Hi"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Mock)
}

func TestSendWelcome_Errors(t *testing.T) {
	n := NewNotifications(&mockSender{err: errors.New("403 forbidden")}, "noreply@armonyco.test", "")

	_, err := n.SendWelcome(context.Background(), model.WelcomeEmailRequest{})
	require.ErrorIs(t, err, ErrMissingFields)

	_, err = n.SendWelcome(context.Background(), model.WelcomeEmailRequest{To: "not an email"})
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = n.SendWelcome(context.Background(), model.WelcomeEmailRequest{To: "a@b.test"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
