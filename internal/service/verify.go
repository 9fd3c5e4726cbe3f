package service

import (
	"context"
	"fmt"
	"strings"

	"armonyco/internal/model"
)

const paymentStatusPaid = "paid"

// VerifyPayment reports whether Stripe considers the session paid. It never
// mutates state; the webhook stays authoritative.
func (b *Billing) VerifyPayment(ctx context.Context, sessionID string) (*model.PaymentVerification, error) {
	if b.gateway == nil {
		return nil, fmt.Errorf("%w: stripe is not configured", ErrNotConfigured)
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: sessionId", ErrMissingFields)
	}

	s, err := b.gateway.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("retrieve checkout session: %w", err)
	}

	if s.PaymentStatus != paymentStatusPaid {
		return &model.PaymentVerification{
			Verified:      false,
			PaymentStatus: s.PaymentStatus,
			Message:       "Payment not completed",
		}, nil
	}
	return &model.PaymentVerification{
		Verified:       true,
		Status:         s.Status,
		PaymentStatus:  s.PaymentStatus,
		CustomerEmail:  s.CustomerEmail,
		Metadata:       s.Metadata,
		CustomerID:     s.CustomerID,
		SubscriptionID: s.SubscriptionID,
	}, nil
}
