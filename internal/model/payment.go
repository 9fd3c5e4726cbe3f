package model

import "encoding/json"

const (
	ModePayment      = "payment"
	ModeSubscription = "subscription"
)

// Session metadata keys. The webhook trusts them only after the Stripe
// signature has been verified.
const (
	MetaOrganizationID = "organization_id"
	MetaPlanID         = "plan_id"
	MetaCredits        = "credits"
	MetaMode           = "mode"
	MetaUserID         = "user_id"
)

// CheckoutRequest is the body of POST /api/stripe/create-checkout.
type CheckoutRequest struct {
	PlanID         string            `json:"planId"`
	PlanName       string            `json:"planName"`
	PriceID        string            `json:"priceId"`
	Amount         float64           `json:"amount"`
	Credits        int64             `json:"credits"`
	Email          string            `json:"email"`
	OrganizationID string            `json:"organizationId"`
	UserID         string            `json:"userId"`
	Metadata       map[string]string `json:"metadata"`
	SuccessURL     string            `json:"successUrl"`
	CancelURL      string            `json:"cancelUrl"`
	Mode           string            `json:"mode"`
}

type CheckoutResult struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// CheckoutSessionParams is what the checkout builder asks the payment
// provider to create.
type CheckoutSessionParams struct {
	Mode        string
	CustomerID  string
	PriceID     string
	AmountCents int64
	Currency    string
	ProductName string
	SuccessURL  string
	CancelURL   string
	Metadata    map[string]string
}

type CheckoutSession struct {
	ID  string
	URL string
}

// SessionStatus is the provider's view of a checkout session.
type SessionStatus struct {
	ID             string
	Status         string
	PaymentStatus  string
	CustomerEmail  string
	CustomerID     string
	SubscriptionID string
	Metadata       map[string]string
}

// PaymentVerification is the body of GET /api/stripe/verify-payment.
type PaymentVerification struct {
	Verified       bool              `json:"verified"`
	Status         string            `json:"status,omitempty"`
	PaymentStatus  string            `json:"paymentStatus,omitempty"`
	CustomerEmail  string            `json:"customerEmail,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CustomerID     string            `json:"customerId,omitempty"`
	SubscriptionID string            `json:"subscriptionId,omitempty"`
	Message        string            `json:"message,omitempty"`
}

// PaymentEvent is a signature-verified provider notification.
type PaymentEvent struct {
	ID   string
	Type string
	Raw  json.RawMessage
}
