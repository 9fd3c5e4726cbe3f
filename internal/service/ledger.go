package service

import (
	"context"
	"errors"

	"armonyco/internal/model"
)

var (
	ErrMissingFields  = errors.New("missing required fields")
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotConfigured  = errors.New("not configured")
	ErrNotFound       = errors.New("not found")
)

// BillingService defines the credits and payment operations.
// All transport layers (HTTP, NATS) depend on this interface, not on the concrete implementation.
type BillingService interface {
	CreateCheckout(ctx context.Context, req model.CheckoutRequest) (*model.CheckoutResult, error)
	VerifyPayment(ctx context.Context, sessionID string) (*model.PaymentVerification, error)
	HandleEvent(ctx context.Context, event model.PaymentEvent) error
	GetCredits(ctx context.Context, organizationID string) (*model.CreditsSummary, error)
	AdjustCredits(ctx context.Context, req model.AdjustCreditsRequest) (*model.CreditResult, error)
}

type OrganizationService interface {
	InviteCollaborator(ctx context.Context, req model.InviteRequest) (*model.InviteResult, error)
}

type NotificationService interface {
	SendWelcome(ctx context.Context, req model.WelcomeEmailRequest) (*model.EmailResult, error)
}

// Store is the persistence the services need. WithEvent runs fn inside a
// transaction that also records eventID; it reports false without calling
// fn when the event was already processed.
type Store interface {
	AddCredits(ctx context.Context, req model.AddCreditsRequest) (*model.CreditResult, error)
	GetEntitlement(ctx context.Context, organizationID string) (*model.Entitlement, error)
	ListTransactions(ctx context.Context, organizationID string, limit int) ([]model.CreditTransaction, error)
	ActivateSubscription(ctx context.Context, organizationID, planTier, customerID, subscriptionID string) error
	SetCustomer(ctx context.Context, organizationID, customerID string) error
	FindEntitlementByCustomer(ctx context.Context, customerID string) (*model.Entitlement, error)
	DeactivateSubscription(ctx context.Context, subscriptionID string) (int64, error)
	WithEvent(ctx context.Context, eventID, eventType string, fn func(Store) error) (bool, error)

	FindMembershipByUser(ctx context.Context, userID string) (*model.Membership, error)
	GetProfile(ctx context.Context, userID string) (*model.Profile, error)
	FindProfileByEmail(ctx context.Context, email string) (*model.Profile, error)
	ProvisionOrganization(ctx context.Context, req model.ProvisionRequest) (*model.Organization, error)
	AddMember(ctx context.Context, organizationID, userID string, role model.Role) (bool, error)
	RecordInvite(ctx context.Context, organizationID, email string, role model.Role) error
	OwnerEmail(ctx context.Context, organizationID string) (string, error)
}

// PaymentGateway is the hosted payment provider.
type PaymentGateway interface {
	FindOrCreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error)
	CreateCheckoutSession(ctx context.Context, params model.CheckoutSessionParams) (*model.CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*model.SessionStatus, error)
}

// MessageBus publishes domain events.
type MessageBus interface {
	Publish(topic string, data []byte) error
}
