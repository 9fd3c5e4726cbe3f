package payments

import (
	"context"
	"fmt"
	"strings"

	"armonyco/internal/model"

	stripe "github.com/stripe/stripe-go/v82"
	stripesession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
)

// StripeGateway talks to Stripe through the package-level stripe-go API.
type StripeGateway struct {
	createSession func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	getSession    func(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	newCustomer   func(params *stripe.CustomerParams) (*stripe.Customer, error)
	findCustomer  func(params *stripe.CustomerListParams) (string, error)
}

func NewStripeGateway(secretKey string) *StripeGateway {
	stripe.Key = strings.TrimSpace(secretKey)
	return &StripeGateway{
		createSession: stripesession.New,
		getSession:    stripesession.Get,
		newCustomer:   customer.New,
		findCustomer:  firstCustomerID,
	}
}

func firstCustomerID(params *stripe.CustomerListParams) (string, error) {
	iter := customer.List(params)
	for iter.Next() {
		if c := iter.Customer(); c != nil && c.ID != "" {
			return c.ID, nil
		}
	}
	return "", iter.Err()
}

func (g *StripeGateway) FindOrCreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error) {
	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	id, err := g.findCustomer(params)
	if err != nil {
		return "", fmt.Errorf("search stripe customer: %w", err)
	}
	if id != "" {
		return id, nil
	}

	create := &stripe.CustomerParams{Email: stripe.String(email)}
	create.Context = ctx
	for k, v := range metadata {
		create.AddMetadata(k, v)
	}
	c, err := g.newCustomer(create)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	return c.ID, nil
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, p model.CheckoutSessionParams) (*model.CheckoutSession, error) {
	item := &stripe.CheckoutSessionLineItemParams{Quantity: stripe.Int64(1)}
	if p.PriceID != "" {
		item.Price = stripe.String(p.PriceID)
	} else {
		item.PriceData = &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(p.Currency),
			UnitAmount: stripe.Int64(p.AmountCents),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(p.ProductName),
			},
		}
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(p.Mode),
		Customer:   stripe.String(p.CustomerID),
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
		LineItems:  []*stripe.CheckoutSessionLineItemParams{item},
		Metadata:   p.Metadata,
	}
	if p.Mode == model.ModeSubscription {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{Metadata: p.Metadata}
	} else {
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{Metadata: p.Metadata}
	}
	params.Context = ctx

	s, err := g.createSession(params)
	if err != nil {
		return nil, err
	}
	if s == nil || strings.TrimSpace(s.URL) == "" {
		return nil, fmt.Errorf("stripe returned empty checkout URL")
	}
	return &model.CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func (g *StripeGateway) GetCheckoutSession(ctx context.Context, sessionID string) (*model.SessionStatus, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := g.getSession(sessionID, params)
	if err != nil {
		return nil, err
	}

	out := &model.SessionStatus{
		ID:            s.ID,
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
		CustomerEmail: s.CustomerEmail,
		Metadata:      s.Metadata,
	}
	if s.CustomerDetails != nil && s.CustomerDetails.Email != "" {
		out.CustomerEmail = s.CustomerDetails.Email
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Subscription != nil {
		out.SubscriptionID = s.Subscription.ID
	}
	return out, nil
}
