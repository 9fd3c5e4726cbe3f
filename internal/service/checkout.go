package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"strings"
	"time"

	"armonyco/internal/metrics"
	"armonyco/internal/model"
	"armonyco/internal/payments"

	"github.com/cenkalti/backoff/v4"
)

var errMembershipPending = errors.New("membership not visible yet")

const defaultProductName = "Armo Credits"

func (b *Billing) CreateCheckout(ctx context.Context, req model.CheckoutRequest) (*model.CheckoutResult, error) {
	if b.gateway == nil {
		return nil, fmt.Errorf("%w: stripe is not configured", ErrNotConfigured)
	}

	req.Email = strings.TrimSpace(req.Email)
	req.OrganizationID = strings.TrimSpace(req.OrganizationID)
	req.UserID = strings.TrimSpace(req.UserID)
	if req.Email == "" {
		return nil, fmt.Errorf("%w: email", ErrMissingFields)
	}

	if req.OrganizationID == "" && req.UserID != "" {
		orgID, err := b.resolveOrganization(ctx, req)
		if err != nil {
			return nil, err
		}
		req.OrganizationID = orgID
	}
	if req.OrganizationID == "" {
		return nil, fmt.Errorf("%w: organizationId or userId", ErrMissingFields)
	}

	params, err := b.sessionParams(req)
	if err != nil {
		return nil, err
	}

	customerID, err := b.gateway.FindOrCreateCustomer(ctx, req.Email, map[string]string{
		model.MetaOrganizationID: req.OrganizationID,
		model.MetaUserID:         req.UserID,
	})
	if err != nil {
		metrics.CheckoutSessionsTotal.WithLabelValues(params.Mode, "failed").Inc()
		return nil, fmt.Errorf("resolve customer: %w", err)
	}
	params.CustomerID = customerID

	session, err := b.gateway.CreateCheckoutSession(ctx, params)
	if err != nil {
		metrics.CheckoutSessionsTotal.WithLabelValues(params.Mode, "failed").Inc()
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	metrics.CheckoutSessionsTotal.WithLabelValues(params.Mode, "created").Inc()

	slog.Info("checkout: session created",
		"session_id", session.ID,
		"organization_id", req.OrganizationID,
		"mode", params.Mode,
		"plan_id", params.Metadata[model.MetaPlanID],
		"credits", params.Metadata[model.MetaCredits],
	)
	return &model.CheckoutResult{SessionID: session.ID, URL: session.URL}, nil
}

// sessionParams resolves mode, price and credits for req. req.OrganizationID
// must already be set.
func (b *Billing) sessionParams(req model.CheckoutRequest) (model.CheckoutSessionParams, error) {
	planRef := req.PlanID
	if strings.TrimSpace(planRef) == "" {
		planRef = req.PlanName
	}
	plan, hasPlan := b.catalog.Plan(planRef)

	priceID := strings.TrimSpace(req.PriceID)
	if priceID == "" && hasPlan {
		priceID = plan.PriceID
	}

	mode := strings.ToLower(strings.TrimSpace(req.Mode))
	switch mode {
	case "":
		if priceID != "" && req.Amount <= 0 {
			mode = model.ModeSubscription
		} else {
			mode = model.ModePayment
		}
	case model.ModePayment, model.ModeSubscription:
	default:
		return model.CheckoutSessionParams{}, fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, req.Mode)
	}

	if req.Amount < 0 || req.Credits < 0 {
		return model.CheckoutSessionParams{}, fmt.Errorf("%w: amount and credits must not be negative", ErrInvalidRequest)
	}
	if mode == model.ModeSubscription && priceID == "" {
		return model.CheckoutSessionParams{}, fmt.Errorf("%w: no price configured for plan %q", ErrInvalidRequest, planRef)
	}
	if mode == model.ModePayment && priceID == "" && req.Amount <= 0 {
		return model.CheckoutSessionParams{}, fmt.Errorf("%w: priceId, planId or amount", ErrMissingFields)
	}

	credits := req.Credits
	if credits == 0 {
		switch {
		case mode == model.ModeSubscription && hasPlan:
			credits = plan.MonthlyCredits
		case req.Amount > 0:
			credits = payments.CreditsForAmount(req.Amount)
		case hasPlan:
			credits = plan.MonthlyCredits
		}
	}
	if mode == model.ModePayment && credits <= 0 {
		return model.CheckoutSessionParams{}, fmt.Errorf("%w: payment grants no credits", ErrInvalidRequest)
	}

	planID := ""
	productName := defaultProductName
	if hasPlan {
		planID = plan.ID
		productName = defaultProductName + " " + plan.Name
	} else if strings.TrimSpace(planRef) != "" {
		planID = strings.ToUpper(strings.TrimSpace(planRef))
	}

	metadata := make(map[string]string, len(req.Metadata)+5)
	maps.Copy(metadata, req.Metadata)
	metadata[model.MetaOrganizationID] = req.OrganizationID
	metadata[model.MetaCredits] = strconv.FormatInt(credits, 10)
	metadata[model.MetaMode] = mode
	if planID != "" {
		metadata[model.MetaPlanID] = planID
	}
	if req.UserID != "" {
		metadata[model.MetaUserID] = req.UserID
	}

	p := model.CheckoutSessionParams{
		Mode:        mode,
		PriceID:     priceID,
		Currency:    payments.Currency,
		ProductName: productName,
		SuccessURL:  strings.TrimSpace(req.SuccessURL),
		CancelURL:   strings.TrimSpace(req.CancelURL),
		Metadata:    metadata,
	}
	if priceID == "" {
		p.AmountCents = payments.AmountCents(req.Amount)
	}
	if p.SuccessURL == "" {
		p.SuccessURL = b.baseURL + "/billing?success=true&session_id={CHECKOUT_SESSION_ID}"
	}
	if p.CancelURL == "" {
		p.CancelURL = b.baseURL + "/billing?canceled=true"
	}
	return p, nil
}

// resolveOrganization finds the user's organization, provisioning one when
// the user has no membership after the lookup retries.
func (b *Billing) resolveOrganization(ctx context.Context, req model.CheckoutRequest) (string, error) {
	m, err := b.lookupMembership(ctx, req.UserID)
	if err != nil {
		return "", fmt.Errorf("lookup membership: %w", err)
	}
	if m != nil {
		return m.OrganizationID, nil
	}

	profile, err := b.store.GetProfile(ctx, req.UserID)
	if err != nil {
		slog.Warn("checkout: failed to load profile", "user_id", req.UserID, "error", err)
	}

	fullName := strings.TrimSpace(req.Metadata["fullName"])
	if fullName == "" && profile != nil {
		fullName = profile.FullName
	}

	org, err := b.store.ProvisionOrganization(ctx, model.ProvisionRequest{
		UserID:           req.UserID,
		Email:            req.Email,
		FullName:         fullName,
		OrganizationName: organizationName(req, profile),
	})
	if err != nil {
		// Another request may have provisioned the same user concurrently.
		if existing, lerr := b.store.FindMembershipByUser(ctx, req.UserID); lerr == nil && existing != nil {
			return existing.OrganizationID, nil
		}
		return "", fmt.Errorf("provision organization: %w", err)
	}
	metrics.OrganizationsProvisionedTotal.Inc()
	slog.Info("checkout: organization provisioned",
		"organization_id", org.ID,
		"user_id", req.UserID,
		"name", org.Name,
	)
	return org.ID, nil
}

func (b *Billing) lookupMembership(ctx context.Context, userID string) (*model.Membership, error) {
	var found *model.Membership
	op := func() error {
		m, err := b.store.FindMembershipByUser(ctx, userID)
		if err != nil {
			return backoff.Permanent(err)
		}
		if m == nil {
			return errMembershipPending
		}
		found = m
		return nil
	}
	notify := func(err error, next time.Duration) {
		slog.Debug("checkout: membership not found, retrying",
			"user_id", userID,
			"next_attempt_in", next,
		)
	}

	err := backoff.RetryNotifyWithTimer(op, b.lookup.backOff(ctx), notify, b.timer)
	if errors.Is(err, errMembershipPending) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return found, nil
}

func organizationName(req model.CheckoutRequest, profile *model.Profile) string {
	if name := strings.TrimSpace(req.Metadata["organizationName"]); name != "" {
		return name
	}

	candidates := []string{req.Metadata["firstName"], req.Metadata["fullName"]}
	if profile != nil {
		candidates = append(candidates, profile.FullName)
	}
	if local, _, ok := strings.Cut(req.Email, "@"); ok {
		candidates = append(candidates, local)
	}
	for _, c := range candidates {
		if fields := strings.Fields(c); len(fields) > 0 {
			return fields[0] + "'s Organization"
		}
	}
	return "My Organization"
}
