package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"armonyco/internal/metrics"
	"armonyco/internal/model"
)

// Stripe event types handled by HandleEvent.
const (
	EventCheckoutCompleted          = "checkout.session.completed"
	EventCheckoutAsyncPaymentPaid   = "checkout.session.async_payment_succeeded"
	EventInvoicePaymentSucceeded    = "invoice.payment_succeeded"
	EventCustomerSubscriptionDelete = "customer.subscription.deleted"
)

const billingReasonSubscriptionCreate = "subscription_create"

// stripeRef decodes a Stripe reference that may be an id or an expanded object.
type stripeRef string

func (r *stripeRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = stripeRef(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*r = stripeRef(obj.ID)
	return nil
}

type checkoutSessionObject struct {
	ID            string            `json:"id"`
	Mode          string            `json:"mode"`
	PaymentStatus string            `json:"payment_status"`
	Customer      stripeRef         `json:"customer"`
	Subscription  stripeRef         `json:"subscription"`
	Metadata      map[string]string `json:"metadata"`
}

type invoiceObject struct {
	ID            string    `json:"id"`
	Customer      stripeRef `json:"customer"`
	Subscription  stripeRef `json:"subscription"`
	BillingReason string    `json:"billing_reason"`
	Parent        *struct {
		SubscriptionDetails *struct {
			Subscription stripeRef         `json:"subscription"`
			Metadata     map[string]string `json:"metadata"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (inv invoiceObject) subscriptionID() string {
	if inv.Subscription != "" {
		return string(inv.Subscription)
	}
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil {
		return string(inv.Parent.SubscriptionDetails.Subscription)
	}
	return ""
}

func (inv invoiceObject) planID() string {
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil {
		return inv.Parent.SubscriptionDetails.Metadata[model.MetaPlanID]
	}
	return ""
}

type subscriptionObject struct {
	ID       string    `json:"id"`
	Customer stripeRef `json:"customer"`
}

// HandleEvent applies a verified Stripe event at most once. Redelivered
// events are acknowledged without side effects.
func (b *Billing) HandleEvent(ctx context.Context, event model.PaymentEvent) error {
	if event.ID == "" {
		return fmt.Errorf("%w: event id", ErrInvalidRequest)
	}

	var fx effects
	applied, err := b.store.WithEvent(ctx, event.ID, event.Type, func(tx Store) error {
		fx = effects{}
		switch event.Type {
		case EventCheckoutCompleted, EventCheckoutAsyncPaymentPaid:
			return b.applyCheckoutCompleted(ctx, tx, event, &fx)
		case EventInvoicePaymentSucceeded:
			return b.applyInvoicePaid(ctx, tx, event, &fx)
		case EventCustomerSubscriptionDelete:
			return b.applySubscriptionDeleted(ctx, tx, event, &fx)
		default:
			slog.Info("webhook: unhandled event type", "event_id", event.ID, "type", event.Type)
			return nil
		}
	})
	if err != nil {
		return fmt.Errorf("process event %s: %w", event.ID, err)
	}
	if !applied {
		metrics.DuplicateEventsTotal.WithLabelValues(event.Type).Inc()
		slog.Info("webhook: duplicate event skipped", "event_id", event.ID, "type", event.Type)
		return nil
	}

	b.commit(ctx, fx)
	return nil
}

func (b *Billing) applyCheckoutCompleted(ctx context.Context, tx Store, event model.PaymentEvent, fx *effects) error {
	var s checkoutSessionObject
	if err := json.Unmarshal(event.Raw, &s); err != nil {
		return fmt.Errorf("%w: decode checkout session: %v", ErrInvalidRequest, err)
	}

	orgID := strings.TrimSpace(s.Metadata[model.MetaOrganizationID])
	if orgID == "" {
		slog.Warn("webhook: checkout session without organization metadata",
			"event_id", event.ID,
			"session_id", s.ID,
		)
		return nil
	}

	mode := s.Mode
	if mode == "" {
		mode = s.Metadata[model.MetaMode]
	}
	if mode == model.ModeSubscription {
		planTier := s.Metadata[model.MetaPlanID]
		if err := tx.ActivateSubscription(ctx, orgID, planTier, string(s.Customer), string(s.Subscription)); err != nil {
			return fmt.Errorf("activate subscription: %w", err)
		}
		slog.Info("webhook: subscription activated",
			"organization_id", orgID,
			"plan_tier", planTier,
			"subscription_id", string(s.Subscription),
		)
	} else if s.Customer != "" {
		if err := tx.SetCustomer(ctx, orgID, string(s.Customer)); err != nil {
			return fmt.Errorf("store customer: %w", err)
		}
	}
	fx.touch(orgID)

	if s.PaymentStatus == "unpaid" {
		slog.Info("webhook: checkout completed but payment pending",
			"organization_id", orgID,
			"session_id", s.ID,
		)
		return nil
	}

	raw := strings.TrimSpace(s.Metadata[model.MetaCredits])
	if raw == "" {
		return nil
	}
	credits, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || credits < 0 {
		slog.Warn("webhook: invalid credits metadata",
			"organization_id", orgID,
			"session_id", s.ID,
			"credits", raw,
		)
		return nil
	}
	if credits == 0 {
		return nil
	}

	const source = "stripe:checkout"
	res, err := tx.AddCredits(ctx, model.AddCreditsRequest{
		OrganizationID: orgID,
		Credits:        credits,
		Kind:           model.KindPurchase,
		Source:         source,
		Reference:      s.ID,
	})
	if err != nil {
		return fmt.Errorf("add credits: %w", err)
	}
	fx.credited(orgID, credits, model.KindPurchase, source, s.ID, res)
	return nil
}

func (b *Billing) applyInvoicePaid(ctx context.Context, tx Store, event model.PaymentEvent, fx *effects) error {
	var inv invoiceObject
	if err := json.Unmarshal(event.Raw, &inv); err != nil {
		return fmt.Errorf("%w: decode invoice: %v", ErrInvalidRequest, err)
	}
	if inv.BillingReason == billingReasonSubscriptionCreate {
		slog.Debug("webhook: first invoice credited by checkout", "invoice_id", inv.ID)
		return nil
	}
	if inv.Customer == "" {
		slog.Warn("webhook: invoice without customer", "invoice_id", inv.ID)
		return nil
	}

	ent, err := tx.FindEntitlementByCustomer(ctx, string(inv.Customer))
	if err != nil {
		return fmt.Errorf("find entitlement by customer: %w", err)
	}
	if ent == nil {
		slog.Warn("webhook: no organization for customer",
			"customer_id", string(inv.Customer),
			"invoice_id", inv.ID,
		)
		return nil
	}

	planTier := ent.PlanTier
	if planTier == "" {
		planTier = inv.planID()
	}
	if err := tx.ActivateSubscription(ctx, ent.OrganizationID, planTier, string(inv.Customer), inv.subscriptionID()); err != nil {
		return fmt.Errorf("activate subscription: %w", err)
	}
	fx.touch(ent.OrganizationID)

	credits := b.catalog.RenewalCredits(planTier)
	if credits <= 0 {
		slog.Warn("webhook: no renewal credits for plan",
			"organization_id", ent.OrganizationID,
			"plan_tier", planTier,
		)
		return nil
	}

	const source = "stripe:invoice"
	res, err := tx.AddCredits(ctx, model.AddCreditsRequest{
		OrganizationID: ent.OrganizationID,
		Credits:        credits,
		Kind:           model.KindRenewal,
		Source:         source,
		Reference:      inv.ID,
	})
	if err != nil {
		return fmt.Errorf("add renewal credits: %w", err)
	}
	fx.credited(ent.OrganizationID, credits, model.KindRenewal, source, inv.ID, res)
	return nil
}

func (b *Billing) applySubscriptionDeleted(ctx context.Context, tx Store, event model.PaymentEvent, fx *effects) error {
	var sub subscriptionObject
	if err := json.Unmarshal(event.Raw, &sub); err != nil {
		return fmt.Errorf("%w: decode subscription: %v", ErrInvalidRequest, err)
	}
	if sub.ID == "" {
		return nil
	}

	n, err := tx.DeactivateSubscription(ctx, sub.ID)
	if err != nil {
		return fmt.Errorf("deactivate subscription: %w", err)
	}
	if n == 0 {
		slog.Warn("webhook: no entitlement for subscription", "subscription_id", sub.ID)
		return nil
	}
	fx.allCredits = true
	slog.Info("webhook: subscription deactivated", "subscription_id", sub.ID)
	return nil
}
