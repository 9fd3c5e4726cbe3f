package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"armonyco/internal/cache"
	"armonyco/internal/metrics"
	"armonyco/internal/model"
	"armonyco/internal/payments"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

const recentTransactionsLimit = 20

var creditsKeys = regexp.MustCompile(`^credits:`)

// LookupPolicy bounds the membership lookup retry during checkout.
type LookupPolicy struct {
	Attempts        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultLookupPolicy() LookupPolicy {
	return LookupPolicy{
		Attempts:        5,
		InitialInterval: 250 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

func (p LookupPolicy) backOff(ctx context.Context) backoff.BackOff {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// Billing implements BillingService.
type Billing struct {
	store   Store
	gateway PaymentGateway
	catalog *payments.Catalog
	cache   cache.Store
	bus     MessageBus
	baseURL string
	lookup  LookupPolicy
	timer   backoff.Timer
}

type BillingOption func(*Billing)

func WithCache(c cache.Store) BillingOption {
	return func(b *Billing) { b.cache = c }
}

func WithBus(bus MessageBus) BillingOption {
	return func(b *Billing) { b.bus = bus }
}

func WithBaseURL(u string) BillingOption {
	return func(b *Billing) { b.baseURL = strings.TrimRight(strings.TrimSpace(u), "/") }
}

func WithLookupPolicy(p LookupPolicy) BillingOption {
	return func(b *Billing) { b.lookup = p }
}

// WithRetryTimer replaces the timer used between membership lookups.
func WithRetryTimer(t backoff.Timer) BillingOption {
	return func(b *Billing) { b.timer = t }
}

// NewBilling wires the billing service. gateway may be nil when Stripe is
// not configured; checkout and verification then fail with ErrNotConfigured.
func NewBilling(store Store, gateway PaymentGateway, catalog *payments.Catalog, opts ...BillingOption) *Billing {
	b := &Billing{
		store:   store,
		gateway: gateway,
		catalog: catalog,
		lookup:  DefaultLookupPolicy(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.catalog == nil {
		b.catalog = payments.NewCatalog(nil)
	}
	return b
}

func (b *Billing) GetCredits(ctx context.Context, organizationID string) (*model.CreditsSummary, error) {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return nil, fmt.Errorf("%w: organizationId", ErrMissingFields)
	}
	if _, err := uuid.Parse(organizationID); err != nil {
		return nil, fmt.Errorf("%w: organizationId must be a UUID", ErrInvalidRequest)
	}

	key := cache.CreditsKey(organizationID)
	if b.cache != nil {
		if raw, ok := b.cache.Get(ctx, key); ok {
			var cached model.CreditsSummary
			if err := json.Unmarshal(raw, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	ent, err := b.store.GetEntitlement(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("load entitlement: %w", err)
	}
	if ent == nil {
		return nil, fmt.Errorf("%w: no entitlement for organization %s", ErrNotFound, organizationID)
	}
	txs, err := b.store.ListTransactions(ctx, organizationID, recentTransactionsLimit)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}

	summary := &model.CreditsSummary{
		OrganizationID:     ent.OrganizationID,
		Credits:            ent.Credits,
		SubscriptionActive: ent.SubscriptionActive,
		PlanTier:           ent.PlanTier,
		UpdatedAt:          ent.UpdatedAt,
		RecentTransactions: txs,
	}
	if b.cache != nil {
		if raw, err := json.Marshal(summary); err == nil {
			b.cache.Set(ctx, key, raw, 0)
		}
	}
	return summary, nil
}

// AdjustCredits grants credits outside of Stripe. Only positive deltas are
// accepted; consumption goes through a separate path.
func (b *Billing) AdjustCredits(ctx context.Context, req model.AdjustCreditsRequest) (*model.CreditResult, error) {
	req.OrganizationID = strings.TrimSpace(req.OrganizationID)
	if req.OrganizationID == "" {
		return nil, fmt.Errorf("%w: organization_id", ErrMissingFields)
	}
	if req.Credits <= 0 {
		return nil, fmt.Errorf("%w: credits must be positive", ErrInvalidRequest)
	}

	source := "manual"
	if r := strings.TrimSpace(req.Reason); r != "" {
		source = "manual:" + r
	}
	res, err := b.store.AddCredits(ctx, model.AddCreditsRequest{
		OrganizationID: req.OrganizationID,
		Credits:        req.Credits,
		Kind:           model.KindAdjustment,
		Source:         source,
		Reference:      req.Reference,
	})
	if err != nil {
		return nil, err
	}

	var fx effects
	fx.credited(req.OrganizationID, req.Credits, model.KindAdjustment, source, req.Reference, res)
	b.commit(ctx, fx)
	return res, nil
}

// effects collects what a committed mutation must announce.
type effects struct {
	organizations []string
	allCredits    bool
	added         []model.CreditsAddedEvent
}

func (fx *effects) touch(organizationID string) {
	fx.organizations = append(fx.organizations, organizationID)
}

func (fx *effects) credited(organizationID string, credits int64, kind model.TransactionKind, source, reference string, res *model.CreditResult) {
	fx.touch(organizationID)
	fx.added = append(fx.added, model.CreditsAddedEvent{
		OrganizationID:  organizationID,
		Credits:         credits,
		PreviousBalance: res.PreviousBalance,
		NewBalance:      res.NewBalance,
		Kind:            kind,
		Source:          source,
		Reference:       reference,
		CreatedAt:       time.Now().UTC(),
	})
}

func (b *Billing) commit(ctx context.Context, fx effects) {
	if b.cache != nil {
		if fx.allCredits {
			b.cache.InvalidatePattern(ctx, creditsKeys)
		}
		for _, org := range fx.organizations {
			b.cache.Invalidate(ctx, cache.CreditsKey(org))
		}
	}

	for _, ev := range fx.added {
		metrics.CreditsAddedTotal.WithLabelValues(string(ev.Kind)).Add(float64(ev.Credits))
		slog.Info("ledger: credits added",
			"organization_id", ev.OrganizationID,
			"credits", ev.Credits,
			"previous_balance", ev.PreviousBalance,
			"new_balance", ev.NewBalance,
			"kind", ev.Kind,
		)
		if b.bus == nil {
			continue
		}
		data, err := json.Marshal(ev)
		if err != nil {
			slog.Error("ledger: failed to encode credits event", "error", err)
			continue
		}
		if err := b.bus.Publish(model.TopicCreditsAdded, data); err != nil {
			slog.Error("ledger: failed to publish credits event",
				"organization_id", ev.OrganizationID,
				"error", err,
			)
		}
	}
}

var _ BillingService = (*Billing)(nil)
