package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookRequestsTotal counts Stripe webhook requests by event type and status.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "armonyco",
		Subsystem: "billing",
		Name:      "webhook_requests_total",
		Help:      "Total Stripe webhook requests by event type and HTTP status.",
	}, []string{"event_type", "status"})

	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "armonyco",
		Subsystem: "billing",
		Name:      "webhook_duration_seconds",
		Help:      "Stripe webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	// DuplicateEventsTotal counts redelivered events skipped by de-duplication.
	DuplicateEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "armonyco",
		Subsystem: "billing",
		Name:      "duplicate_events_total",
		Help:      "Stripe events skipped because their id was already processed.",
	}, []string{"event_type"})

	CreditsAddedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "armonyco",
		Subsystem: "billing",
		Name:      "credits_added_total",
		Help:      "Armo Credits added to organizations by transaction kind.",
	}, []string{"kind"})

	CheckoutSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "armonyco",
		Subsystem: "billing",
		Name:      "checkout_sessions_total",
		Help:      "Checkout session creation attempts by mode and outcome.",
	}, []string{"mode", "outcome"})

	OrganizationsProvisionedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "armonyco",
		Subsystem: "billing",
		Name:      "organizations_provisioned_total",
		Help:      "Organizations bootstrapped during checkout.",
	})

	CacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "armonyco",
		Subsystem: "cache",
		Name:      "requests_total",
		Help:      "Response cache lookups by result.",
	}, []string{"result"})

	EmailsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "armonyco",
		Subsystem: "mail",
		Name:      "sent_total",
		Help:      "Transactional emails by template and outcome.",
	}, []string{"template", "outcome"})
)
