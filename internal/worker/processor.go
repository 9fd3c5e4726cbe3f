package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"armonyco/internal/cache"
	"armonyco/internal/mailer"
	"armonyco/internal/metrics"
	"armonyco/internal/model"

	"github.com/nats-io/nats.go"
)

const receiptQueue = "receipt_group"

// OwnerLookup resolves the email of an organization's owner.
type OwnerLookup interface {
	OwnerEmail(ctx context.Context, organizationID string) (string, error)
}

// CreditsWorker reacts to "credits.added" events. Every instance drops its
// cached credits summary; one instance per queue group emails the receipt.
type CreditsWorker struct {
	owners   OwnerLookup
	sender   mailer.Sender
	cache    cache.Store
	from     string
	natsConn *nats.Conn
}

func NewCreditsWorker(owners OwnerLookup, sender mailer.Sender, c cache.Store, from string, nc *nats.Conn) *CreditsWorker {
	return &CreditsWorker{
		owners:   owners,
		sender:   sender,
		cache:    c,
		from:     from,
		natsConn: nc,
	}
}

// Run subscribes to "credits.added" and blocks until ctx is cancelled.
func (w *CreditsWorker) Run(ctx context.Context) error {
	// Broadcast: every replica holds its own memory cache.
	invalidate, err := w.natsConn.Subscribe(model.TopicCreditsAdded, func(m *nats.Msg) {
		if ev, ok := decodeEvent(m); ok {
			w.Invalidate(ctx, ev)
		}
	})
	if err != nil {
		return fmt.Errorf("worker: failed to subscribe to NATS: %w", err)
	}

	// QueueSubscribe delivers each event to a single member of the group.
	receipts, err := w.natsConn.QueueSubscribe(model.TopicCreditsAdded, receiptQueue, func(m *nats.Msg) {
		ev, ok := decodeEvent(m)
		if !ok {
			return
		}
		if err := w.SendReceipt(ctx, ev); err != nil {
			slog.Error("worker: failed to send receipt",
				"organization_id", ev.OrganizationID,
				"error", err,
			)
		}
	})
	if err != nil {
		_ = invalidate.Unsubscribe()
		return fmt.Errorf("worker: failed to subscribe to NATS: %w", err)
	}

	slog.Info("Credits worker is running")

	<-ctx.Done()

	slog.Info("Worker received shutdown signal, draining subscriptions...")
	_ = invalidate.Drain()
	return receipts.Drain()
}

func (w *CreditsWorker) Invalidate(ctx context.Context, ev model.CreditsAddedEvent) {
	if w.cache != nil {
		w.cache.Invalidate(ctx, cache.CreditsKey(ev.OrganizationID))
	}
}

// SendReceipt emails the organization owner about a credit addition.
// Organizations without an owner email are skipped.
func (w *CreditsWorker) SendReceipt(ctx context.Context, ev model.CreditsAddedEvent) error {
	if w.sender == nil || mailer.IsMock(w.sender) {
		return nil
	}
	to, err := w.owners.OwnerEmail(ctx, ev.OrganizationID)
	if err != nil {
		return fmt.Errorf("lookup owner: %w", err)
	}
	if to == "" {
		slog.Warn("worker: organization has no owner email", "organization_id", ev.OrganizationID)
		return nil
	}

	html, text, err := mailer.RenderReceipt(mailer.ReceiptData{Credits: ev.Credits, NewBalance: ev.NewBalance})
	if err != nil {
		return err
	}
	id, err := w.sender.Send(ctx, mailer.Message{
		From:     w.from,
		FromName: "Armonyco",
		To:       to,
		Subject:  "Armo Credits added to your organization",
		HTML:     html,
		Text:     text,
	})
	if err != nil {
		metrics.EmailsSentTotal.WithLabelValues("receipt", "failed").Inc()
		return err
	}
	metrics.EmailsSentTotal.WithLabelValues("receipt", "sent").Inc()
	slog.Info("worker: receipt sent",
		"organization_id", ev.OrganizationID,
		"message_id", id,
	)
	return nil
}

func decodeEvent(m *nats.Msg) (model.CreditsAddedEvent, bool) {
	var ev model.CreditsAddedEvent
	if err := json.Unmarshal(m.Data, &ev); err != nil {
		slog.Error("worker: failed to unmarshal nats message", "error", err)
		return ev, false
	}
	return ev, true
}

// Start implements the infrastructure.Server interface.
func (w *CreditsWorker) Start(ctx context.Context) error {
	return w.Run(ctx)
}

// Stop implements the infrastructure.Server interface (no-op, shutdown is via ctx).
func (w *CreditsWorker) Stop(ctx context.Context) error {
	return nil
}
