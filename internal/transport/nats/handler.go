package nats

import (
	"context"
	"encoding/json"
	"log/slog"

	"armonyco/internal/model"
	"armonyco/internal/service"

	"github.com/nats-io/nats.go"
)

const commandQueue = "billing_group"

// Handler subscribes to NATS command topics and delegates to the billing service.
type Handler struct {
	svc  service.BillingService
	nc   *nats.Conn
	subs []*nats.Subscription
}

func NewHandler(svc service.BillingService, nc *nats.Conn) *Handler {
	return &Handler{svc: svc, nc: nc}
}

// Start subscribes to command topics and blocks until ctx is cancelled (graceful shutdown).
func (h *Handler) Start(ctx context.Context) error {
	sub, err := h.nc.QueueSubscribe(model.TopicAdjustCommand, commandQueue, func(m *nats.Msg) {
		h.adjust(ctx, m)
	})
	if err != nil {
		return err
	}
	h.subs = append(h.subs, sub)

	slog.Info("NATS command handler is running", "topic", model.TopicAdjustCommand)

	<-ctx.Done()
	slog.Info("NATS command handler shutting down, draining subscriptions...")

	for _, s := range h.subs {
		_ = s.Drain()
	}
	return nil
}

func (h *Handler) Stop(ctx context.Context) error {
	for _, s := range h.subs {
		_ = s.Unsubscribe()
	}
	return nil
}

type adjustReply struct {
	OK              bool   `json:"ok"`
	NewBalance      int64  `json:"new_balance,omitempty"`
	PreviousBalance int64  `json:"previous_balance,omitempty"`
	Error           string `json:"error,omitempty"`
}

func (h *Handler) adjust(ctx context.Context, m *nats.Msg) {
	var req model.AdjustCreditsRequest
	if err := json.Unmarshal(m.Data, &req); err != nil {
		slog.Error("nats: failed to unmarshal adjust command", "error", err)
		h.reply(m, adjustReply{Error: "invalid payload"})
		return
	}

	res, err := h.svc.AdjustCredits(ctx, req)
	if err != nil {
		slog.Error("nats: adjust credits failed", "error", err, "organization_id", req.OrganizationID)
		h.reply(m, adjustReply{Error: err.Error()})
		return
	}
	h.reply(m, adjustReply{OK: true, NewBalance: res.NewBalance, PreviousBalance: res.PreviousBalance})
}

// reply answers request/reply callers; fire-and-forget publishes have no inbox.
func (h *Handler) reply(m *nats.Msg, r adjustReply) {
	if m.Reply == "" {
		return
	}
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	if err := m.Respond(data); err != nil {
		slog.Warn("nats: failed to reply", "error", err)
	}
}
