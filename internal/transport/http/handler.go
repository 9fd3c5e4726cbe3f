package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"armonyco/internal/metrics"
	"armonyco/internal/model"
	"armonyco/internal/service"

	"github.com/stripe/stripe-go/v82/webhook"
)

const maxWebhookBody = 1 << 20

type Handler struct {
	billing       service.BillingService
	orgs          service.OrganizationService
	notifications service.NotificationService
	webhookSecret string
}

func NewHandler(billing service.BillingService, orgs service.OrganizationService, notifications service.NotificationService, webhookSecret string) *Handler {
	return &Handler{
		billing:       billing,
		orgs:          orgs,
		notifications: notifications,
		webhookSecret: webhookSecret,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	h.route(mux, http.MethodGet, "/health", h.Health)
	h.route(mux, http.MethodPost, "/api/stripe/create-checkout", h.CreateCheckout)
	h.route(mux, http.MethodGet, "/api/stripe/verify-payment", h.VerifyPayment)
	h.route(mux, http.MethodPost, "/api/stripe/webhook", h.Webhook)
	h.route(mux, http.MethodPost, "/api/email/welcome", h.SendWelcome)
	h.route(mux, http.MethodPost, "/api/organization/invite-collaborator", h.InviteCollaborator)
	h.route(mux, http.MethodGet, "/api/organization/credits", h.GetCredits)
}

// route registers fn for method on path and answers any other method with
// a JSON 405.
func (h *Handler) route(mux *http.ServeMux, method, path string, fn http.HandlerFunc) {
	mux.HandleFunc(method+" "+path, fn)
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", method+", "+http.MethodOptions)
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", r.Method+" is not supported on "+path)
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req model.CheckoutRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.billing.CreateCheckout(r.Context(), req)
	if err != nil {
		h.fail(w, "checkout", err)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessionID := q.Get("sessionId")
	if sessionID == "" {
		sessionID = q.Get("session_id")
	}
	res, err := h.billing.VerifyPayment(r.Context(), sessionID)
	if err != nil {
		h.fail(w, "verify", err)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

// Webhook verifies the Stripe signature over the raw body before anything
// is decoded.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	eventType := "unknown"
	status := http.StatusOK
	defer func() {
		metrics.WebhookRequestsTotal.WithLabelValues(eventType, strconv.Itoa(status)).Inc()
		metrics.WebhookDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}()

	if h.webhookSecret == "" {
		status = http.StatusInternalServerError
		slog.Error("webhook: STRIPE_WEBHOOK_SECRET is not set")
		h.respondError(w, status, "Webhook not configured", "STRIPE_WEBHOOK_SECRET is not configured")
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		status = http.StatusBadRequest
		h.respondError(w, status, "Invalid payload", "could not read request body")
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), h.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		status = http.StatusBadRequest
		slog.Warn("webhook: signature verification failed", "error", err)
		h.respondError(w, status, "Webhook Error", err.Error())
		return
	}
	eventType = string(event.Type)

	pe := model.PaymentEvent{ID: event.ID, Type: eventType}
	if event.Data != nil {
		pe.Raw = event.Data.Raw
	}
	if err := h.billing.HandleEvent(r.Context(), pe); err != nil {
		status = statusFor(err)
		slog.Error("webhook: event processing failed",
			"event_id", event.ID,
			"type", eventType,
			"error", err,
		)
		h.respondError(w, status, "Webhook processing failed", err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *Handler) SendWelcome(w http.ResponseWriter, r *http.Request) {
	var req model.WelcomeEmailRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.notifications.SendWelcome(r.Context(), req)
	if err != nil {
		h.fail(w, "email", err)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

func (h *Handler) InviteCollaborator(w http.ResponseWriter, r *http.Request) {
	var req model.InviteRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.orgs.InviteCollaborator(r.Context(), req)
	if err != nil {
		h.fail(w, "invite", err)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

func (h *Handler) GetCredits(w http.ResponseWriter, r *http.Request) {
	res, err := h.billing.GetCredits(r.Context(), r.URL.Query().Get("organizationId"))
	if err != nil {
		h.fail(w, "credits", err)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, component string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error(component+": request failed", "error", err)
	} else {
		slog.Warn(component+": request rejected", "error", err)
	}
	h.respondError(w, status, errorTitle(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrMissingFields), errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func errorTitle(err error) string {
	switch {
	case errors.Is(err, service.ErrMissingFields):
		return "Missing required fields"
	case errors.Is(err, service.ErrInvalidRequest):
		return "Invalid request"
	case errors.Is(err, service.ErrNotFound):
		return "Not found"
	case errors.Is(err, service.ErrNotConfigured):
		return "Not configured"
	default:
		return "Internal server error"
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, title, message string) {
	h.respondJSON(w, status, map[string]string{"error": title, "message": message})
}
