package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"

	"armonyco/internal/mailer"
	"armonyco/internal/metrics"
	"armonyco/internal/model"
)

// Organizations implements OrganizationService.
type Organizations struct {
	store   Store
	sender  mailer.Sender
	from    string
	baseURL string
}

func NewOrganizations(store Store, sender mailer.Sender, from, baseURL string) *Organizations {
	return &Organizations{
		store:   store,
		sender:  sender,
		from:    from,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// InviteCollaborator adds an existing user to the organization, or stores a
// pending invite when no account exists for the email yet.
func (o *Organizations) InviteCollaborator(ctx context.Context, req model.InviteRequest) (*model.InviteResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	orgID := strings.TrimSpace(req.OrganizationID)
	if email == "" || orgID == "" {
		return nil, fmt.Errorf("%w: email and organizationId", ErrMissingFields)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", ErrInvalidRequest)
	}

	role := model.Role(strings.ToLower(strings.TrimSpace(string(req.Role))))
	if role == "" {
		role = model.RoleMember
	}
	if !role.Valid() || role == model.RoleOwner {
		return nil, fmt.Errorf("%w: role %q cannot be granted", ErrInvalidRequest, req.Role)
	}

	profile, err := o.store.FindProfileByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find profile: %w", err)
	}

	if profile != nil {
		added, err := o.store.AddMember(ctx, orgID, profile.UserID, role)
		if err != nil {
			return nil, fmt.Errorf("add member: %w", err)
		}
		msg := "User added to organization"
		if !added {
			msg = "User is already a member of this organization"
		}
		slog.Info("invite: existing user",
			"organization_id", orgID,
			"user_id", profile.UserID,
			"role", role,
			"added", added,
		)
		return &model.InviteResult{Success: true, UserID: profile.UserID, Message: msg}, nil
	}

	if err := o.store.RecordInvite(ctx, orgID, email, role); err != nil {
		return nil, fmt.Errorf("record invite: %w", err)
	}
	slog.Info("invite: user not registered yet, invite stored",
		"organization_id", orgID,
		"email", email,
		"role", role,
	)
	o.sendInvite(ctx, email, role)

	return &model.InviteResult{
		Success: true,
		Pending: true,
		Message: "Invitation recorded. The user will join after signing up.",
	}, nil
}

func (o *Organizations) sendInvite(ctx context.Context, email string, role model.Role) {
	if o.sender == nil {
		return
	}
	signup := ""
	if o.baseURL != "" {
		signup = o.baseURL + "/signup?email=" + url.QueryEscape(email)
	}
	html, text, err := mailer.RenderInvite(mailer.InviteData{Role: string(role), SignupURL: signup})
	if err != nil {
		slog.Error("invite: failed to render email", "error", err)
		return
	}
	_, err = o.sender.Send(ctx, mailer.Message{
		From:     o.from,
		FromName: "Armonyco",
		To:       email,
		Subject:  "You have been invited to Armonyco",
		HTML:     html,
		Text:     text,
	})
	if err != nil {
		metrics.EmailsSentTotal.WithLabelValues("invite", "failed").Inc()
		slog.Error("invite: failed to send email", "email", email, "error", err)
		return
	}
	metrics.EmailsSentTotal.WithLabelValues("invite", "sent").Inc()
}

var _ OrganizationService = (*Organizations)(nil)
