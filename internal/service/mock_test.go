package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"armonyco/internal/mailer"
	"armonyco/internal/model"
)

// mockStore is an in-memory Store. WithEvent snapshots state and restores
// it when fn fails, like a rolled back transaction.
type mockStore struct {
	mu sync.Mutex

	entitlements  map[string]model.Entitlement
	transactions  []model.CreditTransaction
	events        map[string]string
	memberships   []model.Membership
	organizations []model.Organization
	profiles      map[string]model.Profile
	invites       []string

	// membershipAfter hides memberships until FindMembershipByUser was
	// called this many times.
	membershipAfter int
	lookups         int
	lookupErr       error
	provisionErr    error
	addCreditsErr   error
}

func newMockStore() *mockStore {
	return &mockStore{
		entitlements: map[string]model.Entitlement{},
		events:       map[string]string{},
		profiles:     map[string]model.Profile{},
	}
}

func (m *mockStore) AddCredits(_ context.Context, req model.AddCreditsRequest) (*model.CreditResult, error) {
	if m.addCreditsErr != nil {
		return nil, m.addCreditsErr
	}
	if req.Credits < 0 {
		return nil, errors.New("negative delta")
	}
	ent := m.entitlements[req.OrganizationID]
	ent.OrganizationID = req.OrganizationID
	prev := ent.Credits
	ent.Credits += req.Credits
	ent.UpdatedAt = time.Now()
	m.entitlements[req.OrganizationID] = ent
	m.transactions = append(m.transactions, model.CreditTransaction{
		ID:             int64(len(m.transactions) + 1),
		OrganizationID: req.OrganizationID,
		CreditsBefore:  prev,
		Delta:          req.Credits,
		CreditsAfter:   ent.Credits,
		Kind:           req.Kind,
		Source:         req.Source,
		Reference:      req.Reference,
		CreatedAt:      time.Now(),
	})
	return &model.CreditResult{NewBalance: ent.Credits, PreviousBalance: prev}, nil
}

func (m *mockStore) GetEntitlement(_ context.Context, organizationID string) (*model.Entitlement, error) {
	ent, ok := m.entitlements[organizationID]
	if !ok {
		return nil, nil
	}
	return &ent, nil
}

func (m *mockStore) ListTransactions(_ context.Context, organizationID string, limit int) ([]model.CreditTransaction, error) {
	var out []model.CreditTransaction
	for _, tx := range slices.Backward(m.transactions) {
		if tx.OrganizationID == organizationID && len(out) < limit {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *mockStore) ActivateSubscription(_ context.Context, organizationID, planTier, customerID, subscriptionID string) error {
	ent := m.entitlements[organizationID]
	ent.OrganizationID = organizationID
	ent.SubscriptionActive = true
	if planTier != "" {
		ent.PlanTier = planTier
	}
	if customerID != "" {
		ent.StripeCustomerID = customerID
	}
	if subscriptionID != "" {
		ent.StripeSubscriptionID = subscriptionID
	}
	m.entitlements[organizationID] = ent
	return nil
}

func (m *mockStore) SetCustomer(_ context.Context, organizationID, customerID string) error {
	ent := m.entitlements[organizationID]
	ent.OrganizationID = organizationID
	ent.StripeCustomerID = customerID
	m.entitlements[organizationID] = ent
	return nil
}

func (m *mockStore) FindEntitlementByCustomer(_ context.Context, customerID string) (*model.Entitlement, error) {
	for _, ent := range m.entitlements {
		if ent.StripeCustomerID == customerID {
			return &ent, nil
		}
	}
	return nil, nil
}

func (m *mockStore) DeactivateSubscription(_ context.Context, subscriptionID string) (int64, error) {
	var n int64
	for id, ent := range m.entitlements {
		if ent.StripeSubscriptionID == subscriptionID {
			ent.SubscriptionActive = false
			m.entitlements[id] = ent
			n++
		}
	}
	return n, nil
}

func (m *mockStore) WithEvent(_ context.Context, eventID, eventType string, fn func(Store) error) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.events[eventID]; ok {
		return false, nil
	}
	m.events[eventID] = eventType

	entitlements := maps.Clone(m.entitlements)
	transactions := slices.Clone(m.transactions)
	if err := fn(m); err != nil {
		m.entitlements = entitlements
		m.transactions = transactions
		delete(m.events, eventID)
		return false, err
	}
	return true, nil
}

func (m *mockStore) FindMembershipByUser(_ context.Context, userID string) (*model.Membership, error) {
	m.lookups++
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	if m.lookups <= m.membershipAfter {
		return nil, nil
	}
	for _, mb := range m.memberships {
		if mb.UserID == userID {
			return &mb, nil
		}
	}
	return nil, nil
}

func (m *mockStore) GetProfile(_ context.Context, userID string) (*model.Profile, error) {
	p, ok := m.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *mockStore) FindProfileByEmail(_ context.Context, email string) (*model.Profile, error) {
	for _, p := range m.profiles {
		if strings.EqualFold(p.Email, email) {
			return &p, nil
		}
	}
	return nil, nil
}

func (m *mockStore) ProvisionOrganization(_ context.Context, req model.ProvisionRequest) (*model.Organization, error) {
	if m.provisionErr != nil {
		return nil, m.provisionErr
	}
	org := model.Organization{
		ID:      fmt.Sprintf("00000000-0000-4000-8000-%012d", len(m.organizations)+1),
		OwnerID: req.UserID,
		Name:    req.OrganizationName,
	}
	m.organizations = append(m.organizations, org)
	m.memberships = append(m.memberships, model.Membership{OrganizationID: org.ID, UserID: req.UserID, Role: model.RoleOwner})
	m.entitlements[org.ID] = model.Entitlement{OrganizationID: org.ID}
	m.profiles[req.UserID] = model.Profile{
		UserID:         req.UserID,
		Email:          req.Email,
		FullName:       req.FullName,
		OrganizationID: org.ID,
	}
	return &org, nil
}

func (m *mockStore) AddMember(_ context.Context, organizationID, userID string, role model.Role) (bool, error) {
	for _, mb := range m.memberships {
		if mb.OrganizationID == organizationID && mb.UserID == userID {
			return false, nil
		}
	}
	m.memberships = append(m.memberships, model.Membership{OrganizationID: organizationID, UserID: userID, Role: role})
	return true, nil
}

func (m *mockStore) RecordInvite(_ context.Context, organizationID, email string, role model.Role) error {
	m.invites = append(m.invites, organizationID+"|"+email+"|"+string(role))
	return nil
}

func (m *mockStore) OwnerEmail(_ context.Context, organizationID string) (string, error) {
	for _, org := range m.organizations {
		if org.ID == organizationID {
			return m.profiles[org.OwnerID].Email, nil
		}
	}
	return "", nil
}

type mockGateway struct {
	customers []string
	sessions  []model.CheckoutSessionParams
	status    *model.SessionStatus
	err       error
}

func (g *mockGateway) FindOrCreateCustomer(_ context.Context, email string, _ map[string]string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	g.customers = append(g.customers, email)
	return "cus_test", nil
}

func (g *mockGateway) CreateCheckoutSession(_ context.Context, p model.CheckoutSessionParams) (*model.CheckoutSession, error) {
	if g.err != nil {
		return nil, g.err
	}
	g.sessions = append(g.sessions, p)
	id := fmt.Sprintf("cs_test_%d", len(g.sessions))
	return &model.CheckoutSession{ID: id, URL: "https://checkout.stripe.com/c/pay/" + id}, nil
}

func (g *mockGateway) GetCheckoutSession(_ context.Context, sessionID string) (*model.SessionStatus, error) {
	if g.err != nil {
		return nil, g.err
	}
	s := *g.status
	s.ID = sessionID
	return &s, nil
}

type mockBus struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func (b *mockBus) Publish(topic string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.published == nil {
		b.published = map[string][][]byte{}
	}
	b.published[topic] = append(b.published[topic], data)
	return nil
}

// mockTimer fires immediately and records every requested delay.
type mockTimer struct {
	ch     chan time.Time
	delays []time.Duration
}

func newMockTimer() *mockTimer {
	return &mockTimer{ch: make(chan time.Time, 1)}
}

func (t *mockTimer) Start(d time.Duration) {
	t.delays = append(t.delays, d)
	t.ch <- time.Now()
}

func (t *mockTimer) Stop() {}

func (t *mockTimer) C() <-chan time.Time { return t.ch }

type mockSender struct {
	sent []mailer.Message
	err  error
}

func (s *mockSender) Send(_ context.Context, msg mailer.Message) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, msg)
	return fmt.Sprintf("msg-%d", len(s.sent)), nil
}
