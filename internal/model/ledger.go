package model

import "time"

// TransactionKind classifies a row in the credit transaction log.
type TransactionKind string

const (
	KindPurchase   TransactionKind = "purchase"
	KindRenewal    TransactionKind = "renewal"
	KindAdjustment TransactionKind = "adjustment"
	KindExecution  TransactionKind = "execution"
	KindRefund     TransactionKind = "refund"
)

// TopicCreditsAdded is published after every committed credit addition.
const TopicCreditsAdded = "credits.added"

// TopicAdjustCommand carries manual credit adjustments from operators.
const TopicAdjustCommand = "commands.credits.adjust"

type Entitlement struct {
	OrganizationID       string    `json:"organization_id"`
	Credits              int64     `json:"credits"`
	SubscriptionActive   bool      `json:"subscription_active"`
	PlanTier             string    `json:"plan_tier,omitempty"`
	StripeCustomerID     string    `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID string    `json:"stripe_subscription_id,omitempty"`
	UpdatedAt            time.Time `json:"updated_at"`
}

type CreditTransaction struct {
	ID             int64           `json:"id"`
	OrganizationID string          `json:"organization_id"`
	CreditsBefore  int64           `json:"credits_before"`
	Delta          int64           `json:"delta"`
	CreditsAfter   int64           `json:"credits_after"`
	Kind           TransactionKind `json:"kind"`
	Source         string          `json:"source"`
	Reference      string          `json:"reference,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

type AddCreditsRequest struct {
	OrganizationID string
	Credits        int64
	Kind           TransactionKind
	Source         string
	Reference      string
}

type CreditResult struct {
	NewBalance      int64 `json:"new_balance"`
	PreviousBalance int64 `json:"previous_balance"`
}

// AdjustCreditsRequest is the payload of TopicAdjustCommand.
type AdjustCreditsRequest struct {
	OrganizationID string `json:"organization_id"`
	Credits        int64  `json:"credits"`
	Reason         string `json:"reason"`
	Reference      string `json:"reference"`
}

type CreditsAddedEvent struct {
	OrganizationID  string          `json:"organization_id"`
	Credits         int64           `json:"credits"`
	PreviousBalance int64           `json:"previous_balance"`
	NewBalance      int64           `json:"new_balance"`
	Kind            TransactionKind `json:"kind"`
	Source          string          `json:"source"`
	Reference       string          `json:"reference,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// CreditsSummary is the dashboard view of an organization's credits.
type CreditsSummary struct {
	OrganizationID     string              `json:"organizationId"`
	Credits            int64               `json:"credits"`
	SubscriptionActive bool                `json:"subscriptionActive"`
	PlanTier           string              `json:"planTier,omitempty"`
	UpdatedAt          time.Time           `json:"updatedAt"`
	RecentTransactions []CreditTransaction `json:"recentTransactions"`
}
