package payments

import (
	"math"
	"sort"
	"strings"
)

// Conversion rates for Armo Credits. They stay on the server.
const (
	TokensPerCredit = 1000
	CreditsPerEuro  = 100
	Currency        = "eur"
)

type Plan struct {
	ID             string
	Name           string
	MonthlyCredits int64
	PriceID        string
}

var defaultPlans = []Plan{
	{ID: "STARTER", Name: "Starter", MonthlyCredits: 25_000},
	{ID: "PRO", Name: "Pro", MonthlyCredits: 100_000},
	{ID: "ELITE", Name: "Elite", MonthlyCredits: 300_000},
}

// Catalog maps plan ids to prices and renewal credits.
type Catalog struct {
	plans map[string]Plan
}

// NewCatalog builds the catalog from STRIPE_PRICE_<PLAN> values keyed by
// upper-case plan id. Prices for unknown plans become plans without
// renewal credits.
func NewCatalog(prices map[string]string) *Catalog {
	c := &Catalog{plans: make(map[string]Plan, len(defaultPlans))}
	for _, p := range defaultPlans {
		p.PriceID = strings.TrimSpace(prices[p.ID])
		c.plans[p.ID] = p
	}
	for id, price := range prices {
		id = normalizePlanID(id)
		if _, ok := c.plans[id]; ok || id == "" {
			continue
		}
		c.plans[id] = Plan{ID: id, Name: id, PriceID: strings.TrimSpace(price)}
	}
	return c
}

func (c *Catalog) Plan(id string) (Plan, bool) {
	p, ok := c.plans[normalizePlanID(id)]
	return p, ok
}

// RenewalCredits returns the credits granted by one paid billing period.
func (c *Catalog) RenewalCredits(planTier string) int64 {
	p, ok := c.Plan(planTier)
	if !ok {
		return 0
	}
	return p.MonthlyCredits
}

func (c *Catalog) Plans() []Plan {
	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CreditsForAmount converts a euro amount to credits from the cents that
// are actually charged, so 19.99 buys 1999 credits.
func CreditsForAmount(euros float64) int64 {
	if euros <= 0 {
		return 0
	}
	return AmountCents(euros) * CreditsPerEuro / 100
}

// AmountCents converts a euro amount to the smallest currency unit.
func AmountCents(euros float64) int64 {
	return int64(math.Round(euros * 100))
}

func TokensForCredits(credits int64) int64 {
	return credits * TokensPerCredit
}

func normalizePlanID(id string) string {
	id = strings.ToUpper(strings.TrimSpace(id))
	return strings.NewReplacer("-", "_", " ", "_").Replace(id)
}
