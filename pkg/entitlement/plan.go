package entitlement

import (
	"errors"
	"fmt"
)

// Plan describes one purchasable tier: its price per billing cycle and
// the marketing copy shown on the plans page. The PriceID of each price
// must match the payment gateway's price identifier so checkout and
// webhook processing can map both ways without lookups.
type Plan struct {
	Tier        Tier
	Name        string
	Description string
	Features    []string
	Prices      map[BillingCycle]Price
}

// Price is a single catalog price point.
type Price struct {
	Amount   int64  // smallest currency unit
	Currency string // ISO 4217
	PriceID  string // gateway's price identifier
}

// Catalog is the static tier price table consumed by checkout and
// lifecycle operations. It is immutable after construction.
type Catalog struct {
	plans map[Tier]Plan
}

// NewCatalog validates and builds a catalog from the given plans.
// Every plan must carry a valid tier and a price for every billing cycle.
func NewCatalog(plans ...Plan) (*Catalog, error) {
	if len(plans) == 0 {
		return nil, errors.Join(ErrInvalidCatalog, errors.New("at least one plan is required"))
	}

	byTier := make(map[Tier]Plan, len(plans))
	for _, plan := range plans {
		if !plan.Tier.Valid() {
			return nil, errors.Join(ErrInvalidCatalog, fmt.Errorf("plan %q has invalid tier", plan.Name))
		}
		if _, dup := byTier[plan.Tier]; dup {
			return nil, errors.Join(ErrInvalidCatalog, fmt.Errorf("duplicate plan for tier %s", plan.Tier))
		}
		for _, cycle := range []BillingCycle{CycleMonthly, CycleQuarterly, CycleYearly} {
			price, ok := plan.Prices[cycle]
			if !ok {
				return nil, errors.Join(ErrInvalidCatalog, fmt.Errorf("plan %s is missing a %s price", plan.Tier, cycle))
			}
			if price.Amount <= 0 || price.Currency == "" || price.PriceID == "" {
				return nil, errors.Join(ErrInvalidCatalog, fmt.Errorf("plan %s has an incomplete %s price", plan.Tier, cycle))
			}
		}
		byTier[plan.Tier] = plan
	}

	return &Catalog{plans: byTier}, nil
}

// Price returns the catalog price for a tier and billing cycle.
func (c *Catalog) Price(tier Tier, cycle BillingCycle) (Price, error) {
	plan, ok := c.plans[tier]
	if !ok {
		return Price{}, ErrPriceNotFound
	}
	price, ok := plan.Prices[cycle]
	if !ok {
		return Price{}, ErrPriceNotFound
	}
	return price, nil
}

// Plan returns the full plan for a tier.
func (c *Catalog) Plan(tier Tier) (Plan, bool) {
	plan, ok := c.plans[tier]
	return plan, ok
}

// Plans returns all plans in tier order for listing pages.
func (c *Catalog) Plans() []Plan {
	out := make([]Plan, 0, len(c.plans))
	for _, tier := range []Tier{TierBasic, TierPremium, TierVIP} {
		if plan, ok := c.plans[tier]; ok {
			out = append(out, plan)
		}
	}
	return out
}

// TierForPriceID resolves a gateway price identifier back to its tier
// and cycle. Used by the reconciler to cross-check webhook payloads.
func (c *Catalog) TierForPriceID(priceID string) (Tier, BillingCycle, bool) {
	for tier, plan := range c.plans {
		for cycle, price := range plan.Prices {
			if price.PriceID == priceID {
				return tier, cycle, true
			}
		}
	}
	return "", "", false
}

// DefaultCatalog returns the standard three-tier price table.
func DefaultCatalog() *Catalog {
	catalog, err := NewCatalog(
		Plan{
			Tier:        TierBasic,
			Name:        "Basic",
			Description: "Access to basic content",
			Features:    []string{"Basic content access", "Standard quality streaming"},
			Prices: map[BillingCycle]Price{
				CycleMonthly:   {Amount: 999, Currency: "USD", PriceID: "price_basic_monthly"},
				CycleQuarterly: {Amount: 2699, Currency: "USD", PriceID: "price_basic_quarterly"},
				CycleYearly:    {Amount: 9999, Currency: "USD", PriceID: "price_basic_yearly"},
			},
		},
		Plan{
			Tier:        TierPremium,
			Name:        "Premium",
			Description: "Access to premium content",
			Features:    []string{"All basic features", "Premium content access", "HD streaming", "Early access"},
			Prices: map[BillingCycle]Price{
				CycleMonthly:   {Amount: 1999, Currency: "USD", PriceID: "price_premium_monthly"},
				CycleQuarterly: {Amount: 5399, Currency: "USD", PriceID: "price_premium_quarterly"},
				CycleYearly:    {Amount: 19999, Currency: "USD", PriceID: "price_premium_yearly"},
			},
		},
		Plan{
			Tier:        TierVIP,
			Name:        "VIP",
			Description: "Access to all content plus exclusive perks",
			Features:    []string{"All premium features", "VIP content access", "4K streaming", "Direct messaging", "Custom requests"},
			Prices: map[BillingCycle]Price{
				CycleMonthly:   {Amount: 4999, Currency: "USD", PriceID: "price_vip_monthly"},
				CycleQuarterly: {Amount: 13499, Currency: "USD", PriceID: "price_vip_quarterly"},
				CycleYearly:    {Amount: 49999, Currency: "USD", PriceID: "price_vip_yearly"},
			},
		},
	)
	if err != nil {
		panic(err) // static table, unreachable
	}
	return catalog
}
