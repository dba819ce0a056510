package entitlement_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/fangate/pkg/entitlement"
)

func TestDefaultCatalog(t *testing.T) {
	t.Parallel()

	catalog := entitlement.DefaultCatalog()

	price, err := catalog.Price(entitlement.TierBasic, entitlement.CycleMonthly)
	require.NoError(t, err)
	assert.Equal(t, int64(999), price.Amount)
	assert.Equal(t, "USD", price.Currency)
	assert.Equal(t, "price_basic_monthly", price.PriceID)

	price, err = catalog.Price(entitlement.TierPremium, entitlement.CycleQuarterly)
	require.NoError(t, err)
	assert.Equal(t, int64(5399), price.Amount)

	price, err = catalog.Price(entitlement.TierVIP, entitlement.CycleYearly)
	require.NoError(t, err)
	assert.Equal(t, int64(49999), price.Amount)

	_, err = catalog.Price(entitlement.Tier("gold"), entitlement.CycleMonthly)
	assert.ErrorIs(t, err, entitlement.ErrPriceNotFound)

	plans := catalog.Plans()
	require.Len(t, plans, 3)
	assert.Equal(t, entitlement.TierBasic, plans[0].Tier)
	assert.Equal(t, entitlement.TierPremium, plans[1].Tier)
	assert.Equal(t, entitlement.TierVIP, plans[2].Tier)
}

func TestTierForPriceID(t *testing.T) {
	t.Parallel()

	catalog := entitlement.DefaultCatalog()

	tier, cycle, ok := catalog.TierForPriceID("price_vip_quarterly")
	require.True(t, ok)
	assert.Equal(t, entitlement.TierVIP, tier)
	assert.Equal(t, entitlement.CycleQuarterly, cycle)

	_, _, ok = catalog.TierForPriceID("price_unknown")
	assert.False(t, ok)
}

func TestNewCatalogValidation(t *testing.T) {
	t.Parallel()

	_, err := entitlement.NewCatalog()
	assert.ErrorIs(t, err, entitlement.ErrInvalidCatalog)

	// Missing yearly price.
	_, err = entitlement.NewCatalog(entitlement.Plan{
		Tier: entitlement.TierBasic,
		Name: "Basic",
		Prices: map[entitlement.BillingCycle]entitlement.Price{
			entitlement.CycleMonthly:   {Amount: 999, Currency: "USD", PriceID: "p1"},
			entitlement.CycleQuarterly: {Amount: 2699, Currency: "USD", PriceID: "p2"},
		},
	})
	assert.ErrorIs(t, err, entitlement.ErrInvalidCatalog)

	// Tier "none" is not purchasable.
	_, err = entitlement.NewCatalog(entitlement.Plan{
		Tier: entitlement.TierNone,
		Name: "Free",
		Prices: map[entitlement.BillingCycle]entitlement.Price{
			entitlement.CycleMonthly:   {Amount: 1, Currency: "USD", PriceID: "p1"},
			entitlement.CycleQuarterly: {Amount: 1, Currency: "USD", PriceID: "p2"},
			entitlement.CycleYearly:    {Amount: 1, Currency: "USD", PriceID: "p3"},
		},
	})
	assert.ErrorIs(t, err, entitlement.ErrInvalidCatalog)
}
