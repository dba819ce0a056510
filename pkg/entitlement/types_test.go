package entitlement_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/fangate/pkg/entitlement"
)

func TestTierOrdering(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, entitlement.TierNone.Ordinal())
	assert.Equal(t, 1, entitlement.TierBasic.Ordinal())
	assert.Equal(t, 2, entitlement.TierPremium.Ordinal())
	assert.Equal(t, 3, entitlement.TierVIP.Ordinal())
	assert.Equal(t, -1, entitlement.Tier("platinum").Ordinal())

	assert.True(t, entitlement.TierVIP.AtLeast(entitlement.TierBasic))
	assert.True(t, entitlement.TierPremium.AtLeast(entitlement.TierPremium))
	assert.False(t, entitlement.TierBasic.AtLeast(entitlement.TierPremium))
	assert.True(t, entitlement.TierBasic.AtLeast(entitlement.TierNone))
	// Unknown tiers never satisfy anything, not even themselves, and a
	// valid tier never satisfies an unknown requirement.
	assert.False(t, entitlement.Tier("platinum").AtLeast(entitlement.Tier("platinum")))
	assert.False(t, entitlement.Tier("platinum").AtLeast(entitlement.TierBasic))
	assert.False(t, entitlement.TierBasic.AtLeast(entitlement.Tier("platinum")))
	assert.False(t, entitlement.TierVIP.AtLeast(entitlement.Tier("platinum")))
}

func TestParseTier(t *testing.T) {
	t.Parallel()

	tier, err := entitlement.ParseTier("  Premium ")
	require.NoError(t, err)
	assert.Equal(t, entitlement.TierPremium, tier)

	_, err = entitlement.ParseTier("none")
	assert.ErrorIs(t, err, entitlement.ErrInvalidTier)

	_, err = entitlement.ParseTier("gold")
	assert.ErrorIs(t, err, entitlement.ErrInvalidTier)
}

func TestParseBillingCycle(t *testing.T) {
	t.Parallel()

	cycle, err := entitlement.ParseBillingCycle("")
	require.NoError(t, err)
	assert.Equal(t, entitlement.CycleMonthly, cycle)

	cycle, err = entitlement.ParseBillingCycle("YEARLY")
	require.NoError(t, err)
	assert.Equal(t, entitlement.CycleYearly, cycle)

	_, err = entitlement.ParseBillingCycle("weekly")
	assert.ErrorIs(t, err, entitlement.ErrInvalidBillingCycle)
}

func TestStateHelpers(t *testing.T) {
	t.Parallel()

	assert.True(t, entitlement.StateCancelled.IsTerminal())
	assert.False(t, entitlement.StateSuspended.IsTerminal())
	assert.False(t, entitlement.StatePastDue.IsTerminal())

	assert.True(t, entitlement.StateActive.GrantsAccess())
	assert.False(t, entitlement.StatePending.GrantsAccess())
	assert.False(t, entitlement.StatePastDue.GrantsAccess())
	assert.False(t, entitlement.StateSuspended.GrantsAccess())
}
