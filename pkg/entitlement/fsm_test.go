package entitlement

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyTransition(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("legal moves", func(t *testing.T) {
		t.Parallel()

		cases := []struct {
			current State
			event   TransitionEvent
			want    State
		}{
			{StatePending, TransitionActivate, StateActive},
			{StatePastDue, TransitionPaymentSucceeded, StateActive},
			{StateActive, TransitionPaymentFailed, StatePastDue},
			{StateActive, TransitionDelete, StateCancelled},
			{StatePastDue, TransitionDelete, StateCancelled},
			{StatePending, TransitionDelete, StateCancelled},
			{StateSuspended, TransitionDelete, StateCancelled},
			{StateActive, TransitionSuspend, StateSuspended},
			{StateSuspended, TransitionResume, StateActive},
		}
		for _, tc := range cases {
			next, changed, err := applyTransition(ctx, tc.current, tc.event)
			require.NoError(t, err, "%s on %s", tc.event, tc.current)
			assert.True(t, changed)
			assert.Equal(t, tc.want, next)
		}
	})

	t.Run("illegal moves are stale", func(t *testing.T) {
		t.Parallel()

		cases := []struct {
			current State
			event   TransitionEvent
		}{
			{StateCancelled, TransitionActivate},
			{StateCancelled, TransitionDelete},
			{StateCancelled, TransitionPaymentSucceeded},
			{StateActive, TransitionPaymentSucceeded},
			{StatePending, TransitionPaymentFailed},
			{StateSuspended, TransitionPaymentSucceeded},
		}
		for _, tc := range cases {
			next, changed, err := applyTransition(ctx, tc.current, tc.event)
			assert.ErrorIs(t, err, ErrStaleEvent, "%s on %s", tc.event, tc.current)
			assert.False(t, changed)
			assert.Equal(t, tc.current, next)
		}
	})
}
