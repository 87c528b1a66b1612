package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayoutStatus_Transitions(t *testing.T) {
	cases := []struct {
		from    PayoutStatus
		to      PayoutStatus
		allowed bool
	}{
		{PayoutStatusCreated, PayoutStatusReadyForPayout, true},
		{PayoutStatusCreated, PayoutStatusInProgress, true},
		{PayoutStatusCreated, PayoutStatusPaid, false},
		{PayoutStatusReadyForPayout, PayoutStatusInProgress, true},
		{PayoutStatusReadyForPayout, PayoutStatusPaid, false},
		{PayoutStatusInProgress, PayoutStatusPaid, true},
		{PayoutStatusInProgress, PayoutStatusFailed, true},
		{PayoutStatusInProgress, PayoutStatusReadyForPayout, false},
		{PayoutStatusFailed, PayoutStatusInProgress, true},
		{PayoutStatusFailed, PayoutStatusPaid, false},
		{PayoutStatusPaid, PayoutStatusReversed, true},
		{PayoutStatusPaid, PayoutStatusRefunded, true},
		{PayoutStatusPaid, PayoutStatusInProgress, false},
		{PayoutStatusReversed, PayoutStatusInProgress, false},
		{PayoutStatusRefunded, PayoutStatusInProgress, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestPayoutStatus_Terminal(t *testing.T) {
	assert.True(t, PayoutStatusReversed.IsTerminal())
	assert.True(t, PayoutStatusRefunded.IsTerminal())
	assert.False(t, PayoutStatusPaid.IsTerminal())
	assert.False(t, PayoutStatusFailed.IsTerminal())
}

func TestParsePayoutStatus(t *testing.T) {
	status, err := ParsePayoutStatus("ready_for_payout")
	require.NoError(t, err)
	assert.Equal(t, PayoutStatusReadyForPayout, status)

	_, err = ParsePayoutStatus("pending")
	require.Error(t, err)
}
