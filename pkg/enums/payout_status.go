package enums

import "fmt"

// PayoutStatus is the settlement payout state machine.
//
//	created → ready_for_payout → in_progress → paid | failed
//	failed → in_progress (operator retry)
//	paid → reversed | refunded
type PayoutStatus string

const (
	PayoutStatusCreated        PayoutStatus = "created"
	PayoutStatusReadyForPayout PayoutStatus = "ready_for_payout"
	PayoutStatusInProgress     PayoutStatus = "in_progress"
	PayoutStatusPaid           PayoutStatus = "paid"
	PayoutStatusFailed         PayoutStatus = "failed"
	PayoutStatusReversed       PayoutStatus = "reversed"
	PayoutStatusRefunded       PayoutStatus = "refunded"
)

var validPayoutStatuses = []PayoutStatus{
	PayoutStatusCreated,
	PayoutStatusReadyForPayout,
	PayoutStatusInProgress,
	PayoutStatusPaid,
	PayoutStatusFailed,
	PayoutStatusReversed,
	PayoutStatusRefunded,
}

var payoutTransitions = map[PayoutStatus][]PayoutStatus{
	PayoutStatusCreated:        {PayoutStatusReadyForPayout, PayoutStatusInProgress},
	PayoutStatusReadyForPayout: {PayoutStatusInProgress},
	PayoutStatusInProgress:     {PayoutStatusPaid, PayoutStatusFailed},
	PayoutStatusPaid:           {PayoutStatusReversed, PayoutStatusRefunded},
	PayoutStatusFailed:         {PayoutStatusInProgress},
}

// String implements fmt.Stringer.
func (p PayoutStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PayoutStatus.
func (p PayoutStatus) IsValid() bool {
	for _, candidate := range validPayoutStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether the state machine allows moving to next.
func (p PayoutStatus) CanTransitionTo(next PayoutStatus) bool {
	for _, candidate := range payoutTransitions[p] {
		if candidate == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (p PayoutStatus) IsTerminal() bool {
	return len(payoutTransitions[p]) == 0
}

// ParsePayoutStatus converts raw input into a PayoutStatus.
func ParsePayoutStatus(value string) (PayoutStatus, error) {
	for _, candidate := range validPayoutStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payout status %q", value)
}
