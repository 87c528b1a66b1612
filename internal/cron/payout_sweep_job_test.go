package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazario/bazario-backend/internal/payouts"
)

type fakeSweeper struct {
	summary payouts.SweepSummary
	err     error
	calls   int
}

func (s *fakeSweeper) ProcessPayouts(ctx context.Context) (payouts.SweepSummary, error) {
	s.calls++
	return s.summary, s.err
}

func TestPayoutSweepJob_Run(t *testing.T) {
	sweeper := &fakeSweeper{summary: payouts.SweepSummary{Attempted: 3, Paid: 3}}
	job, err := NewPayoutSweepJob(PayoutSweepJobParams{Logger: testLogger(), Payouts: sweeper})
	require.NoError(t, err)

	assert.Equal(t, "payout-sweep", job.Name())
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, sweeper.calls)
}

func TestPayoutSweepJob_RunReportsFailures(t *testing.T) {
	sweeper := &fakeSweeper{
		summary: payouts.SweepSummary{Attempted: 2, Paid: 1, Failed: 1},
		err:     errors.New("transfer rejected"),
	}
	job, err := NewPayoutSweepJob(PayoutSweepJobParams{Logger: testLogger(), Payouts: sweeper})
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transfer rejected")
}

func TestNewPayoutSweepJob_Validation(t *testing.T) {
	_, err := NewPayoutSweepJob(PayoutSweepJobParams{Logger: testLogger()})
	require.Error(t, err)

	_, err = NewPayoutSweepJob(PayoutSweepJobParams{Payouts: &fakeSweeper{}})
	require.Error(t, err)
}
