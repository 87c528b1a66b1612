package cron

import (
	"context"
	"fmt"

	"github.com/bazario/bazario-backend/internal/payouts"
	"github.com/bazario/bazario-backend/pkg/logger"
)

// payoutSweeper is the slice of the payout engine the sweep job needs.
type payoutSweeper interface {
	ProcessPayouts(ctx context.Context) (payouts.SweepSummary, error)
}

// PayoutSweepJobParams configure the daily payout sweep.
type PayoutSweepJobParams struct {
	Logger  *logger.Logger
	Payouts payoutSweeper
}

// NewPayoutSweepJob builds the cron job that pays out every settlement that
// is ready and unclaimed. Per-settlement failures are already isolated by
// the engine; the job only reports them.
func NewPayoutSweepJob(params PayoutSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payout service required")
	}
	return &payoutSweepJob{
		logg:    params.Logger,
		payouts: params.Payouts,
	}, nil
}

type payoutSweepJob struct {
	logg    *logger.Logger
	payouts payoutSweeper
}

func (j *payoutSweepJob) Name() string { return "payout-sweep" }

func (j *payoutSweepJob) Run(ctx context.Context) error {
	summary, err := j.payouts.ProcessPayouts(ctx)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"attempted": summary.Attempted,
		"paid":      summary.Paid,
		"failed":    summary.Failed,
	})
	if err != nil {
		j.logg.Warn(logCtx, "payout sweep finished with failures")
		return fmt.Errorf("payout sweep: %w", err)
	}
	j.logg.Info(logCtx, "payout sweep loop complete")
	return nil
}
