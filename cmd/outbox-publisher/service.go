package main

import (
	"context"
	"errors"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/bazario/bazario-backend/pkg/config"
	"github.com/bazario/bazario-backend/pkg/db/models"
	"github.com/bazario/bazario-backend/pkg/logger"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultMaxAttempts    = 10
	defaultPublishTimeout = 15 * time.Second
)

// messagePublisher publishes one message and blocks until the broker acks it.
type messagePublisher interface {
	Publish(ctx context.Context, data []byte, attrs map[string]string) (string, error)
}

type outboxRepository interface {
	FetchUnpublished(limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(id uuid.UUID) error
	MarkFailed(id uuid.UUID, cause error) error
}

// gcpPublisher adapts the Pub/Sub v2 publisher to messagePublisher.
type gcpPublisher struct {
	publisher *gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, data []byte, attrs map[string]string) (string, error) {
	result := p.publisher.Publish(ctx, &gcppubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	return result.Get(ctx)
}

// ServiceParams configure the outbox publisher loop.
type ServiceParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	Repository outboxRepository
	Publisher  messagePublisher
}

// Service drains the outbox table into the settlement event topic. Rows that
// keep failing stop being fetched once they exhaust their attempts; they
// stay in the table for operators to inspect.
type Service struct {
	logg           *logger.Logger
	repo           outboxRepository
	publisher      messagePublisher
	batchSize      int
	maxAttempts    int
	pollInterval   time.Duration
	publishTimeout time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository is required")
	}
	if params.Publisher == nil {
		return nil, errors.New("publisher is required")
	}

	batch := params.Config.Outbox.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	maxAttempts := params.Config.Outbox.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	pollInterval := params.Config.Outbox.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	publishTimeout := params.Config.Outbox.PublishTimeout
	if publishTimeout <= 0 {
		publishTimeout = defaultPublishTimeout
	}

	return &Service{
		logg:           params.Logger,
		repo:           params.Repository,
		publisher:      params.Publisher,
		batchSize:      batch,
		maxAttempts:    maxAttempts,
		pollInterval:   pollInterval,
		publishTimeout: publishTimeout,
	}, nil
}

// Run polls the outbox until the context is canceled. A full batch triggers
// an immediate next poll; an empty one waits for the poll interval.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "outbox publisher context canceled")
			return ctx.Err()
		default:
		}

		processed, err := s.processBatch(ctx)
		if err != nil {
			s.logg.Error(ctx, "outbox publisher batch error", err)
		}
		if processed >= s.batchSize {
			continue
		}

		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "outbox publisher context canceled")
			return ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
}

func (s *Service) processBatch(ctx context.Context) (int, error) {
	rows, err := s.repo.FetchUnpublished(s.batchSize, s.maxAttempts)
	if err != nil {
		return 0, err
	}

	for _, row := range rows {
		if ctx.Err() != nil {
			return len(rows), ctx.Err()
		}
		s.publishRow(ctx, row)
	}
	return len(rows), nil
}

func (s *Service) publishRow(ctx context.Context, row models.OutboxEvent) {
	rowCtx := s.logg.WithFields(ctx, map[string]any{
		"outbox_id":    row.ID.String(),
		"event_type":   row.EventType,
		"aggregate_id": row.AggregateID.String(),
	})

	publishCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()

	msgID, err := s.publisher.Publish(publishCtx, row.Payload, map[string]string{
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
	})
	if err != nil {
		s.logg.Error(rowCtx, "failed to publish outbox event", err)
		if markErr := s.repo.MarkFailed(row.ID, err); markErr != nil {
			s.logg.Error(rowCtx, "failed to record publish failure", markErr)
		}
		return
	}

	if err := s.repo.MarkPublished(row.ID); err != nil {
		// The broker has the message; the row will be retried and the
		// consumer must dedupe on the envelope event id.
		s.logg.Error(rowCtx, "failed to mark outbox event published", err)
		return
	}
	s.logg.Debug(s.logg.WithField(rowCtx, "message_id", msgID), "outbox event published")
}
