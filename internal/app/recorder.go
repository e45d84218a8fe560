package app

import (
	"context"
	"log/slog"

	"github.com/utafrali/paycheckout/internal/domain"
	"github.com/utafrali/paycheckout/internal/metrics"
)

// OutcomePublisher publishes settled outcomes. *event.Producer implements it.
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, o *domain.Outcome) error
}

// OutcomeRecorder counts every settled outcome and, when a publisher is
// configured, emits it as an event. Publishing is best effort: a failure is
// logged and counted but never changes what the buyer sees.
type OutcomeRecorder struct {
	publisher OutcomePublisher
	logger    *slog.Logger
}

// NewOutcomeRecorder creates a recorder. publisher may be nil.
func NewOutcomeRecorder(publisher OutcomePublisher, logger *slog.Logger) *OutcomeRecorder {
	return &OutcomeRecorder{publisher: publisher, logger: logger}
}

// Record implements the rails' Recorder.
func (r *OutcomeRecorder) Record(ctx context.Context, o *domain.Outcome) {
	if o == nil {
		return
	}
	metrics.RecordOutcome(o)

	if r.publisher == nil {
		return
	}
	if err := r.publisher.PublishOutcome(ctx, o); err != nil {
		metrics.OutcomePublishErrors.Inc()
		r.logger.WarnContext(ctx, "failed to publish payment outcome",
			slog.String("attempt_id", o.AttemptID),
			slog.String("kind", string(o.Kind)),
			slog.String("error", err.Error()),
		)
	}
}
