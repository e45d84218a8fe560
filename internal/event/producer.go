package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/paycheckout/internal/domain"
	pkgkafka "github.com/utafrali/paycheckout/pkg/kafka"
	"github.com/utafrali/paycheckout/pkg/logger"
)

// Kafka topic constants for payment outcome events.
var (
	TopicPaymentSucceeded = pkgkafka.Topic("payment", "succeeded")
	TopicPaymentDeclined  = pkgkafka.Topic("payment", "declined")
	TopicPaymentFailed    = pkgkafka.Topic("payment", "failed")
	TopicPaymentCancelled = pkgkafka.Topic("payment", "cancelled")
)

// Aggregate type constant.
const AggregateTypePayment = "payment_attempt"

// Source identifier for events originating from the checkout.
const SourceCheckout = "paycheckout"

// Publisher is the subset of *pkgkafka.Producer the event producer needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// PaymentOutcomeData is the payload shared by every payment.* event.
type PaymentOutcomeData struct {
	AttemptID         string `json:"attempt_id"`
	Rail              string `json:"rail"`
	Kind              string `json:"kind"`
	OrderID           string `json:"order_id,omitempty"`
	TransactionID     string `json:"transaction_id,omitempty"`
	TransactionStatus string `json:"transaction_status,omitempty"`
	Issue             string `json:"issue,omitempty"`
	DebugID           string `json:"debug_id,omitempty"`
	Reason            string `json:"reason,omitempty"`
}

// Producer publishes payment outcome events to Kafka.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// TopicFor maps an outcome kind to its topic.
func TopicFor(kind domain.OutcomeKind) string {
	switch kind {
	case domain.OutcomeSuccess:
		return TopicPaymentSucceeded
	case domain.OutcomeRecoverableDecline:
		return TopicPaymentDeclined
	case domain.OutcomeCancelled:
		return TopicPaymentCancelled
	default:
		return TopicPaymentFailed
	}
}

// PublishOutcome publishes the event matching the outcome's kind.
func (p *Producer) PublishOutcome(ctx context.Context, o *domain.Outcome) error {
	if o == nil {
		return nil
	}

	data := PaymentOutcomeData{
		AttemptID: o.AttemptID,
		Rail:      string(o.Rail),
		Kind:      string(o.Kind),
		OrderID:   o.OrderID,
		Issue:     o.Issue,
		DebugID:   o.DebugID,
	}
	if o.Transaction != nil {
		data.TransactionID = o.Transaction.ID
		data.TransactionStatus = o.Transaction.Status
	}
	if !o.Succeeded() {
		data.Reason = o.Message
	}

	topic := TopicFor(o.Kind)
	event, err := pkgkafka.NewEvent(topic, o.AttemptID, AggregateTypePayment, SourceCheckout, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	event.WithCorrelationID(logger.CorrelationIDFromContext(ctx)).
		WithMetadata("order_id", o.OrderID)

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published payment outcome event",
		slog.String("topic", topic),
		slog.String("attempt_id", o.AttemptID),
		slog.String("order_id", o.OrderID),
	)

	return nil
}
