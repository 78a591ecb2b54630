package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/temcen/lotus/internal/config"
	"github.com/temcen/lotus/pkg/models"
)

const maxHandlerRetries = 3

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// MessageBus publishes assessment events and consumes reference library updates.
type MessageBus struct {
	writer           messageWriter
	reader           messageReader
	assessmentsTopic string
	updatesTopic     string
	retryBaseDelay   time.Duration
	logger           *logrus.Logger
}

func NewMessageBus(cfg *config.Config, logger *logrus.Logger) (*MessageBus, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka enabled but no brokers configured")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topics.Assessments,
		Balancer:     &kafka.Hash{}, // Key by user so a user's events stay ordered
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          cfg.Kafka.Topics.ReferenceUpdates,
		GroupID:        cfg.Kafka.GroupID,
		MinBytes:       1,
		MaxBytes:       1e6, // 1MB
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
	})

	bus := newMessageBus(writer, reader, logger)
	bus.assessmentsTopic = cfg.Kafka.Topics.Assessments
	bus.updatesTopic = cfg.Kafka.Topics.ReferenceUpdates
	return bus, nil
}

func newMessageBus(writer messageWriter, reader messageReader, logger *logrus.Logger) *MessageBus {
	return &MessageBus{
		writer:         writer,
		reader:         reader,
		retryBaseDelay: time.Second,
		logger:         logger,
	}
}

func (mb *MessageBus) PublishAssessment(ctx context.Context, event models.AssessmentEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal assessment event: %w", err)
	}

	key := event.UserID
	if key == "" {
		key = event.AssessmentID.String()
	}

	message := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.EventID.String())},
			{Key: "score_source", Value: []byte(event.ScoreSource)},
			{Key: "timestamp", Value: []byte(event.Timestamp.Format(time.RFC3339))},
		},
	}

	if err := mb.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to write assessment event: %w", err)
	}

	mb.logger.WithFields(logrus.Fields{
		"assessment_id": event.AssessmentID,
		"topic":         mb.assessmentsTopic,
	}).Debug("Assessment event published")

	return nil
}

// ConsumeReferenceUpdates blocks, handing each update to handler until ctx is done.
func (mb *MessageBus) ConsumeReferenceUpdates(ctx context.Context, handler func(context.Context, models.ReferenceUpdateEvent) error) error {
	mb.logger.WithField("topic", mb.updatesTopic).Info("Consuming reference updates")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		message, err := mb.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) {
				return err
			}
			mb.logger.WithError(err).Error("Failed to read reference update from Kafka")
			continue
		}

		var event models.ReferenceUpdateEvent
		if err := json.Unmarshal(message.Value, &event); err != nil {
			mb.logger.WithError(err).WithField("offset", message.Offset).Error("Failed to unmarshal reference update")
			continue
		}

		if err := mb.processWithRetry(ctx, event, handler); err != nil {
			mb.logger.WithError(err).WithField("offset", message.Offset).Error("Failed to apply reference update after retries")
		}
	}
}

func (mb *MessageBus) processWithRetry(ctx context.Context, event models.ReferenceUpdateEvent, handler func(context.Context, models.ReferenceUpdateEvent) error) error {
	var lastErr error
	for attempt := 0; attempt <= maxHandlerRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			delay := mb.retryBaseDelay * time.Duration(1<<uint(attempt-1))
			mb.logger.WithFields(logrus.Fields{
				"action":  event.Action,
				"attempt": attempt,
				"delay":   delay,
			}).Info("Retrying reference update")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if lastErr = handler(ctx, event); lastErr == nil {
			return nil
		}
		mb.logger.WithError(lastErr).WithField("attempt", attempt).Warn("Reference update handler failed")
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (mb *MessageBus) Close() error {
	var errs []error

	if err := mb.writer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close producer: %w", err))
	}
	if err := mb.reader.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close consumer: %w", err))
	}

	return errors.Join(errs...)
}
