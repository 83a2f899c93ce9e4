package publisher

import (
	"context"
	"encoding/json"
	"time"

	"Argus/internal/models"
	"Argus/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// Job lifecycle event types.
const (
	EventJobEnqueued  = "job_enqueued"
	EventJobCompleted = "job_completed"
	EventJobError     = "job_error"
)

// JobEvent is the message published for each job lifecycle transition.
type JobEvent struct {
	Type      string           `json:"type"`
	JobID     string           `json:"job_id"`
	TraceID   string           `json:"trace_id"`
	Status    models.JobStatus `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
}

// EventPublisher publishes job lifecycle events to Kafka. A nil publisher is
// valid and drops every event, so callers never have to branch on whether
// eventing is configured.
type EventPublisher struct {
	writer *kafka.Writer
	logger *logger.Logger
}

// NewEventPublisher creates a publisher writing to the given topic.
func NewEventPublisher(brokers []string, topic string, logger *logger.Logger) *EventPublisher {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	})
	return &EventPublisher{
		writer: writer,
		logger: logger,
	}
}

// Publish sends a job event. Failures are logged and swallowed: eventing is
// advisory and must never fail a job.
func (p *EventPublisher) Publish(ctx context.Context, event JobEvent) {
	if p == nil {
		return
	}

	event.Timestamp = time.Now().UTC()
	msgBytes, err := json.Marshal(event)
	if err != nil {
		p.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to marshal job event")
		return
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.JobID),
		Value: msgBytes,
	})
	if err != nil {
		p.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{"topic": p.writer.Topic}).Error("Failed to write job event to Kafka")
	}
}

// Close closes the underlying Kafka writer.
func (p *EventPublisher) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
