package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/asteroid-impact-service/internal/config"
	"github.com/couchcryptid/asteroid-impact-service/internal/domain"
	"github.com/couchcryptid/asteroid-impact-service/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafkago.Writer used by Writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes impact reports to a Kafka topic.
// It implements impact.ReportSink.
type Writer struct {
	writer  messageWriter
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewWriter creates a Kafka producer for the configured report topic.
func NewWriter(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaReportTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, metrics: metrics, logger: logger}
}

// Publish serializes the report and writes it keyed by report ID, so
// repeated simulations of the same scenario land on the same partition.
func (w *Writer) Publish(ctx context.Context, report *domain.ImpactReport) error {
	msg, err := serializeToMessage(report)
	if err != nil {
		w.metrics.ReportsFailed.Inc()
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		w.metrics.ReportsFailed.Inc()
		return fmt.Errorf("write report %s: %w", report.ID, err)
	}
	w.metrics.ReportsPublished.Inc()
	w.logger.Debug("report published", "report_id", report.ID)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals an ImpactReport into a Kafka message.
func serializeToMessage(report *domain.ImpactReport) (kafkago.Message, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize impact report: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(report.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "location_type", Value: []byte(report.Location.Type)},
			{Key: "simulated_at", Value: []byte(report.SimulatedAt.Format(time.RFC3339))},
		},
	}, nil
}
