//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/asteroid-impact-service/internal/adapter/kafka"
	"github.com/couchcryptid/asteroid-impact-service/internal/config"
	"github.com/couchcryptid/asteroid-impact-service/internal/domain"
	"github.com/couchcryptid/asteroid-impact-service/internal/impact"
	"github.com/couchcryptid/asteroid-impact-service/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const testReportTopic = "test-impact-reports"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node Kafka container and returns its broker address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("impact-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cconn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cconn.Close()

	require.NoError(t, cconn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

type oceanClassifier struct{}

func (oceanClassifier) Classify(context.Context, float64, float64) (domain.LocationInfo, error) {
	return domain.LocationInfo{Type: domain.LocationOcean, Name: "Ocean"}, nil
}

type noPopulation struct{}

func (noPopulation) Name() string         { return "WorldPop" }
func (noPopulation) MaxRadiusKm() float64 { return 178 }
func (noPopulation) Population(context.Context, domain.PopulationQuery) (domain.PopulationEstimate, error) {
	return domain.PopulationEstimate{}, fmt.Errorf("unexpected population lookup")
}

// TestReportPublisher runs a simulation with the Kafka writer as the report
// sink and reads the published report back from the topic.
func TestReportPublisher(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testReportTopic)

	cfg := &config.Config{
		KafkaBrokers:     []string{broker},
		KafkaReportTopic: testReportTopic,
	}
	metrics := observability.NewMetricsForTesting()
	writer := kafka.NewWriter(cfg, metrics, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	engine := impact.NewEngine(oceanClassifier{},
		domain.NewCasualtyEstimator(noPopulation{}, discardLogger()),
		metrics, discardLogger(), impact.WithReportSink(writer))

	asteroid := domain.Asteroid{
		ID:       "2465633",
		Name:     "465633 (2009 JR5)",
		Diameter: domain.EstimatedDiameter{MinKm: 0.2, MaxKm: 0.48},
		Approach: domain.CloseApproach{VelocityKmS: 18.1273, MissDistanceKm: 45_290_298},
	}
	report, err := engine.SimulateImpactAt(ctx, asteroid, 0, -30)
	require.NoError(t, err)

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testReportTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
	defer readCancel()
	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from report topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, report.ID, string(msg.Key))
	assert.Equal(t, "ocean", headers["location_type"])
	_, err = time.Parse(time.RFC3339, headers["simulated_at"])
	assert.NoError(t, err, "simulated_at should be valid RFC3339")

	var got domain.ImpactReport
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, report.ID, got.ID)
	assert.Equal(t, int64(0), got.Casualties)
	require.NotNil(t, got.Tsunami)
	assert.InDelta(t, report.Tsunami.WaveHeightM, got.Tsunami.WaveHeightM, 1e-9)
}
