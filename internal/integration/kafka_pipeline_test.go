//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/jonboulle/clockwork"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/wx-station-etl/internal/adapter/filesource"
	"github.com/couchcryptid/wx-station-etl/internal/adapter/kafka"
	"github.com/couchcryptid/wx-station-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/wx-station-etl/internal/config"
	"github.com/couchcryptid/wx-station-etl/internal/domain"
	"github.com/couchcryptid/wx-station-etl/internal/observability"
	"github.com/couchcryptid/wx-station-etl/internal/pipeline"
)

const testStatsTopic = "test-annual-stats"

// publishedStat holds a deserialized message read from the stats topic.
type publishedStat struct {
	Stat    domain.AnnualStat
	RunID   string
	Key     string
	Headers map[string]string
}

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("wx-station-etl-test"),
	)
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

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

func readPublished(ctx context.Context, t *testing.T, consumer *kafkago.Reader) publishedStat {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from stats topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var body struct {
		domain.AnnualStat
		RunID string `json:"run_id"`
	}
	require.NoError(t, json.Unmarshal(msg.Value, &body), "unmarshal stats message")

	return publishedStat{Stat: body.AnnualStat, RunID: body.RunID, Key: string(msg.Key), Headers: headers}
}

// TestAggregatePublishesToKafka ingests station files into SQLite, aggregates
// them, and checks that every committed stat reaches the stats topic.
func TestAggregatePublishesToKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testStatsTopic)

	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()

	store, err := sqlite.Open(ctx, sqlite.Options{Path: ":memory:"}, logger)
	require.NoError(t, err)
	defer store.Close()

	src := filesource.NewDir(writeStationFiles(t, stationFiles), "*.txt")
	files, err := src.List()
	require.NoError(t, err)
	_, err = pipeline.NewIngestor(src, store, logger, metrics, 2).Run(ctx, files)
	require.NoError(t, err)

	clock := clockwork.NewFakeClockAt(time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC))
	writer := kafka.NewWriter(&config.Config{
		KafkaBrokers:    []string{broker},
		KafkaStatsTopic: testStatsTopic,
		BatchSize:       10,
	}, clock, logger)
	defer writer.Close()

	report, err := pipeline.NewAggregator(store, store, writer, logger, metrics, 1).Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, report.PublishErrors)
	require.Equal(t, 3, report.StatsWritten)

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testStatsTopic,
		GroupID:     fmt.Sprintf("test-stats-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	defer consumer.Close()

	got := make(map[domain.StatKey]publishedStat)
	for range report.StatsWritten {
		p := readPublished(ctx, t, consumer)
		got[p.Stat.Key()] = p
	}

	s1 := got[domain.StatKey{StationID: "STATION001", Year: 2000}]
	assert.Equal(t, "STATION001", s1.Key)
	assert.Equal(t, report.RunID, s1.RunID)
	assert.Equal(t, report.RunID, s1.Headers["run_id"])
	assert.Equal(t, "2000", s1.Headers["year"])
	assert.Equal(t, "2024-04-26T15:10:00Z", s1.Headers["published_at"])
	require.NotNil(t, s1.Stat.AvgMaxTemp)
	assert.InDelta(t, 2.5, *s1.Stat.AvgMaxTemp, 1e-9)
	assert.InDelta(t, -15.0, *s1.Stat.AvgMinTemp, 1e-9)
	assert.InDelta(t, 2.5, *s1.Stat.TotalPrecipitation, 1e-9)

	s2 := got[domain.StatKey{StationID: "STATION002", Year: 1999}]
	assert.Equal(t, "STATION002", s2.Key)
	assert.Nil(t, s2.Stat.AvgMinTemp)
	assert.Nil(t, s2.Stat.TotalPrecipitation)

	_, ok := got[domain.StatKey{StationID: "STATION002", Year: 2000}]
	assert.True(t, ok)
}

// TestAggregateSurvivesUnreachableBroker checks that stats still commit when
// publishing fails.
func TestAggregateSurvivesUnreachableBroker(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()

	store, err := sqlite.Open(ctx, sqlite.Options{Path: ":memory:"}, logger)
	require.NoError(t, err)
	defer store.Close()

	src := filesource.NewDir(writeStationFiles(t, stationFiles), "*.txt")
	files, err := src.List()
	require.NoError(t, err)
	_, err = pipeline.NewIngestor(src, store, logger, metrics, 1).Run(ctx, files)
	require.NoError(t, err)

	writer := kafka.NewWriter(&config.Config{
		KafkaBrokers:    []string{"127.0.0.1:1"},
		KafkaStatsTopic: testStatsTopic,
		BatchSize:       10,
	}, nil, logger)
	defer writer.Close()

	report, err := pipeline.NewAggregator(store, store, writer, logger, metrics, 1).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.PublishErrors)

	stats, total, err := store.QueryAnnualStats(ctx, domain.StatFilter{}, domain.Page{Number: 1, Size: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, stats, 3)
}
