package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/wx-station-etl/internal/config"
	"github.com/couchcryptid/wx-station-etl/internal/domain"
)

// messageWriter is the subset of *kafkago.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes annual statistics to a Kafka topic.
// It implements pipeline.StatPublisher.
type Writer struct {
	writer    messageWriter
	batchSize int
	logger    *slog.Logger
	clock     clockwork.Clock
}

// NewWriter creates a Kafka producer for the configured stats topic. clock
// stamps the published_at header; nil means real time.
func NewWriter(cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaStatsTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newWriter(w, cfg.BatchSize, clock, logger)
}

func newWriter(w messageWriter, batchSize int, clock clockwork.Clock, logger *slog.Logger) *Writer {
	if batchSize < 1 {
		batchSize = 1
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Writer{writer: w, batchSize: batchSize, logger: logger, clock: clock}
}

// PublishStats serializes stats and writes them in chunks of at most
// batchSize messages. Messages are keyed by station so one station's years
// land on one partition in order.
func (w *Writer) PublishStats(ctx context.Context, runID string, stats []domain.AnnualStat) error {
	if len(stats) == 0 {
		return nil
	}
	publishedAt := w.clock.Now().UTC()
	msgs := make([]kafkago.Message, len(stats))
	for i := range stats {
		msg, err := serializeToMessage(stats[i], runID, publishedAt)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}

	for start := 0; start < len(msgs); start += w.batchSize {
		end := min(start+w.batchSize, len(msgs))
		if err := w.writer.WriteMessages(ctx, msgs[start:end]...); err != nil {
			return fmt.Errorf("write stats messages: %w", err)
		}
	}
	w.logger.Debug("stats published", "station", stats[0].StationID, "messages", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// statMessage is the wire form of an AnnualStat.
type statMessage struct {
	domain.AnnualStat
	RunID string `json:"run_id"`
}

// serializeToMessage marshals an AnnualStat into a Kafka message.
func serializeToMessage(stat domain.AnnualStat, runID string, publishedAt time.Time) (kafkago.Message, error) {
	rounded := stat
	rounded.AvgMaxTemp = domain.Round2(stat.AvgMaxTemp)
	rounded.AvgMinTemp = domain.Round2(stat.AvgMinTemp)
	rounded.TotalPrecipitation = domain.Round2(stat.TotalPrecipitation)

	data, err := json.Marshal(statMessage{AnnualStat: rounded, RunID: runID})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize annual stat: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(stat.StationID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(runID)},
			{Key: "year", Value: []byte(strconv.Itoa(stat.Year))},
			{Key: "published_at", Value: []byte(publishedAt.Format(time.RFC3339))},
		},
	}, nil
}
