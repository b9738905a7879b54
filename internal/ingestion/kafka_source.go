package ingestion

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"goladium-analytics/internal/observability"
)

// messageReader is the part of *kafka.Reader the source uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource consumes ledger events from a Kafka topic.
// Offsets are committed through Delivery.Ack, after the runner stored the events.
type KafkaSource struct {
	reader   messageReader
	name     string
	logger   logrus.FieldLogger
	retryGap time.Duration
}

// KafkaSourceOptions configures a KafkaSource.
type KafkaSourceOptions struct {
	Brokers []string
	Topic   string
	GroupID string
	Logger  logrus.FieldLogger
}

// NewKafkaSource creates a consumer-group reader for the topic.
func NewKafkaSource(opts KafkaSourceOptions) *KafkaSource {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        opts.Brokers,
		Topic:          opts.Topic,
		GroupID:        opts.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0, // synchronous commits
	})
	return newKafkaSource(reader, "kafka:"+opts.Topic, opts.Logger)
}

func newKafkaSource(reader messageReader, name string, logger logrus.FieldLogger) *KafkaSource {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &KafkaSource{
		reader:   reader,
		name:     name,
		logger:   logger.WithField("source", name),
		retryGap: time.Second,
	}
}

// Name returns "kafka:<topic>".
func (s *KafkaSource) Name() string {
	return s.name
}

// Subscribe starts fetching messages. Each message becomes one delivery.
// Undecodable messages are committed and skipped so they cannot block the partition.
func (s *KafkaSource) Subscribe(ctx context.Context) (<-chan Delivery, error) {
	out := make(chan Delivery, 100)

	go func() {
		defer close(out)
		defer func() {
			if err := s.reader.Close(); err != nil {
				s.logger.WithError(err).Warn("closing kafka reader")
			}
		}()

		for {
			msg, err := s.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, context.Canceled) {
					return
				}
				s.logger.WithError(err).Error("fetching message")
				select {
				case <-time.After(s.retryGap):
					continue
				case <-ctx.Done():
					return
				}
			}

			events, rejected, err := DecodeEvents(msg.Value)
			if err != nil {
				observability.RecordEventRejected("decode")
				s.logger.WithError(err).WithFields(logrus.Fields{
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Warn("skipping undecodable message")
				s.commit(ctx, msg)
				continue
			}
			for _, r := range rejected {
				observability.RecordEventRejected("invalid")
				s.logger.WithError(r.Err).WithFields(logrus.Fields{
					"offset": msg.Offset,
					"index":  r.Index,
				}).Warn("rejecting invalid event")
			}
			observability.RecordEventsReceived(s.name, len(events))

			m := msg
			d := newDelivery(s.name, events, func(ctx context.Context) error {
				return s.reader.CommitMessages(ctx, m)
			})

			select {
			case out <- d:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (s *KafkaSource) commit(ctx context.Context, msg kafka.Message) {
	if err := s.reader.CommitMessages(ctx, msg); err != nil {
		s.logger.WithError(err).Warn("committing skipped message")
	}
}
