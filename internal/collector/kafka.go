package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"courier/internal/config"
	"courier/internal/logger"
	"courier/pkg/logging"
	"courier/pkg/metrics"
	"courier/pkg/models"
	"courier/pkg/tracing"
)

const fetchBackoff = time.Second

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaIngest feeds the collector from the topics the Kafka transport
// writes to: one event per message on the events topic, user descriptions
// and heartbeats on their own topics.
type KafkaIngest struct {
	srv       *Server
	cfg       config.KafkaConfig
	logger    logger.Logger
	newReader func(topic string) messageReader
}

func NewKafkaIngest(srv *Server, cfg config.KafkaConfig, groupID string, log logger.Logger) *KafkaIngest {
	if log == nil {
		log = logger.NopLogger()
	}
	if groupID == "" {
		groupID = "courier-collector"
	}
	k := &KafkaIngest{srv: srv, cfg: cfg.WithDefaultTopics(), logger: log}
	k.newReader = func(topic string) messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			GroupID:  groupID,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 10e6,
		})
	}
	return k
}

// Run consumes every topic until ctx is done.
func (k *KafkaIngest) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	for topic, handle := range map[string]func([]byte) error{
		k.cfg.EventsTopic:       k.srv.ingestEvent,
		k.cfg.DescriptionsTopic: k.srv.ingestDescription,
		k.cfg.HeartbeatsTopic:   k.srv.ingestHeartbeat,
	} {
		reader := k.newReader(topic)
		g.Go(func() error {
			defer reader.Close()
			return k.consume(gCtx, topic, reader, handle)
		})
	}

	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (k *KafkaIngest) consume(ctx context.Context, topic string, r messageReader, handle func([]byte) error) error {
	consumeCtx := logging.WithServiceName(ctx, "collector")
	k.logger.InfowCtx(consumeCtx, "Started consuming", "topic", topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				k.logger.InfowCtx(consumeCtx, "Stopped consuming", "topic", topic)
				return nil
			}
			k.logger.ErrorwCtx(consumeCtx, "Error fetching kafka message",
				"error", err,
				"topic", topic,
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(fetchBackoff):
			}
			continue
		}

		msgCtx, span := tracing.StartConsumerSpan(consumeCtx, "collector.consume", m)
		if err := handle(m.Value); err != nil {
			tracing.RecordError(span, err)
			k.logger.WarnwCtx(msgCtx, "Dropping undecodable message",
				"error", err,
				"topic", topic,
				"offset", m.Offset,
			)
		}
		span.End()

		if err := r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			k.logger.ErrorwCtx(msgCtx, "Failed to commit message",
				"error", err,
				"topic", topic,
			)
		}
	}
}

func (s *Server) ingestEvent(value []byte) error {
	ev, err := models.UnmarshalEvent(value)
	if err != nil {
		return fmt.Errorf("failed to decode event: %w", err)
	}
	if err := models.ValidateEvent(ev); err != nil {
		return err
	}
	s.addEvents([]*models.Event{ev})
	metrics.CollectorEventsReceived.Inc()
	return nil
}

func (s *Server) ingestDescription(value []byte) error {
	var d Description
	if err := json.Unmarshal(value, &d); err != nil {
		return fmt.Errorf("failed to decode user description: %w", err)
	}
	if err := models.ValidateIdentifier("reference_id", d.ReferenceID); err != nil {
		return err
	}
	s.addDescription(d)
	return nil
}

func (s *Server) ingestHeartbeat(value []byte) error {
	var msg struct {
		ID    string    `json:"id"`
		Close bool      `json:"close"`
		Date  time.Time `json:"date"`
	}
	if err := json.Unmarshal(value, &msg); err != nil {
		return fmt.Errorf("failed to decode heartbeat: %w", err)
	}
	if msg.ID == "" {
		return fmt.Errorf("heartbeat without id")
	}
	received := msg.Date
	if received.IsZero() {
		received = s.now()
	}
	s.addHeartbeat(Heartbeat{ID: msg.ID, Close: msg.Close, Received: received})
	return nil
}
