package submission

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/segmentio/kafka-go"

	"courier/internal/config"
	"courier/internal/constants"
	"courier/internal/logger"
	"courier/pkg/metrics"
	"courier/pkg/models"
	"courier/pkg/retry"
	"courier/pkg/tracing"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaClient publishes submissions to Kafka topics instead of calling the
// collector over HTTP. Settings are never served from Kafka.
type KafkaClient struct {
	writer messageWriter
	cfg    config.KafkaConfig
	policy retry.Policy
	logger logger.Logger
}

type descriptionMessage struct {
	ReferenceID string                  `json:"reference_id"`
	Description *models.UserDescription `json:"description"`
}

type heartbeatMessage struct {
	ID    string    `json:"id"`
	Close bool      `json:"close"`
	Date  time.Time `json:"date"`
}

func NewKafkaClient(cfg config.KafkaConfig, policy retry.Policy, log logger.Logger) *KafkaClient {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: constants.KafkaBatchTimeout,
		WriteTimeout: constants.KafkaWriteTimeout,
		Async:        false,
	}
	return newKafkaClient(w, cfg, policy, log)
}

func newKafkaClient(w messageWriter, cfg config.KafkaConfig, policy retry.Policy, log logger.Logger) *KafkaClient {
	if log == nil {
		log = logger.NopLogger()
	}
	return &KafkaClient{writer: w, cfg: cfg.WithDefaultTopics(), policy: policy, logger: log}
}

func (k *KafkaClient) SubmitEvents(ctx context.Context, events []*models.Event) (Response, error) {
	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		body, err := json.Marshal(ev)
		if err != nil {
			return Response{}, fmt.Errorf("failed to marshal event: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Topic: k.cfg.EventsTopic,
			Key:   []byte(ev.ReferenceID),
			Value: body,
		})
	}
	return k.publish(ctx, "events", k.cfg.EventsTopic, msgs)
}

func (k *KafkaClient) SubmitUserDescription(ctx context.Context, referenceID string, description *models.UserDescription) (Response, error) {
	body, err := json.Marshal(descriptionMessage{ReferenceID: referenceID, Description: description})
	if err != nil {
		return Response{}, fmt.Errorf("failed to marshal user description: %w", err)
	}
	return k.publish(ctx, "user_description", k.cfg.DescriptionsTopic, []kafka.Message{{
		Topic: k.cfg.DescriptionsTopic,
		Key:   []byte(referenceID),
		Value: body,
	}})
}

func (k *KafkaClient) GetSettings(_ context.Context, version int) (SettingsResponse, error) {
	resp := unknownResponse(http.StatusNotModified, "settings are not served over kafka")
	resp.SettingsVersion = version
	return SettingsResponse{Response: resp}, nil
}

func (k *KafkaClient) SubmitHeartbeat(ctx context.Context, id string, closeSession bool) (Response, error) {
	body, err := json.Marshal(heartbeatMessage{ID: id, Close: closeSession, Date: time.Now().UTC()})
	if err != nil {
		return Response{}, fmt.Errorf("failed to marshal heartbeat: %w", err)
	}
	return k.publish(ctx, "heartbeat", k.cfg.HeartbeatsTopic, []kafka.Message{{
		Topic: k.cfg.HeartbeatsTopic,
		Key:   []byte(id),
		Value: body,
	}})
}

func (k *KafkaClient) Close() error {
	return k.writer.Close()
}

func (k *KafkaClient) publish(ctx context.Context, operation, topic string, msgs []kafka.Message) (Response, error) {
	if len(msgs) == 0 {
		return unknownResponse(http.StatusAccepted, ""), nil
	}

	ctx, span := tracing.StartSpan(ctx, tracing.TracerKafka, "kafka.publish."+operation)
	defer span.End()

	now := time.Now()
	for i := range msgs {
		tracing.InjectMessage(ctx, &msgs[i])
		msgs[i].Time = now
	}

	err := retry.DoNotify(ctx, k.policy, func() error {
		return k.writer.WriteMessages(ctx, msgs...)
	}, func(attempt int, err error, next time.Duration) {
		metrics.IncRetryAttempt("kafka." + operation)
		k.logger.WarnwCtx(ctx, "Kafka publish failed, retrying",
			"topic", topic,
			"attempt", attempt,
			"next_delay", next,
			"error", err,
		)
	})

	metrics.ObserveSubmission("kafka."+operation, statusFor(err), time.Since(now))
	if err != nil {
		tracing.RecordError(span, err)
		return Response{}, fmt.Errorf("failed to write kafka messages to %s: %w", topic, err)
	}

	return unknownResponse(http.StatusAccepted, ""), nil
}

func statusFor(err error) int {
	if err != nil {
		return 0
	}
	return http.StatusAccepted
}
