// Package publish hands raised alerts to downstream alert-management
// systems. Kafka is used when brokers are configured; otherwise alerts are
// written to the structured log.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/atmx/surveillance-engine/internal/model"
)

// writeTimeout is the maximum time to wait for a Kafka write.
const writeTimeout = 10 * time.Second

// AlertPublisher delivers alerts downstream.
type AlertPublisher interface {
	Publish(ctx context.Context, alerts []model.Alert) error
	Close() error
}

// Ensure implementations satisfy AlertPublisher.
var (
	_ AlertPublisher = (*KafkaPublisher)(nil)
	_ AlertPublisher = (*LogPublisher)(nil)
)

// KafkaPublisher writes each alert as a JSON message keyed by alert id, so
// repeated publications of the same alert land on the same partition.
type KafkaPublisher struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaPublisher creates a synchronous, at-least-once Kafka publisher
// for a comma-separated broker list.
func NewKafkaPublisher(brokers, topic string) (*KafkaPublisher, error) {
	if brokers == "" {
		return nil, fmt.Errorf("brokers cannot be empty")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}

	brokerList := strings.Split(brokers, ",")
	for i := range brokerList {
		brokerList[i] = strings.TrimSpace(brokerList[i])
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokerList...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		WriteTimeout:           writeTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}

	slog.Info("kafka alert publisher configured", "brokers", brokerList, "topic", topic)
	return &KafkaPublisher{writer: w, topic: topic}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, alerts []model.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	msgs, err := Encode(alerts)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d alerts to %s: %w", len(alerts), p.topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Encode turns alerts into Kafka messages keyed by alert id.
func Encode(alerts []model.Alert) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(alerts))
	for _, a := range alerts {
		payload, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshal alert %s: %w", a.AlertID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(a.AlertID),
			Value: payload,
			Headers: []kafka.Header{
				{Key: "scenario_id", Value: []byte(a.ScenarioID)},
				{Key: "reason", Value: []byte(a.Description)},
			},
		})
	}
	return msgs, nil
}

// LogPublisher logs alerts instead of sending them anywhere. Used when no
// broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a publisher writing to logger.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, alerts []model.Alert) error {
	for _, a := range alerts {
		p.logger.Info("alert raised",
			"alert_id", a.AlertID,
			"scenario", a.ScenarioID,
			"instrument", a.InstrumentID,
			"market", a.MarketID,
			"reason", string(a.Description),
			"near_id", a.NearID,
			"far_order_id", a.FarOrderID,
		)
	}
	return nil
}

func (p *LogPublisher) Close() error { return nil }
