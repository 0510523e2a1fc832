// Package alerts publishes risk and cycle alerts to Kafka for external
// consumers (notification services, dashboards). Publication is
// optional: with no brokers configured the publisher is a no-op.
package alerts

import (
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/frontieralpha/conviction/internal/events"
)

// Publisher mirrors selected bus events onto a Kafka topic
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	log      zerolog.Logger
}

// NewPublisher creates a Kafka alert publisher. Returns (nil, nil) when
// no brokers are configured, which callers treat as "alerts disabled".
func NewPublisher(brokers []string, topic string, log zerolog.Logger) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Retry.Max = 3
	config.Producer.Return.Successes = true
	config.Version = sarama.V2_8_0_0

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return &Publisher{
		producer: producer,
		topic:    topic,
		log:      log.With().Str("component", "alert_publisher").Logger(),
	}, nil
}

// Attach subscribes the publisher to the event bus. Only risk triggers
// and completed cycles are mirrored; the rest stays in-process.
func (p *Publisher) Attach(bus *events.Bus) {
	bus.SubscribeAll(func(event *events.Event) {
		switch event.Type {
		case events.RiskTriggered, events.CycleCompleted:
			// Kafka I/O off the publisher's goroutine
			go p.publish(event)
		}
	})
}

// publish sends one event to the alert topic
func (p *Publisher) publish(event *events.Event) {
	encoded, err := json.Marshal(event)
	if err != nil {
		p.log.Error().Err(err).Msg("Failed to encode alert event")
		return
	}

	message := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.Type),
		Value: sarama.ByteEncoder(encoded),
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		p.log.Error().Err(err).Str("event_type", string(event.Type)).Msg("Failed to publish alert")
		return
	}

	p.log.Debug().
		Str("event_type", string(event.Type)).
		Int32("partition", partition).
		Int64("offset", offset).
		Msg("Alert published")
}

// Close shuts down the underlying producer
func (p *Publisher) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
