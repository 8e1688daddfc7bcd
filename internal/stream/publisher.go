// Package stream publishes post-commit ledger events to NATS JetStream for
// downstream consumers. Publishing is best-effort: a failed publish is
// logged and counted, never surfaced to the caller.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/oxsidee/traidetrain/internal/observability"
)

// StreamName holds every outbound subject under traide.events.>.
const StreamName = "TRAIDE_EVENTS"

// Event is the outbound envelope. Subjects follow traide.events.{event_type}.
type Event struct {
	EventID   uuid.UUID   `json:"event_id"`
	EventType string      `json:"event_type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// Publisher writes events to JetStream. A Publisher constructed with a nil
// JetStream context degrades to log-only, so the service runs without NATS.
type Publisher struct {
	js      jetstream.JetStream
	log     zerolog.Logger
	metrics *observability.Metrics
}

func NewPublisher(js jetstream.JetStream, log zerolog.Logger, metrics *observability.Metrics) *Publisher {
	return &Publisher{js: js, log: log, metrics: metrics}
}

// Publish sends one event. Failures are non-fatal: the ledger is the
// source of truth and downstream consumers can re-read it.
func (p *Publisher) Publish(ctx context.Context, eventType string, payload interface{}) {
	evt := Event{
		EventID:   uuid.New(),
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}

	if p.js == nil {
		p.log.Debug().Str("event_type", eventType).Msg("no NATS connection, event not published")
		return
	}

	data, err := json.Marshal(evt)
	if err != nil {
		p.log.Warn().Str("event_type", eventType).Err(err).Msg("marshal outbound event failed")
		p.countError()
		return
	}

	subject := fmt.Sprintf("traide.events.%s", eventType)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		p.log.Warn().Str("subject", subject).Err(err).Msg("outbound publish failed")
		p.countError()
		return
	}

	if p.metrics != nil {
		p.metrics.EventsPublished.WithLabelValues(eventType).Inc()
	}
}

func (p *Publisher) countError() {
	if p.metrics != nil {
		p.metrics.PublishErrors.Inc()
	}
}

// EnsureEventStream creates the outbound events stream if absent.
func EnsureEventStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"traide.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", StreamName, err)
	}
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
