// Package kafka publishes domain events to Kafka, one topic per event name.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/segmentio/kafka-go"
)

var ErrDisabled = errors.New("kafka: disabled")

const (
	peerKafka    = "kafka"
	headerEvent  = "event-name"
	writeTimeout = 5 * time.Second
)

type Client struct {
	Brokers []string
}

func NewClient(brokersCSV string) *Client {
	brokers := []string{}
	for _, b := range strings.Split(brokersCSV, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return &Client{Brokers: brokers}
}

func (c *Client) Enabled() bool {
	return len(c.Brokers) > 0
}

// NewWriter returns a writer without a fixed topic; every message names its own.
func (c *Client) NewWriter() *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(c.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		WriteTimeout:           writeTimeout,
		AllowAutoTopicCreation: true,
	}
}

// MessageWriter is the part of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements outbox.Publisher on top of a Kafka writer. Messages
// are keyed by aggregate id so one order's events stay on one partition.
type Publisher struct {
	writer      MessageWriter
	topicPrefix string

	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewPublisher(writer MessageWriter, topicPrefix string, tel observability.Observability) *Publisher {
	tel = observability.OrNop(tel)
	return &Publisher{
		writer:       writer,
		topicPrefix:  topicPrefix,
		extCounter:   tel.Metrics().Counter(observability.MExternalRequests),
		extHistogram: tel.Metrics().Histogram(observability.MExternalRequestDuration),
	}
}

// Topic is the destination of an event name.
func (p *Publisher) Topic(eventName string) string {
	if p.topicPrefix == "" {
		return eventName
	}
	return p.topicPrefix + "." + eventName
}

func (p *Publisher) Publish(ctx context.Context, e domoutbox.Event) error {
	if p == nil || p.writer == nil {
		return ErrDisabled
	}
	payload, err := payloadOf(e)
	if err != nil {
		return err
	}
	topic := p.Topic(e.EventName())

	start := time.Now()
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     []byte(e.AggregateID()),
		Value:   payload,
		Time:    time.Now().UTC(),
		Headers: []kafka.Header{{Key: headerEvent, Value: []byte(e.EventName())}},
	})
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	p.extCounter.Add(1,
		observability.L("peer", peerKafka),
		observability.L("endpoint", topic),
		observability.L("outcome", outcome),
	)
	p.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", peerKafka),
		observability.L("endpoint", topic),
	)
	if err != nil {
		return fmt.Errorf("kafka: publish %s: %w", topic, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// payloadOf reuses the stored JSON of relayed messages and marshals typed events.
func payloadOf(e domoutbox.Event) ([]byte, error) {
	switch m := e.(type) {
	case domoutbox.Message:
		return m.Payload, nil
	case *domoutbox.Message:
		return m.Payload, nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("kafka: encode %s: %w", e.EventName(), err)
	}
	return data, nil
}
