// Package kafka publishes ledger movement events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/warp/movement-ledger/ledger"
)

const (
	// DefaultTopic is used when the configured topic is blank.
	DefaultTopic = "ledger.movements"

	// DefaultPublishTimeout bounds one Publish call, retries included.
	DefaultPublishTimeout = 2 * time.Second
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements ledger.EventPublisher. Messages are keyed by
// account ID so one account's events stay on one partition, in order.
type Publisher struct {
	writer  messageWriter
	timeout time.Duration
}

var _ ledger.EventPublisher = (*Publisher)(nil)

func NewPublisher(brokers []string, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 10 * time.Millisecond,
			MaxAttempts:  3,
			WriteTimeout: DefaultPublishTimeout,
		},
		timeout: DefaultPublishTimeout,
	}
}

// WithTimeout overrides DefaultPublishTimeout.
func (p *Publisher) WithTimeout(d time.Duration) *Publisher {
	p.timeout = d
	return p
}

// MovementMessage is the JSON payload of one event.
type MovementMessage struct {
	EventID          string    `json:"eventId"`
	Type             string    `json:"type"`
	OccurredAt       time.Time `json:"occurredAt"`
	MovementID       int64     `json:"movementId"`
	AccountID        int64     `json:"accountId"`
	AccountNumber    string    `json:"accountNumber"`
	Date             time.Time `json:"date"`
	Kind             string    `json:"kind"`
	Value            string    `json:"value"`
	AvailableBalance string    `json:"availableBalance"`
}

func newMessage(e ledger.MovementEvent) MovementMessage {
	m := e.Movement
	return MovementMessage{
		EventID:          e.ID.String(),
		Type:             string(e.Type),
		OccurredAt:       e.OccurredAt.UTC(),
		MovementID:       int64(m.ID),
		AccountID:        int64(m.AccountID),
		AccountNumber:    m.AccountNumber,
		Date:             m.At.UTC(),
		Kind:             string(m.Kind),
		Value:            m.Value.StringFixed(2),
		AvailableBalance: m.AvailableBalance.StringFixed(2),
	}
}

func (p *Publisher) Publish(ctx context.Context, event ledger.MovementEvent) error {
	data, err := json.Marshal(newMessage(event))
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}

	timeout := p.timeout
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	// The movement is already committed; a slow broker must not hold the
	// caller's request open.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(int64(event.Movement.AccountID), 10)),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish %s event: %w", event.Type, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
