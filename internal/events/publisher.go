// Package events publishes escrow lifecycle notifications.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	EscrowCreated   = "escrow.created"
	DepositReceived = "escrow.deposit_received"
	EscrowApproved  = "escrow.group_approved"
	EscrowFlagged   = "escrow.flagged"
	EscrowReleased  = "escrow.released"
	EscrowRefunded  = "escrow.refunded"
)

// Envelope is the JSON body of every published event.
type Envelope struct {
	Type       string    `json:"type"`
	EscrowID   string    `json:"escrowId"`
	OccurredAt time.Time `json:"occurredAt"`
	Data       any       `json:"data,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error
	Close() error
}

// Emit encodes an envelope and publishes it keyed by escrow ID.
func Emit(ctx context.Context, p Publisher, eventType, escrowID string, data any) error {
	payload, err := json.Marshal(Envelope{Type: eventType, EscrowID: escrowID, OccurredAt: time.Now().UTC(), Data: data})
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}
	return p.Publish(ctx, eventType, payload, escrowID)
}

type KafkaPublisher struct {
	writer      *kafka.Writer
	topicPrefix string
}

func NewKafkaPublisher(brokers []string, topicPrefix string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			RequiredAcks:           kafka.RequireAll,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
		topicPrefix: topicPrefix,
	}, nil
}

// Topic maps an event type to its topic, e.g. coopa.escrow.released.
func (p *KafkaPublisher) Topic(eventType string) string {
	if p.topicPrefix == "" {
		return eventType
	}
	return p.topicPrefix + "." + eventType
}

func (p *KafkaPublisher) Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.Topic(eventType),
		Key:   []byte(partitionKey),
		Value: payload,
		Time:  time.Now().UTC(),
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher writes events to the process log when no broker is set.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	log.Printf("[EVENT] %s key=%s %s", eventType, partitionKey, payload)
	return nil
}

func (LogPublisher) Close() error { return nil }
