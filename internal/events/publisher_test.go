package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	eventType string
	payload   []byte
	key       string
}

func (r *recordingPublisher) Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	r.eventType, r.payload, r.key = eventType, payload, partitionKey
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func TestEmit(t *testing.T) {
	rec := &recordingPublisher{}
	require.NoError(t, Emit(context.Background(), rec, EscrowReleased, "esc-1", map[string]int64{"amount": 100}))

	assert.Equal(t, EscrowReleased, rec.eventType)
	assert.Equal(t, "esc-1", rec.key)

	var env Envelope
	require.NoError(t, json.Unmarshal(rec.payload, &env))
	assert.Equal(t, "esc-1", env.EscrowID)
	assert.False(t, env.OccurredAt.IsZero())
}

func TestKafkaPublisher(t *testing.T) {
	t.Run("requires brokers", func(t *testing.T) {
		_, err := NewKafkaPublisher(nil, "coopa")
		assert.Error(t, err)
	})

	t.Run("topic prefix", func(t *testing.T) {
		p, err := NewKafkaPublisher([]string{"localhost:9092"}, "coopa")
		require.NoError(t, err)
		defer p.Close()
		assert.Equal(t, "coopa.escrow.released", p.Topic(EscrowReleased))
	})
}

func TestLogPublisher(t *testing.T) {
	var p Publisher = LogPublisher{}
	assert.NoError(t, p.Publish(context.Background(), EscrowCreated, []byte(`{}`), "esc-1"))
	assert.NoError(t, p.Close())
}
