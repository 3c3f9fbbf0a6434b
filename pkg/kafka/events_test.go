package kafka_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/clover/pkg/kafka"
)

func TestParseConfig(t *testing.T) {
	cfg := kafka.ParseConfig(" broker-1:9092, broker-2:9092,,", "clover.events", "clover.errors")

	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Brokers)
	assert.Equal(t, "clover.events", cfg.Topic)
	assert.Equal(t, "clover.errors", cfg.ErrorTopic)
}

func TestEventType_IsFailure(t *testing.T) {
	assert.True(t, kafka.EventSyncFailed.IsFailure())
	assert.True(t, kafka.EventWebhookFailed.IsFailure())
	assert.False(t, kafka.EventSyncCompleted.IsFailure())
	assert.False(t, kafka.EventAlertToggled.IsFailure())
}

func TestEvent_Key(t *testing.T) {
	evt := &kafka.Event{TenantID: "t1", Platform: "meta", AccountID: "act_1"}
	assert.Equal(t, "t1:meta:act_1", evt.Key())
}

func TestNopPublisher(t *testing.T) {
	assert.NoError(t, kafka.NopPublisher{}.Publish(context.Background(), &kafka.Event{Type: kafka.EventSyncCompleted}))
}
