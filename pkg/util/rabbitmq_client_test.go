package util

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pershinghar/go-distributed-advisor-collection/pkg/models"
)

func TestNewRabbitMQClient_FillsDefaults(t *testing.T) {
	cfg := &models.RabbitMQConfig{URL: "amqp://advisor:secret@mq:5672/"}

	client := NewRabbitMQClient(cfg, zap.NewNop())

	defaults := models.DefaultRabbitMQConfig()
	assert.Equal(t, "amqp://advisor:secret@mq:5672/", client.config.URL)
	assert.Equal(t, defaults.Exchange, client.config.Exchange)
	assert.Equal(t, defaults.ExchangeType, client.config.ExchangeType)
	assert.Equal(t, defaults.QueueName, client.config.QueueName)
	assert.Equal(t, 1, client.config.Prefetch)

	client = NewRabbitMQClient(nil, zap.NewNop())
	assert.Equal(t, defaults.URL, client.config.URL)
}

func TestRabbitMQClient_RequiresConnection(t *testing.T) {
	client := NewRabbitMQClient(nil, zap.NewNop())

	_, err := client.SendBatch(context.Background(), []models.QueueEntry{models.NewQueueEntry("111111111111")})
	assert.ErrorContains(t, err, "not connected")

	err = client.Consume(context.Background(), func(context.Context, string) error { return nil })
	assert.Error(t, err)
}

func TestRabbitMQClient_ClosedClient(t *testing.T) {
	client := NewRabbitMQClient(nil, zap.NewNop())
	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	err := client.Connect(context.Background())
	assert.ErrorContains(t, err, "closed")

	_, err = client.SendBatch(context.Background(), nil)
	assert.ErrorContains(t, err, "closed")
}
