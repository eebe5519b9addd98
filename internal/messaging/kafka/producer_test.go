package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducerConfig(t *testing.T) {
	cfg := producerConfig("basket-test")

	assert.Equal(t, "basket-test", cfg.ClientID)
	assert.Equal(t, sarama.WaitForAll, cfg.Producer.RequiredAcks)
	assert.True(t, cfg.Producer.Idempotent)
	assert.True(t, cfg.Producer.Return.Successes)
	assert.Equal(t, 1, cfg.Net.MaxOpenRequests)
}

func TestProducerOptions(t *testing.T) {
	o := producerOptions{clientID: defaultClientID}
	WithClientID("")(&o)
	assert.Equal(t, defaultClientID, o.clientID)

	WithClientID("carts")(&o)
	assert.Equal(t, "carts", o.clientID)

	WithProducerLogger(nil)(&o)
	assert.Nil(t, o.logger)
}

func TestProducer_PublishEvent(t *testing.T) {
	sync := mocks.NewSyncProducer(t, nil)
	producer := newProducer(sync, nil)

	sync.ExpectSendMessageWithCheckerFunctionAndSucceed(func(value []byte) error {
		var event SessionEvent
		if err := json.Unmarshal(value, &event); err != nil {
			return err
		}
		assert.Equal(t, "http://mu.semte.ch/sessions/s1", event.SessionID)
		return nil
	})

	event := SessionEvent{
		EventType: EventTypeSessionAuthenticated,
		SessionID: "http://mu.semte.ch/sessions/s1",
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, producer.PublishEvent(TopicSessionEvents, event.SessionID, event))
	require.NoError(t, producer.Close())
	require.NoError(t, producer.Close(), "second close is a no-op")
}

func TestProducer_PublishErrors(t *testing.T) {
	t.Run("send failure", func(t *testing.T) {
		sync := mocks.NewSyncProducer(t, nil)
		producer := newProducer(sync, nil)
		sync.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

		err := producer.PublishEvent(TopicBasketEvents, "basket-1", map[string]string{"a": "b"})
		require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
		require.NoError(t, sync.Close())
	})

	t.Run("unencodable event", func(t *testing.T) {
		sync := mocks.NewSyncProducer(t, nil)
		producer := newProducer(sync, nil)

		require.Error(t, producer.PublishEvent(TopicBasketEvents, "k", make(chan int)))
		require.NoError(t, sync.Close())
	})

	t.Run("closed producer", func(t *testing.T) {
		var producer *Producer
		require.ErrorIs(t, producer.Publish(TopicBasketEvents, "k", []byte("{}")), errProducerClosed)
		require.NoError(t, producer.Close())
	})
}

func TestParseSessionEvent(t *testing.T) {
	event, err := ParseSessionEvent(&sarama.ConsumerMessage{
		Value: []byte(`{"event_type":" session.authenticated ","session_id":" s1 ","account_id":" a1"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, SessionEvent{EventType: EventTypeSessionAuthenticated, SessionID: "s1", AccountID: "a1"}, event)

	event, err = ParseSessionEvent(&sarama.ConsumerMessage{Value: []byte(`{"event_type":"session.expired"}`)})
	require.NoError(t, err)
	assert.Empty(t, event.SessionID)

	for _, msg := range []*sarama.ConsumerMessage{nil, {}, {Value: []byte("{")}} {
		_, err = ParseSessionEvent(msg)
		require.Error(t, err)
	}
}
