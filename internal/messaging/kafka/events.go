package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
)

const (
	TopicBasketEvents    = "basket.events"
	TopicDeadLetterQueue = "basket.dlq"
	// TopicSessionEvents публикует сервис идентификации.
	TopicSessionEvents = "identity.session.events"
)

// EventTypeSessionAuthenticated — пользователь вошёл в аккаунт в рамках сессии.
const EventTypeSessionAuthenticated = "session.authenticated"

// Заголовки сообщений. x-retry-count и x-original-topic пишутся при повторе и в DLQ.
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
)

// SessionEvent — событие сервиса идентификации. Ключ сообщения — IRI сессии.
type SessionEvent struct {
	EventType string    `json:"event_type"`
	SessionID string    `json:"session_id"`
	AccountID string    `json:"account_id,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// ParseSessionEvent декодирует тело сообщения; пустое сообщение считается ошибкой.
func ParseSessionEvent(message *sarama.ConsumerMessage) (SessionEvent, error) {
	if message == nil || len(message.Value) == 0 {
		return SessionEvent{}, errors.New("empty session event")
	}

	var event SessionEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return SessionEvent{}, fmt.Errorf("decode session event: %w", err)
	}
	event.EventType = strings.TrimSpace(event.EventType)
	event.SessionID = strings.TrimSpace(event.SessionID)
	event.AccountID = strings.TrimSpace(event.AccountID)
	return event, nil
}

// outboxEnvelope — формат события корзины в topic basket.events.
type outboxEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurred_at,omitzero"`
	PublishedAt   time.Time       `json:"published_at"`
}
