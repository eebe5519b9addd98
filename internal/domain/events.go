package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// AggregateBasket — тип агрегата для событий корзины в outbox.
const AggregateBasket = "basket"

const (
	EventBasketConfirmed = "basket.confirmed"
	EventBasketMerged    = "basket.merged"
)

// BasketConfirmed публикуется после перевода корзины в confirmed.
type BasketConfirmed struct {
	BasketID    string    `json:"basket_id"`
	BasketIRI   string    `json:"basket_iri"`
	Graph       string    `json:"graph"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// BasketMerged публикуется после переноса корзины сессии в аккаунт.
type BasketMerged struct {
	SessionBasketID string    `json:"session_basket_id"`
	AccountBasketID string    `json:"account_basket_id"`
	SessionGraph    string    `json:"session_graph"`
	AccountGraph    string    `json:"account_graph"`
	Lines           int       `json:"lines"`
	MergedAt        time.Time `json:"merged_at"`
}

// NewOutboxMessage сериализует событие корзины в сообщение outbox.
func NewOutboxMessage(basketID, eventType string, payload any) (OutboxMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return OutboxMessage{
		AggregateType: AggregateBasket,
		AggregateID:   basketID,
		EventType:     eventType,
		Payload:       body,
	}, nil
}
