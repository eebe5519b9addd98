package domain

import (
	"context"
	"time"
)

// GraphResolver определяет граф владельца данных сессии.
type GraphResolver interface {
	// ResolveOwnerGraph возвращает граф аккаунта, иначе граф сессии; создаёт граф сессии при первом обращении.
	ResolveOwnerGraph(ctx context.Context, session SessionID) (GraphRef, error)
	// BasketOwner ищет корзину в графах сессии и аккаунта; ErrBasketNotOwned, если не нашлась.
	BasketOwner(ctx context.Context, session SessionID, basketID string) (BasketRef, error)
}

// BasketStore — чтение и изменение корзины в пределах одного графа.
type BasketStore interface {
	EnsureActiveBasket(ctx context.Context, graph GraphRef) (BasketRef, error)
	BasketDetails(ctx context.Context, ref BasketRef) (Basket, error)
	OrderLines(ctx context.Context, ref BasketRef) ([]OrderLine, error)
	// Address возвращает nil без ошибки, если адрес такого вида не привязан.
	Address(ctx context.Context, ref BasketRef, kind AddressKind) (*Address, error)
	AddOrderLine(ctx context.Context, ref BasketRef, line NewOrderLine) (OrderLine, error)
	RemoveOrderLine(ctx context.Context, ref BasketRef, lineID string) error
	SetOrderLineComment(ctx context.Context, ref BasketRef, lineID, comment string) error
	PersistAddress(ctx context.Context, ref BasketRef, kind AddressKind, addr AddressPatch, postal PostalPatch) error
	PersistDeliveryMeta(ctx context.Context, ref BasketRef, meta DeliveryMeta) error
	// ConfirmBasket переводит корзину из draft в confirmed; ErrBasketNotConfirmable при отказе.
	ConfirmBasket(ctx context.Context, graph GraphRef, basketID string) (BasketRef, error)
	RegisterBasketChanged(ctx context.Context, ref BasketRef) error
}

// MergeResult описывает итог переноса корзины сессии в аккаунт.
type MergeResult struct {
	Merged        bool
	SessionBasket BasketRef
	AccountBasket BasketRef
	Lines         int
}

// BasketMerger переносит строки корзины сессии в корзину аккаунта.
type BasketMerger interface {
	MergeSessionBasketIntoAccount(ctx context.Context, session SessionID) (MergeResult, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	// CreatedAt и Attempts заполняет репозиторий; при Enqueue они игнорируются.
	CreatedAt time.Time
	Attempts  int
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	FailedCount     int
	OldestPendingAt time.Time
}
