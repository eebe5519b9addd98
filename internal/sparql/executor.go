package sparql

import "context"

// Executor исполняет запросы к triple store.
//
// Update получает все операции одного запроса; реализация обязана отправить их
// вместе (одним HTTP-запросом либо под одной блокировкой).
type Executor interface {
	Query(ctx context.Context, q Select) (Results, error)
	Update(ctx context.Context, ops ...Update) error
}
