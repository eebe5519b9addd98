// Package merge переносит корзину сессии в граф аккаунта после входа пользователя.
package merge

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/basket/internal/domain"
	"github.com/vladislavdragonenkov/basket/internal/metrics"
	"github.com/vladislavdragonenkov/basket/internal/service/outbox"
	"github.com/vladislavdragonenkov/basket/internal/sparql"
	"github.com/vladislavdragonenkov/basket/internal/vocab"
)

// GraphLookup ищет графы сессии и аккаунта, не создавая их.
type GraphLookup interface {
	SessionGraph(ctx context.Context, session domain.SessionID) (domain.GraphRef, error)
	AccountGraph(ctx context.Context, session domain.SessionID) (domain.GraphRef, error)
}

// BasketLookup — операции корзины, нужные для переноса.
type BasketLookup interface {
	ActiveBasket(ctx context.Context, graph domain.GraphRef) (domain.BasketRef, bool, error)
	EnsureActiveBasket(ctx context.Context, graph domain.GraphRef) (domain.BasketRef, error)
	OrderLines(ctx context.Context, ref domain.BasketRef) ([]domain.OrderLine, error)
	RegisterBasketChanged(ctx context.Context, ref domain.BasketRef) error
}

// Merger реализует domain.BasketMerger.
type Merger struct {
	graphs  GraphLookup
	baskets BasketLookup
	exec    sparql.Executor
	events  *outbox.Recorder
	metrics *metrics.BasketMetrics
	logger  *log.Entry
	now     func() time.Time
}

// NewMerger создаёт Merger; events, m и logger могут быть nil.
func NewMerger(graphs GraphLookup, baskets BasketLookup, exec sparql.Executor, events *outbox.Recorder, m *metrics.BasketMetrics, logger *log.Entry) *Merger {
	if logger == nil {
		logger = log.WithField("component", "graph-merge")
	}
	return &Merger{
		graphs:  graphs,
		baskets: baskets,
		exec:    exec,
		events:  events,
		metrics: m,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// MergeSessionBasketIntoAccount переносит строки draft-корзины сессии в draft-корзину
// аккаунта и удаляет корзину сессии. Все изменения уходят одним запросом обновления.
// Повторный вызов ничего не делает.
func (m *Merger) MergeSessionBasketIntoAccount(ctx context.Context, session domain.SessionID) (domain.MergeResult, error) {
	if err := session.Validate(); err != nil {
		return domain.MergeResult{}, err
	}

	result, err := m.merge(ctx, session)
	if m.metrics != nil {
		switch {
		case err != nil:
			m.metrics.RecordMerge("error", 0)
		case result.Merged:
			m.metrics.RecordMerge("merged", result.Lines)
		default:
			m.metrics.RecordMerge("noop", 0)
		}
	}
	return result, err
}

func (m *Merger) merge(ctx context.Context, session domain.SessionID) (domain.MergeResult, error) {
	sessionGraph, err := m.graphs.SessionGraph(ctx, session)
	if err != nil {
		return domain.MergeResult{}, err
	}
	accountGraph, err := m.graphs.AccountGraph(ctx, session)
	if err != nil {
		return domain.MergeResult{}, err
	}
	if sessionGraph.IsZero() || accountGraph.IsZero() || sessionGraph.IRI == accountGraph.IRI {
		return domain.MergeResult{}, nil
	}

	source, found, err := m.baskets.ActiveBasket(ctx, sessionGraph)
	if err != nil {
		return domain.MergeResult{}, err
	}
	if !found {
		return domain.MergeResult{}, nil
	}

	target, err := m.baskets.EnsureActiveBasket(ctx, accountGraph)
	if err != nil {
		return domain.MergeResult{}, err
	}

	lines, err := m.baskets.OrderLines(ctx, source)
	if err != nil {
		return domain.MergeResult{}, err
	}

	if err := m.exec.Update(ctx, mergeOps(source, target)...); err != nil {
		return domain.MergeResult{}, fmt.Errorf("merge basket %s into %s: %w", source.ID, target.ID, err)
	}
	if err := m.baskets.RegisterBasketChanged(ctx, target); err != nil {
		return domain.MergeResult{}, err
	}

	result := domain.MergeResult{
		Merged:        true,
		SessionBasket: source,
		AccountBasket: target,
		Lines:         len(lines),
	}

	m.logger.WithFields(log.Fields{
		"session_basket": source.ID,
		"account_basket": target.ID,
		"lines":          result.Lines,
	}).Info("session basket merged into account")

	m.events.Record(ctx, target.ID, domain.EventBasketMerged, domain.BasketMerged{
		SessionBasketID: source.ID,
		AccountBasketID: target.ID,
		SessionGraph:    sessionGraph.IRI,
		AccountGraph:    accountGraph.IRI,
		Lines:           result.Lines,
		MergedAt:        m.now(),
	})
	return result, nil
}

// mergeOps строит операции переноса в порядке исполнения: копирование строк,
// удаление строк, адресов и свойств корзины сессии, удаление ссылки hasBasket.
func mergeOps(source, target domain.BasketRef) []sparql.Update {
	var (
		sg      = sparql.IRI(source.Graph.IRI)
		ag      = sparql.IRI(target.Graph.IRI)
		sb      = sparql.IRI(source.IRI)
		ab      = sparql.IRI(target.IRI)
		line    = sparql.Var("line")
		address = sparql.Var("address")
		postal  = sparql.Var("postal")
		link    = sparql.Var("link")
		p, o    = sparql.Var("p"), sparql.Var("o")
	)

	linesWhere := []sparql.Pattern{sparql.InGraph(sg,
		sparql.T(sb, vocab.OrderLine, line),
		sparql.T(line, p, o),
	)}
	addressLinks := sparql.Values{Var: "link", Terms: []sparql.Term{vocab.DeliveryAddress, vocab.InvoiceAddress}}

	return []sparql.Update{
		{
			Insert: sparql.Quads(ag,
				sparql.T(ab, vocab.OrderLine, line),
				sparql.T(line, p, o),
			),
			Where: linesWhere,
		},
		{
			Delete: sparql.Quads(sg,
				sparql.T(sb, vocab.OrderLine, line),
				sparql.T(line, p, o),
			),
			Where: linesWhere,
		},
		{
			Delete: sparql.Quads(sg, sparql.T(postal, p, o)),
			Where: []sparql.Pattern{sparql.InGraph(sg,
				sparql.T(sb, link, address),
				addressLinks,
				sparql.T(address, vocab.HasAddress, postal),
				sparql.T(postal, p, o),
			)},
		},
		{
			Delete: sparql.Quads(sg, sparql.T(address, p, o)),
			Where: []sparql.Pattern{sparql.InGraph(sg,
				sparql.T(sb, link, address),
				addressLinks,
				sparql.T(address, p, o),
			)},
		},
		{
			Delete: sparql.Quads(sg, sparql.T(sb, p, o)),
			Where:  []sparql.Pattern{sparql.InGraph(sg, sparql.T(sb, p, o))},
		},
		{
			Delete: sparql.Quads(sg, sparql.T(sg, vocab.HasBasket, sb)),
		},
	}
}

var _ domain.BasketMerger = (*Merger)(nil)
