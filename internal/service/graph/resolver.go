// Package graph определяет, какой именованный граф хранит данные сессии.
package graph

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/basket/internal/domain"
	"github.com/vladislavdragonenkov/basket/internal/sparql"
	"github.com/vladislavdragonenkov/basket/internal/vocab"
)

// Resolver реализует domain.GraphResolver поверх triple store.
type Resolver struct {
	exec   sparql.Executor
	logger *log.Entry
}

// NewResolver создаёт резолвер графов.
func NewResolver(exec sparql.Executor, logger *log.Entry) *Resolver {
	if logger == nil {
		logger = log.WithField("component", "graph-resolver")
	}
	return &Resolver{exec: exec, logger: logger}
}

// AccountGraph возвращает граф аккаунта, связанного с сессией, или нулевой GraphRef.
func (r *Resolver) AccountGraph(ctx context.Context, session domain.SessionID) (domain.GraphRef, error) {
	if err := session.Validate(); err != nil {
		return domain.GraphRef{}, err
	}

	graph := sparql.Var("graph")
	res, err := r.exec.Query(ctx, sparql.Select{
		Vars: []string{"graph"},
		Where: []sparql.Pattern{
			sparql.InGraph(graph,
				sparql.T(graph, vocab.GraphBelongsToUser, sparql.Var("user")),
				sparql.T(sparql.Var("user"), vocab.Account, sparql.Var("account")),
			),
			sparql.T(sparql.IRI(string(session)), vocab.SessionAccount, sparql.Var("account")),
		},
		Order: []sparql.OrderBy{{Var: "graph"}},
		Limit: 1,
	})
	if err != nil {
		return domain.GraphRef{}, fmt.Errorf("lookup account graph: %w", err)
	}
	row, ok := res.First()
	if !ok {
		return domain.GraphRef{}, nil
	}
	return domain.GraphRef{IRI: row.Value("graph"), Kind: domain.GraphKindAccount}, nil
}

// SessionGraph возвращает граф сессии или нулевой GraphRef.
func (r *Resolver) SessionGraph(ctx context.Context, session domain.SessionID) (domain.GraphRef, error) {
	if err := session.Validate(); err != nil {
		return domain.GraphRef{}, err
	}

	graph := sparql.Var("graph")
	res, err := r.exec.Query(ctx, sparql.Select{
		Vars: []string{"graph"},
		Where: []sparql.Pattern{
			sparql.InGraph(graph,
				sparql.T(graph, vocab.GraphBelongsToSession, sparql.IRI(string(session))),
			),
		},
		Order: []sparql.OrderBy{{Var: "graph"}},
		Limit: 1,
	})
	if err != nil {
		return domain.GraphRef{}, fmt.Errorf("lookup session graph: %w", err)
	}
	row, ok := res.First()
	if !ok {
		return domain.GraphRef{}, nil
	}
	return domain.GraphRef{IRI: row.Value("graph"), Kind: domain.GraphKindSession}, nil
}

// ResolveOwnerGraph возвращает граф аккаунта, иначе граф сессии, иначе создаёт граф сессии.
func (r *Resolver) ResolveOwnerGraph(ctx context.Context, session domain.SessionID) (domain.GraphRef, error) {
	account, err := r.AccountGraph(ctx, session)
	if err != nil {
		return domain.GraphRef{}, err
	}
	if !account.IsZero() {
		return account, nil
	}

	existing, err := r.SessionGraph(ctx, session)
	if err != nil {
		return domain.GraphRef{}, err
	}
	if !existing.IsZero() {
		return existing, nil
	}

	// IRI графа сессии совпадает с IRI самой сессии.
	iri := sparql.IRI(string(session))
	err = r.exec.Update(ctx, sparql.Update{
		Insert: sparql.Quads(iri, sparql.T(iri, vocab.GraphBelongsToSession, iri)),
	})
	if err != nil {
		return domain.GraphRef{}, fmt.Errorf("create session graph: %w", err)
	}

	r.logger.WithField("graph", string(session)).Debug("session graph created")
	return domain.GraphRef{IRI: string(session), Kind: domain.GraphKindSession}, nil
}

// BasketOwner ищет корзину в графах аккаунта и сессии.
func (r *Resolver) BasketOwner(ctx context.Context, session domain.SessionID, basketID string) (domain.BasketRef, error) {
	if basketID == "" {
		return domain.BasketRef{}, domain.ErrBasketNotOwned
	}

	account, err := r.AccountGraph(ctx, session)
	if err != nil {
		return domain.BasketRef{}, err
	}
	sessionGraph, err := r.SessionGraph(ctx, session)
	if err != nil {
		return domain.BasketRef{}, err
	}

	candidates := make(map[string]domain.GraphRef, 2)
	var values []sparql.Term
	for _, g := range []domain.GraphRef{account, sessionGraph} {
		if g.IsZero() {
			continue
		}
		candidates[g.IRI] = g
		values = append(values, sparql.IRI(g.IRI))
	}
	if len(values) == 0 {
		return domain.BasketRef{}, domain.ErrBasketNotOwned
	}

	graph := sparql.Var("graph")
	basket := sparql.Var("basket")
	res, err := r.exec.Query(ctx, sparql.Select{
		Vars: []string{"graph", "basket"},
		Where: []sparql.Pattern{
			sparql.Values{Var: "graph", Terms: values},
			sparql.InGraph(graph,
				sparql.T(graph, vocab.HasBasket, basket),
				sparql.T(basket, vocab.UUID, sparql.String(basketID)),
			),
		},
		Limit: 2,
	})
	if err != nil {
		return domain.BasketRef{}, fmt.Errorf("lookup basket owner: %w", err)
	}
	if res.Empty() {
		return domain.BasketRef{}, domain.ErrBasketNotOwned
	}

	// Граф аккаунта имеет приоритет, если корзина есть в обоих.
	best := res.Solutions[0]
	for _, row := range res.Solutions {
		if candidates[row.Value("graph")].Kind == domain.GraphKindAccount {
			best = row
		}
	}
	return domain.BasketRef{
		ID:    basketID,
		IRI:   best.Value("basket"),
		Graph: candidates[best.Value("graph")],
	}, nil
}

var _ domain.GraphResolver = (*Resolver)(nil)
