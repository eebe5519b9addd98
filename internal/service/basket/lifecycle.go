package basket

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/basket/internal/domain"
	"github.com/vladislavdragonenkov/basket/internal/sparql"
	"github.com/vladislavdragonenkov/basket/internal/vocab"
)

var (
	draftStatus     = sparql.IRI(string(domain.OrderStatusDraft))
	confirmedStatus = sparql.IRI(string(domain.OrderStatusConfirmed))
)

// EnsureActiveBasket возвращает последнюю draft-корзину графа или создаёт новую.
func (s *Store) EnsureActiveBasket(ctx context.Context, graph domain.GraphRef) (domain.BasketRef, error) {
	ref, found, err := s.ActiveBasket(ctx, graph)
	if err != nil {
		return domain.BasketRef{}, err
	}
	if found {
		return ref, nil
	}

	ref = domain.BasketRef{ID: s.newID(), Graph: graph}
	ref.IRI = vocab.BasketBase + ref.ID

	if err := s.exec.Update(ctx, sparql.Update{Insert: s.newBasketQuads(ref)}); err != nil {
		return domain.BasketRef{}, fmt.Errorf("create basket: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordBasketCreated()
	}
	s.logger.WithFields(log.Fields{
		"basket_id": ref.ID,
		"graph":     graph.IRI,
	}).Info("basket created")
	return ref, nil
}

// ActiveBasket ищет draft-корзину графа с самым поздним statusChangedAt, не создавая новую.
func (s *Store) ActiveBasket(ctx context.Context, graph domain.GraphRef) (domain.BasketRef, bool, error) {
	g := graphTerm(graph)
	res, err := s.exec.Query(ctx, sparql.Select{
		Vars: []string{"basket", "id", "changedAt"},
		Where: []sparql.Pattern{
			sparql.InGraph(g,
				sparql.T(g, vocab.HasBasket, vBasket),
				sparql.T(vBasket, vocab.BasketOrderStatus, draftStatus),
				sparql.T(vBasket, vocab.UUID, vID),
				sparql.Opt(sparql.T(vBasket, vocab.StatusChangedAt, vChanged)),
			),
		},
		Order: []sparql.OrderBy{{Var: "changedAt", Desc: true}},
		Limit: 1,
	})
	if err != nil {
		return domain.BasketRef{}, false, fmt.Errorf("lookup active basket: %w", err)
	}

	row, ok := res.First()
	if !ok {
		return domain.BasketRef{}, false, nil
	}
	return domain.BasketRef{
		ID:    row.Value("id"),
		IRI:   row.Value("basket"),
		Graph: graph,
	}, true, nil
}

// newBasketQuads описывает корзину вместе с пустыми адресами доставки и счёта.
func (s *Store) newBasketQuads(ref domain.BasketRef) []sparql.Quad {
	g := graphTerm(ref.Graph)
	basket := sparql.IRI(ref.IRI)

	triples := []sparql.Triple{
		sparql.T(g, vocab.HasBasket, basket),
		sparql.T(basket, vocab.Type, vocab.BasketClass),
		sparql.T(basket, vocab.UUID, sparql.String(ref.ID)),
		sparql.T(basket, vocab.BasketOrderStatus, draftStatus),
		sparql.T(basket, vocab.StatusChangedAt, sparql.DateTime(s.now())),
		sparql.T(basket, vocab.DeliveryType, sparql.IRI(domain.DefaultDeliveryType)),
		sparql.T(basket, vocab.HasCustomDeliveryPlace, sparql.Bool(false)),
	}

	for _, link := range []sparql.Term{vocab.DeliveryAddress, vocab.InvoiceAddress} {
		addressID, postalID := s.newID(), s.newID()
		address := sparql.IRI(vocab.FullAddressBase + addressID)
		postal := sparql.IRI(vocab.PostalAddressBase + postalID)

		triples = append(triples,
			sparql.T(basket, link, address),
			sparql.T(address, vocab.Type, vocab.AddressClass),
			sparql.T(address, vocab.UUID, sparql.String(addressID)),
			sparql.T(address, vocab.HasAddress, postal),
			sparql.T(postal, vocab.Type, vocab.PostalAddressClass),
			sparql.T(postal, vocab.UUID, sparql.String(postalID)),
		)
	}
	return sparql.Quads(g, triples...)
}

// BasketDetails читает атрибуты корзины.
func (s *Store) BasketDetails(ctx context.Context, ref domain.BasketRef) (domain.Basket, error) {
	var (
		status  = sparql.Var("status")
		payment = sparql.Var("paymentStatus")
		dtype   = sparql.Var("deliveryType")
		custom  = sparql.Var("hasCustomDeliveryPlace")
		placeID = sparql.Var("deliveryPlaceId")
	)

	where := append(basketByID(ref.ID),
		sparql.Opt(sparql.T(vBasket, vocab.BasketOrderStatus, status)),
		sparql.Opt(sparql.T(vBasket, vocab.PaymentStatus, payment)),
		sparql.Opt(sparql.T(vBasket, vocab.StatusChangedAt, vChanged)),
		sparql.Opt(sparql.T(vBasket, vocab.DeliveryType, dtype)),
		sparql.Opt(sparql.T(vBasket, vocab.HasCustomDeliveryPlace, custom)),
		sparql.Opt(
			sparql.T(vBasket, vocab.DeliveryPlace, vPlace),
			sparql.InGraph(s.catalog, sparql.T(vPlace, vocab.UUID, placeID)),
		),
	)

	res, err := s.exec.Query(ctx, sparql.Select{
		Vars:  []string{"basket", "status", "paymentStatus", "changedAt", "deliveryType", "hasCustomDeliveryPlace", "deliveryPlaceId"},
		Where: []sparql.Pattern{sparql.InGraph(graphTerm(ref.Graph), where...)},
		Limit: 1,
	})
	if err != nil {
		return domain.Basket{}, fmt.Errorf("read basket %s: %w", ref.ID, err)
	}

	row, ok := res.First()
	if !ok {
		return domain.Basket{}, fmt.Errorf("basket %s in graph %s: %w", ref.ID, ref.Graph.IRI, domain.ErrBasketNotFound)
	}

	ref.IRI = row.Value("basket")
	basket := domain.Basket{
		Ref:             ref,
		OrderStatus:     domain.OrderStatus(row.Value("status")),
		PaymentStatus:   row.Value("paymentStatus"),
		DeliveryType:    row.Value("deliveryType"),
		DeliveryPlaceID: row.Value("deliveryPlaceId"),
	}
	if t, ok := row.Get("hasCustomDeliveryPlace"); ok {
		custom := t.Bool()
		basket.HasCustomDeliveryPlace = &custom
	}
	if t, ok := row.Get("changedAt"); ok {
		if changedAt, err := t.Time(); err == nil {
			basket.ChangedAt = changedAt
		}
	}
	return basket, nil
}

// ConfirmBasket переводит корзину графа из draft в confirmed.
//
// Обновление повторяет условие draft в WHERE и пишет новый confirmationToken;
// из параллельных запросов успешен только тот, чей токен прочитан после записи.
func (s *Store) ConfirmBasket(ctx context.Context, graph domain.GraphRef, basketID string) (domain.BasketRef, error) {
	g := graphTerm(graph)
	owned := []sparql.Pattern{
		sparql.T(g, vocab.HasBasket, vBasket),
		sparql.T(vBasket, vocab.UUID, sparql.String(basketID)),
		sparql.T(vBasket, vocab.BasketOrderStatus, draftStatus),
	}

	res, err := s.exec.Query(ctx, sparql.Select{
		Vars:  []string{"basket"},
		Where: []sparql.Pattern{sparql.InGraph(g, owned...)},
		Limit: 1,
	})
	if err != nil {
		s.recordConfirmation("error")
		return domain.BasketRef{}, fmt.Errorf("check basket %s: %w", basketID, err)
	}
	row, ok := res.First()
	if !ok {
		s.recordConfirmation("rejected")
		return domain.BasketRef{}, fmt.Errorf("confirm basket %s: %w", basketID, domain.ErrBasketNotConfirmable)
	}
	ref := domain.BasketRef{ID: basketID, IRI: row.Value("basket"), Graph: graph}

	now := s.now()
	token := sparql.String(s.newID())
	err = s.exec.Update(ctx, sparql.Update{
		Delete: sparql.Quads(g,
			sparql.T(vBasket, vocab.BasketOrderStatus, draftStatus),
			sparql.T(vBasket, vocab.StatusChangedAt, vChanged),
		),
		Insert: sparql.Quads(g,
			sparql.T(vBasket, vocab.BasketOrderStatus, confirmedStatus),
			sparql.T(vBasket, vocab.StatusChangedAt, sparql.DateTime(now)),
			sparql.T(vBasket, vocab.ConfirmationToken, token),
		),
		Where: []sparql.Pattern{sparql.InGraph(g,
			append(owned, sparql.Opt(sparql.T(vBasket, vocab.StatusChangedAt, vChanged)))...,
		)},
	})
	if err != nil {
		s.recordConfirmation("error")
		return domain.BasketRef{}, fmt.Errorf("confirm basket %s: %w", basketID, err)
	}

	check, err := s.exec.Query(ctx, sparql.Select{
		Vars: []string{"basket"},
		Where: []sparql.Pattern{sparql.InGraph(g,
			sparql.T(vBasket, vocab.UUID, sparql.String(basketID)),
			sparql.T(vBasket, vocab.ConfirmationToken, token),
		)},
		Limit: 1,
	})
	if err != nil {
		s.recordConfirmation("error")
		return domain.BasketRef{}, fmt.Errorf("verify confirmation of basket %s: %w", basketID, err)
	}
	if check.Empty() {
		s.recordConfirmation("lost_race")
		return domain.BasketRef{}, fmt.Errorf("confirm basket %s: %w", basketID, domain.ErrBasketNotConfirmable)
	}

	s.recordConfirmation("confirmed")
	s.logger.WithFields(log.Fields{
		"basket_id": basketID,
		"graph":     graph.IRI,
	}).Info("basket confirmed")

	s.events.Record(ctx, basketID, domain.EventBasketConfirmed, domain.BasketConfirmed{
		BasketID:    basketID,
		BasketIRI:   ref.IRI,
		Graph:       graph.IRI,
		ConfirmedAt: now,
	})
	return ref, nil
}

func (s *Store) recordConfirmation(result string) {
	if s.metrics != nil {
		s.metrics.RecordConfirmation(result)
	}
}

// RegisterBasketChanged переставляет statusChangedAt на текущее время.
// Без предыдущего значения ничего не меняет.
func (s *Store) RegisterBasketChanged(ctx context.Context, ref domain.BasketRef) error {
	g := graphTerm(ref.Graph)
	where := append(basketByID(ref.ID), sparql.T(vBasket, vocab.StatusChangedAt, vChanged))

	err := s.exec.Update(ctx, sparql.Update{
		Delete: sparql.Quads(g, sparql.T(vBasket, vocab.StatusChangedAt, vChanged)),
		Insert: sparql.Quads(g, sparql.T(vBasket, vocab.StatusChangedAt, sparql.DateTime(s.now()))),
		Where:  []sparql.Pattern{sparql.InGraph(g, where...)},
	})
	if err != nil {
		return fmt.Errorf("register change of basket %s: %w", ref.ID, err)
	}
	return nil
}
