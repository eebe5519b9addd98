package basket

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/basket/internal/domain"
	"github.com/vladislavdragonenkov/basket/internal/sparql"
	"github.com/vladislavdragonenkov/basket/internal/vocab"
)

// OrderLines возвращает строки корзины. Предложение, пропавшее из каталога,
// даёт строку с пустым OfferingID.
func (s *Store) OrderLines(ctx context.Context, ref domain.BasketRef) ([]domain.OrderLine, error) {
	var (
		lineID     = sparql.Var("lineId")
		amount     = sparql.Var("amount")
		comment    = sparql.Var("comment")
		offeringID = sparql.Var("offeringId")
	)

	where := append(basketByID(ref.ID),
		sparql.T(vBasket, vocab.OrderLine, vLine),
		sparql.T(vLine, vocab.UUID, lineID),
		sparql.T(vLine, vocab.Amount, amount),
		sparql.Opt(sparql.T(vLine, vocab.Comment, comment)),
		sparql.Opt(
			sparql.T(vLine, vocab.HasOffering, vOffering),
			sparql.InGraph(s.catalog, sparql.T(vOffering, vocab.UUID, offeringID)),
		),
	)

	res, err := s.exec.Query(ctx, sparql.Select{
		Vars:  []string{"line", "lineId", "amount", "comment", "offeringId"},
		Where: []sparql.Pattern{sparql.InGraph(graphTerm(ref.Graph), where...)},
	})
	if err != nil {
		return nil, fmt.Errorf("list order lines of basket %s: %w", ref.ID, err)
	}

	lines := make([]domain.OrderLine, 0, len(res.Solutions))
	seen := make(map[string]struct{}, len(res.Solutions))
	for _, row := range res.Solutions {
		iri := row.Value("line")
		if _, dup := seen[iri]; dup {
			continue
		}
		seen[iri] = struct{}{}

		line := domain.OrderLine{
			ID:         row.Value("lineId"),
			IRI:        iri,
			OfferingID: row.Value("offeringId"),
			Comment:    row.Value("comment"),
		}
		if t, ok := row.Get("amount"); ok {
			n, err := t.Int()
			if err != nil {
				s.logger.WithError(err).WithField("order_line", iri).Warn("order line amount is not an integer")
			}
			line.Amount = n
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// AddOrderLine добавляет строку в корзину. Вставка привязана к предложению каталога
// через WHERE; в строгом режиме неизвестное предложение отклоняется заранее.
func (s *Store) AddOrderLine(ctx context.Context, ref domain.BasketRef, in domain.NewOrderLine) (domain.OrderLine, error) {
	if err := in.Validate(); err != nil {
		if s.metrics != nil {
			s.metrics.RecordOrderLineRejected("validation")
		}
		return domain.OrderLine{}, err
	}

	if s.strictOfferings {
		res, err := s.exec.Query(ctx, sparql.Select{
			Vars:  []string{"offering"},
			Where: []sparql.Pattern{sparql.InGraph(s.catalog, sparql.T(vOffering, vocab.UUID, sparql.String(in.OfferingID)))},
			Limit: 1,
		})
		if err != nil {
			return domain.OrderLine{}, fmt.Errorf("resolve offering %s: %w", in.OfferingID, err)
		}
		if res.Empty() {
			if s.metrics != nil {
				s.metrics.RecordOrderLineRejected("offering")
			}
			return domain.OrderLine{}, fmt.Errorf("offering %s: %w", in.OfferingID, domain.ErrOfferingNotFound)
		}
	}

	line := domain.OrderLine{
		ID:         s.newID(),
		Amount:     in.Amount,
		OfferingID: in.OfferingID,
		Comment:    strings.TrimSpace(in.Comment),
	}
	line.IRI = vocab.OrderLineBase + line.ID

	g := graphTerm(ref.Graph)
	lineIRI := sparql.IRI(line.IRI)
	triples := []sparql.Triple{
		sparql.T(vBasket, vocab.OrderLine, lineIRI),
		sparql.T(lineIRI, vocab.Type, vocab.OrderLineClass),
		sparql.T(lineIRI, vocab.UUID, sparql.String(line.ID)),
		sparql.T(lineIRI, vocab.Amount, sparql.Int(line.Amount)),
		sparql.T(lineIRI, vocab.HasOffering, vOffering),
	}
	if line.Comment != "" {
		triples = append(triples, sparql.T(lineIRI, vocab.Comment, sparql.String(line.Comment)))
	}

	err := s.exec.Update(ctx, sparql.Update{
		Insert: sparql.Quads(g, triples...),
		Where: []sparql.Pattern{
			sparql.InGraph(g, basketByID(ref.ID)...),
			sparql.InGraph(s.catalog, sparql.T(vOffering, vocab.UUID, sparql.String(in.OfferingID))),
		},
	})
	if err != nil {
		return domain.OrderLine{}, fmt.Errorf("add order line to basket %s: %w", ref.ID, err)
	}

	if s.metrics != nil {
		s.metrics.RecordOrderLineAdded()
	}
	s.logger.WithFields(log.Fields{
		"basket_id":   ref.ID,
		"order_line":  line.ID,
		"offering_id": in.OfferingID,
	}).Debug("order line added")
	return line, nil
}

// lineOfBasket сопоставляет ?line со строкой корзины ref.ID по её mu:uuid.
// Строки других корзин того же графа, в том числе подтверждённых, не совпадают.
func lineOfBasket(ref domain.BasketRef, lineID string) []sparql.Pattern {
	return append(basketByID(ref.ID),
		sparql.T(vBasket, vocab.OrderLine, vLine),
		sparql.T(vLine, vocab.UUID, sparql.String(lineID)),
		sparql.T(vLine, vocab.Type, vocab.OrderLineClass),
	)
}

func (s *Store) hasOrderLine(ctx context.Context, ref domain.BasketRef, lineID string) (bool, error) {
	res, err := s.exec.Query(ctx, sparql.Select{
		Vars:  []string{"line"},
		Where: []sparql.Pattern{sparql.InGraph(graphTerm(ref.Graph), lineOfBasket(ref, lineID)...)},
		Limit: 1,
	})
	if err != nil {
		return false, err
	}
	return !res.Empty(), nil
}

// RemoveOrderLine удаляет строку корзины и все её свойства. Строка не из этой корзины
// ничего не меняет.
func (s *Store) RemoveOrderLine(ctx context.Context, ref domain.BasketRef, lineID string) error {
	if strings.TrimSpace(lineID) == "" {
		return domain.ErrOrderLineRequired
	}

	found, err := s.hasOrderLine(ctx, ref, lineID)
	if err != nil {
		return fmt.Errorf("find order line %s: %w", lineID, err)
	}
	if !found {
		s.logger.WithFields(log.Fields{"basket_id": ref.ID, "order_line": lineID}).Debug("order line not in basket, nothing to remove")
		return nil
	}

	g := graphTerm(ref.Graph)
	p, o := sparql.Var("p"), sparql.Var("o")
	err = s.exec.Update(ctx, sparql.Update{
		Delete: sparql.Quads(g,
			sparql.T(vBasket, vocab.OrderLine, vLine),
			sparql.T(vLine, p, o),
		),
		Where: []sparql.Pattern{sparql.InGraph(g, append(lineOfBasket(ref, lineID), sparql.T(vLine, p, o))...)},
	})
	if err != nil {
		return fmt.Errorf("remove order line %s: %w", lineID, err)
	}

	if s.metrics != nil {
		s.metrics.RecordOrderLineRemoved()
	}
	return nil
}

// SetOrderLineComment заменяет комментарий строки корзины; пустая строка удаляет его.
func (s *Store) SetOrderLineComment(ctx context.Context, ref domain.BasketRef, lineID, comment string) error {
	if strings.TrimSpace(lineID) == "" {
		return domain.ErrOrderLineRequired
	}

	g := graphTerm(ref.Graph)
	old := sparql.Var("oldComment")
	op := sparql.Update{
		Delete: sparql.Quads(g, sparql.T(vLine, vocab.Comment, old)),
		Where: []sparql.Pattern{sparql.InGraph(g,
			append(lineOfBasket(ref, lineID), sparql.Opt(sparql.T(vLine, vocab.Comment, old)))...,
		)},
	}
	if comment = strings.TrimSpace(comment); comment != "" {
		op.Insert = sparql.Quads(g, sparql.T(vLine, vocab.Comment, sparql.String(comment)))
	}

	if err := s.exec.Update(ctx, op); err != nil {
		return fmt.Errorf("set comment of order line %s: %w", lineID, err)
	}
	return nil
}
