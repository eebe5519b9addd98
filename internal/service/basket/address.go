package basket

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/vladislavdragonenkov/basket/internal/domain"
	"github.com/vladislavdragonenkov/basket/internal/sparql"
	"github.com/vladislavdragonenkov/basket/internal/vocab"
)

// field — одно поле разреженного изменения: предикат и новое значение (nil — не трогать).
type field struct {
	name      string
	predicate sparql.Term
	value     *string
}

func addressFields(p domain.AddressPatch) []field {
	return []field{
		{name: "firstName", predicate: vocab.FirstName, value: p.FirstName},
		{name: "lastName", predicate: vocab.LastName, value: p.LastName},
		{name: "company", predicate: vocab.CompanyInfo, value: p.Company},
		{name: "telephone", predicate: vocab.Phone, value: p.Telephone},
		{name: "email", predicate: vocab.Email, value: p.Email},
	}
}

func postalFields(p domain.PostalPatch) []field {
	return []field{
		{name: "locality", predicate: vocab.AddressLocality, value: p.Locality},
		{name: "postalCode", predicate: vocab.PostalCode, value: p.PostalCode},
		{name: "streetAddress", predicate: vocab.StreetAddress, value: p.StreetAddress},
	}
}

func addressLink(kind domain.AddressKind) (sparql.Term, error) {
	switch kind {
	case domain.AddressKindDelivery:
		return vocab.DeliveryAddress, nil
	case domain.AddressKindInvoice:
		return vocab.InvoiceAddress, nil
	default:
		return sparql.Term{}, domain.ErrAddressKindInvalid
	}
}

// Address читает адрес корзины; nil, если адрес такого вида не привязан.
func (s *Store) Address(ctx context.Context, ref domain.BasketRef, kind domain.AddressKind) (*domain.Address, error) {
	link, err := addressLink(kind)
	if err != nil {
		return nil, err
	}

	vars := []string{"address", "addressId", "postal", "postalId"}
	where := append(basketByID(ref.ID),
		sparql.T(vBasket, link, vAddress),
		sparql.T(vAddress, vocab.UUID, sparql.Var("addressId")),
	)
	for _, f := range addressFields(domain.AddressPatch{}) {
		vars = append(vars, f.name)
		where = append(where, sparql.Opt(sparql.T(vAddress, f.predicate, sparql.Var(f.name))))
	}
	postal := []sparql.Pattern{
		sparql.T(vAddress, vocab.HasAddress, vPostal),
		sparql.T(vPostal, vocab.UUID, sparql.Var("postalId")),
	}
	for _, f := range postalFields(domain.PostalPatch{}) {
		vars = append(vars, f.name)
		postal = append(postal, sparql.Opt(sparql.T(vPostal, f.predicate, sparql.Var(f.name))))
	}
	where = append(where, sparql.Opt(postal...))

	res, err := s.exec.Query(ctx, sparql.Select{
		Vars:  vars,
		Where: []sparql.Pattern{sparql.InGraph(graphTerm(ref.Graph), where...)},
		Limit: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("read %s address of basket %s: %w", kind, ref.ID, err)
	}

	row, ok := res.First()
	if !ok {
		return nil, nil
	}

	addr := &domain.Address{
		ID:        row.Value("addressId"),
		IRI:       row.Value("address"),
		Kind:      kind,
		FirstName: row.Value("firstName"),
		LastName:  row.Value("lastName"),
		Company:   row.Value("company"),
		Telephone: row.Value("telephone"),
		Email:     row.Value("email"),
	}
	if _, ok := row.Get("postalId"); ok {
		addr.Postal = &domain.PostalAddress{
			ID:            row.Value("postalId"),
			IRI:           row.Value("postal"),
			Locality:      row.Value("locality"),
			PostalCode:    row.Value("postalCode"),
			StreetAddress: row.Value("streetAddress"),
		}
	}
	return addr, nil
}

// PersistAddress применяет разреженное изменение адреса.
//
// Для каждого переданного поля строится пара: удаление текущего значения
// (через OPTIONAL) и вставка нового, если оно не пустое. Непереданные поля
// в запрос не попадают и остаются как есть.
func (s *Store) PersistAddress(ctx context.Context, ref domain.BasketRef, kind domain.AddressKind, addr domain.AddressPatch, postal domain.PostalPatch) error {
	link, err := addressLink(kind)
	if err != nil {
		return err
	}

	g := graphTerm(ref.Graph)
	var (
		del, ins  []sparql.Triple
		postalOpt []sparql.Pattern
	)
	where := append(basketByID(ref.ID), sparql.T(vBasket, link, vAddress))

	for _, f := range addressFields(addr) {
		if f.value == nil {
			continue
		}
		old := sparql.Var("old_" + f.name)
		where = append(where, sparql.Opt(sparql.T(vAddress, f.predicate, old)))
		del = append(del, sparql.T(vAddress, f.predicate, old))
		if v := strings.TrimSpace(*f.value); v != "" {
			ins = append(ins, sparql.T(vAddress, f.predicate, sparql.String(v)))
		}
	}
	for _, f := range postalFields(postal) {
		if f.value == nil {
			continue
		}
		old := sparql.Var("old_" + f.name)
		postalOpt = append(postalOpt, sparql.Opt(sparql.T(vPostal, f.predicate, old)))
		del = append(del, sparql.T(vPostal, f.predicate, old))
		if v := strings.TrimSpace(*f.value); v != "" {
			ins = append(ins, sparql.T(vPostal, f.predicate, sparql.String(v)))
		}
	}
	if len(del) == 0 {
		return nil
	}
	if len(postalOpt) > 0 {
		where = append(where, sparql.Opt(append([]sparql.Pattern{sparql.T(vAddress, vocab.HasAddress, vPostal)}, postalOpt...)...))
	}

	err = s.exec.Update(ctx, sparql.Update{
		Delete: sparql.Quads(g, del...),
		Insert: sparql.Quads(g, ins...),
		Where:  []sparql.Pattern{sparql.InGraph(g, where...)},
	})
	if err != nil {
		return fmt.Errorf("persist %s address of basket %s: %w", kind, ref.ID, err)
	}
	return nil
}

// PersistDeliveryMeta записывает параметры доставки.
// Флаг перезаписывается всегда, тип доставки только если передан, место
// доставки ищется в каталоге по идентификатору либо снимается.
func (s *Store) PersistDeliveryMeta(ctx context.Context, ref domain.BasketRef, meta domain.DeliveryMeta) error {
	deliveryType := strings.TrimSpace(meta.DeliveryType)
	if deliveryType != "" {
		u, err := url.Parse(deliveryType)
		if err != nil || !u.IsAbs() {
			return fmt.Errorf("delivery type %q: %w", deliveryType, domain.ErrDeliveryTypeInvalid)
		}
	}

	g := graphTerm(ref.Graph)
	oldCustom, oldPlace, oldType := sparql.Var("oldCustom"), sparql.Var("oldPlace"), sparql.Var("oldType")

	del := []sparql.Triple{
		sparql.T(vBasket, vocab.HasCustomDeliveryPlace, oldCustom),
		sparql.T(vBasket, vocab.DeliveryPlace, oldPlace),
	}
	ins := []sparql.Triple{
		sparql.T(vBasket, vocab.HasCustomDeliveryPlace, sparql.Bool(meta.HasCustomDeliveryPlace)),
	}
	inGraph := append(basketByID(ref.ID),
		sparql.Opt(sparql.T(vBasket, vocab.HasCustomDeliveryPlace, oldCustom)),
		sparql.Opt(sparql.T(vBasket, vocab.DeliveryPlace, oldPlace)),
	)
	if deliveryType != "" {
		del = append(del, sparql.T(vBasket, vocab.DeliveryType, oldType))
		ins = append(ins, sparql.T(vBasket, vocab.DeliveryType, sparql.IRI(deliveryType)))
		inGraph = append(inGraph, sparql.Opt(sparql.T(vBasket, vocab.DeliveryType, oldType)))
	}

	where := []sparql.Pattern{sparql.InGraph(g, inGraph...)}
	if placeID := strings.TrimSpace(meta.DeliveryPlaceID); placeID != "" {
		ins = append(ins, sparql.T(vBasket, vocab.DeliveryPlace, vPlace))
		where = append(where, sparql.Opt(
			sparql.InGraph(s.catalog, sparql.T(vPlace, vocab.UUID, sparql.String(placeID))),
		))
	}

	err := s.exec.Update(ctx, sparql.Update{
		Delete: sparql.Quads(g, del...),
		Insert: sparql.Quads(g, ins...),
		Where:  where,
	})
	if err != nil {
		return fmt.Errorf("persist delivery info of basket %s: %w", ref.ID, err)
	}
	return nil
}
