package jsonapi

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/basket/internal/domain"
)

// BasketReader — операции чтения, из которых собирается документ.
type BasketReader interface {
	BasketDetails(ctx context.Context, ref domain.BasketRef) (domain.Basket, error)
	OrderLines(ctx context.Context, ref domain.BasketRef) ([]domain.OrderLine, error)
	Address(ctx context.Context, ref domain.BasketRef, kind domain.AddressKind) (*domain.Address, error)
}

// Projector собирает документ корзины. Побочных эффектов нет.
type Projector struct {
	reader BasketReader
}

// NewProjector создаёт Projector.
func NewProjector(reader BasketReader) *Projector {
	return &Projector{reader: reader}
}

// Project читает корзину, строки и оба адреса и собирает документ.
func (p *Projector) Project(ctx context.Context, ref domain.BasketRef) (Document, error) {
	basket, err := p.reader.BasketDetails(ctx, ref)
	if err != nil {
		return Document{}, err
	}
	lines, err := p.reader.OrderLines(ctx, ref)
	if err != nil {
		return Document{}, err
	}
	delivery, err := p.reader.Address(ctx, ref, domain.AddressKindDelivery)
	if err != nil {
		return Document{}, err
	}
	invoice, err := p.reader.Address(ctx, ref, domain.AddressKindInvoice)
	if err != nil {
		return Document{}, err
	}
	return Build(basket, lines, delivery, invoice), nil
}

// Build собирает документ из уже прочитанных данных.
func Build(basket domain.Basket, lines []domain.OrderLine, delivery, invoice *domain.Address) Document {
	lineRefs := make([]Identifier, 0, len(lines))
	for _, l := range lines {
		lineRefs = append(lineRefs, identifier(TypeOrderLines, l.ID))
	}

	primary := Resource{
		ID:   basket.Ref.ID,
		Type: TypeBaskets,
		Attributes: map[string]any{
			"order-status":              nullable(string(basket.OrderStatus)),
			"payment-status":            nullable(basket.PaymentStatus),
			"has-custom-delivery-place": nullableBool(basket.HasCustomDeliveryPlace),
			"delivery-type":             nullable(basket.DeliveryType),
			"changed-at":                formatTime(basket.ChangedAt),
		},
		Relationships: map[string]Relationship{
			"order-lines":      {Links: map[string]string{}, Data: lineRefs},
			"delivery-address": toOne(TypeFullAddresses, addressID(delivery)),
			"invoice-address":  toOne(TypeFullAddresses, addressID(invoice)),
		},
	}
	if basket.DeliveryPlaceID != "" {
		primary.Relationships["delivery-place"] = toOne(TypeDeliveryPlaces, basket.DeliveryPlaceID)
	}

	included := make([]Resource, 0, len(lines)+4)
	for _, l := range lines {
		included = append(included, Resource{
			ID:   l.ID,
			Type: TypeOrderLines,
			Attributes: map[string]any{
				"amount":  l.Amount,
				"comment": nullable(l.Comment),
			},
			Relationships: map[string]Relationship{
				"offering": toOne(TypeOfferings, l.OfferingID),
			},
		})
	}
	included = appendAddress(included, delivery)
	included = appendAddress(included, invoice)

	return Document{
		Data:     []Resource{primary},
		Links:    map[string]string{},
		Meta:     map[string]any{},
		Included: included,
	}
}

func appendAddress(included []Resource, addr *domain.Address) []Resource {
	if addr == nil {
		return included
	}

	postal := Relationship{Links: map[string]string{}}
	if addr.Postal != nil && addr.Postal.ID != "" {
		postal.Data = identifier(TypePostalAddresses, addr.Postal.ID)
	}

	included = append(included, Resource{
		ID:   addr.ID,
		Type: TypeFullAddresses,
		Attributes: map[string]any{
			"first-name": nullable(addr.FirstName),
			"last-name":  nullable(addr.LastName),
			"company":    nullable(addr.Company),
			"telephone":  nullable(addr.Telephone),
			"email":      nullable(addr.Email),
		},
		Relationships: map[string]Relationship{
			"postal-address": postal,
		},
	})

	if addr.Postal != nil && addr.Postal.ID != "" {
		included = append(included, Resource{
			ID:   addr.Postal.ID,
			Type: TypePostalAddresses,
			Attributes: map[string]any{
				"locality":       nullable(addr.Postal.Locality),
				"postal-code":    nullable(addr.Postal.PostalCode),
				"street-address": nullable(addr.Postal.StreetAddress),
			},
		})
	}
	return included
}

func addressID(addr *domain.Address) string {
	if addr == nil {
		return ""
	}
	return addr.ID
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
