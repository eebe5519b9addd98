// Package jsonapi собирает корзину в документ JSON:API.
package jsonapi

// Типы ресурсов документа.
const (
	TypeBaskets         = "baskets"
	TypeOrderLines      = "order-lines"
	TypeFullAddresses   = "full-addresses"
	TypePostalAddresses = "postal-addresses"
	TypeOfferings       = "offerings"
	TypeDeliveryPlaces  = "delivery-places"
)

// Document — документ ответа. Основной ресурс передаётся массивом из одного элемента.
type Document struct {
	Data     []Resource        `json:"data"`
	Links    map[string]string `json:"links"`
	Meta     map[string]any    `json:"meta"`
	Included []Resource        `json:"included"`
}

// Resource — ресурс документа.
type Resource struct {
	ID            string                  `json:"id"`
	Type          string                  `json:"type"`
	Attributes    map[string]any          `json:"attributes,omitempty"`
	Relationships map[string]Relationship `json:"relationships,omitempty"`
}

// Relationship — связь ресурса; Data содержит Identifier, []Identifier или nil.
type Relationship struct {
	Links map[string]string `json:"links"`
	Data  any               `json:"data"`
}

// Identifier — ссылка на ресурс; ID равен nil, если связанный ресурс не найден.
type Identifier struct {
	Type string  `json:"type"`
	ID   *string `json:"id"`
}

func identifier(typ, id string) Identifier {
	if id == "" {
		return Identifier{Type: typ}
	}
	return Identifier{Type: typ, ID: &id}
}

func toOne(typ, id string) Relationship {
	return Relationship{Links: map[string]string{}, Data: identifier(typ, id)}
}

func nullableBool(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}

// nullable превращает пустую строку в JSON null.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
