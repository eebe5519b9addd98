package domain

import (
	"strings"
	"time"
)

// SessionID — IRI сессии из заголовка mu-session-id.
type SessionID string

// Validate проверяет, что идентификатор сессии передан.
func (s SessionID) Validate() error {
	if strings.TrimSpace(string(s)) == "" {
		return ErrSessionRequired
	}
	return nil
}

// GraphKind различает графы сессии и аккаунта.
type GraphKind string

const (
	GraphKindSession GraphKind = "session"
	GraphKindAccount GraphKind = "account"
)

// GraphRef — именованный граф, которому принадлежат данные владельца.
type GraphRef struct {
	IRI  string
	Kind GraphKind
}

// IsZero сообщает, что граф не найден.
func (g GraphRef) IsZero() bool {
	return g.IRI == ""
}

// OrderStatus — IRI статуса заказа. Набор значений расширяемый.
type OrderStatus string

const (
	OrderStatusDraft     OrderStatus = "http://veeakker.be/order-statuses/draft"
	OrderStatusConfirmed OrderStatus = "http://veeakker.be/order-statuses/confirmed"
)

// DefaultDeliveryType назначается новой корзине.
const DefaultDeliveryType = "http://veeakker.be/delivery-types/pickup"

// BasketRef — стабильная ссылка на корзину внутри графа владельца.
type BasketRef struct {
	ID    string
	IRI   string
	Graph GraphRef
}

// Basket — атрибуты корзины без строк и адресов.
type Basket struct {
	Ref                    BasketRef
	OrderStatus            OrderStatus
	PaymentStatus          string
	ChangedAt              time.Time
	DeliveryType           string
	// HasCustomDeliveryPlace равен nil, если флаг в графе не записан.
	HasCustomDeliveryPlace *bool
	// DeliveryPlaceID пуст, если место доставки не выбрано.
	DeliveryPlaceID string
}

// IsDraft сообщает, что корзину ещё можно менять.
func (b Basket) IsDraft() bool {
	return b.OrderStatus == OrderStatusDraft
}

// OrderLine — строка заказа.
type OrderLine struct {
	ID     string
	IRI    string
	Amount int
	// OfferingID пуст, если предложение больше не находится в каталоге.
	OfferingID string
	Comment    string
}

// NewOrderLine — входные данные для добавления строки.
type NewOrderLine struct {
	OfferingID string
	Amount     int
	Comment    string
}

// Validate проверяет количество и ссылку на предложение.
func (l NewOrderLine) Validate() error {
	if strings.TrimSpace(l.OfferingID) == "" {
		return ErrOfferingRequired
	}
	if l.Amount <= 0 {
		return ErrAmountInvalid
	}
	return nil
}

// AddressKind — адрес доставки или адрес для счёта.
type AddressKind string

const (
	AddressKindDelivery AddressKind = "delivery"
	AddressKindInvoice  AddressKind = "invoice"
)

// Valid проверяет, что вид адреса поддерживается.
func (k AddressKind) Valid() bool {
	switch k {
	case AddressKindDelivery, AddressKindInvoice:
		return true
	default:
		return false
	}
}

// Address — полный адрес корзины.
type Address struct {
	ID        string
	IRI       string
	Kind      AddressKind
	FirstName string
	LastName  string
	Company   string
	Telephone string
	Email     string
	// Postal равен nil, если почтовый адрес не привязан.
	Postal *PostalAddress
}

// PostalAddress — почтовая часть адреса.
type PostalAddress struct {
	ID            string
	IRI           string
	Locality      string
	PostalCode    string
	StreetAddress string
}

// AddressPatch — разреженное изменение адреса.
// nil — поле не трогаем, пустая строка — удаляем значение.
type AddressPatch struct {
	FirstName *string
	LastName  *string
	Company   *string
	Telephone *string
	Email     *string
}

// PostalPatch — разреженное изменение почтового адреса.
type PostalPatch struct {
	Locality      *string
	PostalCode    *string
	StreetAddress *string
}

// DeliveryMeta — параметры доставки корзины.
type DeliveryMeta struct {
	HasCustomDeliveryPlace bool
	// DeliveryPlaceID из каталога; пустое значение снимает место доставки.
	DeliveryPlaceID string
	// DeliveryType — абсолютный IRI; пустое значение оставляет текущий тип.
	DeliveryType string
}
