// Package vocab содержит IRI словарей, которыми сервис описывает корзины в triple store.
package vocab

import "github.com/vladislavdragonenkov/basket/internal/sparql"

const (
	MuCore  = "http://mu.semte.ch/vocabularies/core/"
	Shop    = "http://veeakker.be/vocabularies/shop/"
	FOAF    = "http://xmlns.com/foaf/0.1/"
	Ext     = "http://mu.semte.ch/vocabularies/ext/"
	Schema  = "http://schema.org/"
	Session = "http://mu.semte.ch/vocabularies/session/"
)

// Базы IRI для создаваемых ресурсов.
const (
	BasketBase        = "http://veeakker.be/baskets/"
	OrderLineBase     = "http://veeakker.be/order-lines/"
	FullAddressBase   = "http://veeakker.be/full-addresses/"
	PostalAddressBase = "http://veeakker.be/postal-addresses/"
)

// DefaultCatalogGraph — граф публичного каталога с предложениями и местами доставки.
const DefaultCatalogGraph = "http://mu.semte.ch/graphs/public"

var (
	Type = sparql.IRI(sparql.RDFType)
	UUID = sparql.IRI(MuCore + "uuid")

	BasketClass    = sparql.IRI(Shop + "Basket")
	OrderLineClass = sparql.IRI(Shop + "OrderLine")
	AddressClass   = sparql.IRI(Shop + "Address")

	HasBasket              = sparql.IRI(Shop + "hasBasket")
	OrderLine              = sparql.IRI(Shop + "orderLine")
	BasketOrderStatus      = sparql.IRI(Shop + "basketOrderStatus")
	PaymentStatus          = sparql.IRI(Shop + "paymentStatus")
	StatusChangedAt        = sparql.IRI(Shop + "statusChangedAt")
	DeliveryAddress        = sparql.IRI(Shop + "deliveryAddress")
	InvoiceAddress         = sparql.IRI(Shop + "invoiceAddress")
	DeliveryType           = sparql.IRI(Shop + "deliveryType")
	HasCustomDeliveryPlace = sparql.IRI(Shop + "hasCustomDeliveryPlace")
	DeliveryPlace          = sparql.IRI(Shop + "deliveryPlace")
	Amount                 = sparql.IRI(Shop + "amount")
	HasOffering            = sparql.IRI(Shop + "hasOffering")
	Comment                = sparql.IRI(Shop + "comment")
	ConfirmationToken      = sparql.IRI(Shop + "confirmationToken")
	GraphBelongsToSession  = sparql.IRI(Shop + "graphBelongsToSession")
	GraphBelongsToUser     = sparql.IRI(Shop + "graphBelongsToUser")

	FirstName = sparql.IRI(FOAF + "firstName")
	LastName  = sparql.IRI(FOAF + "lastName")
	Phone     = sparql.IRI(FOAF + "phone")
	Account   = sparql.IRI(FOAF + "account")

	CompanyInfo = sparql.IRI(Ext + "companyInfo")

	PostalAddressClass = sparql.IRI(Schema + "PostalAddress")
	HasAddress         = sparql.IRI(Schema + "hasAddress")
	Email              = sparql.IRI(Schema + "email")
	AddressLocality    = sparql.IRI(Schema + "addressLocality")
	PostalCode         = sparql.IRI(Schema + "postalCode")
	StreetAddress      = sparql.IRI(Schema + "streetAddress")

	SessionAccount = sparql.IRI(Session + "account")
)
