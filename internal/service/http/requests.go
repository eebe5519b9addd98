package httpsvc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/vladislavdragonenkov/basket/internal/domain"
)

// amountValue принимает количество числом или строкой с числом.
type amountValue int

func (a *amountValue) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*a = 0
		return nil
	}
	raw = strings.TrimSpace(strings.Trim(raw, `"`))
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%w: %q", domain.ErrAmountInvalid, raw)
	}
	*a = amountValue(n)
	return nil
}

type addOrderLineRequest struct {
	OfferingID string      `json:"offeringId"`
	Amount     amountValue `json:"amount"`
	Comment    string      `json:"comment"`
}

type orderLineCommentRequest struct {
	OrderLineID string `json:"orderLineId"`
	Comment     string `json:"comment"`
}

type deleteOrderLineRequest struct {
	OrderLineID string `json:"orderLineId"`
}

type persistInvoiceRequest struct {
	BasketID       string       `json:"basketId"`
	InvoiceAddress attributeSet `json:"invoiceAddress"`
	InvoicePostal  attributeSet `json:"invoicePostal"`
}

type persistDeliveryRequest struct {
	BasketID               string       `json:"basketId"`
	DeliveryAddress        attributeSet `json:"deliveryAddress"`
	DeliveryPostal         attributeSet `json:"deliveryPostal"`
	HasCustomDeliveryPlace bool         `json:"hasCustomDeliveryPlace"`
	DeliveryPlaceID        string       `json:"deliveryPlaceId"`
	DeliveryType           string       `json:"deliveryType"`
}

// attributeSet — атрибуты адреса в нотации JSON:API.
// Поле присутствует, если ключ передан; null и "" очищают значение.
// Допускается обёртка {"attributes": {...}}.
type attributeSet map[string]json.RawMessage

func (a *attributeSet) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*a = nil
		return nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if nested, ok := fields["attributes"]; ok && len(fields) == 1 {
		if err := json.Unmarshal(nested, &fields); err != nil {
			return err
		}
	}
	*a = fields
	return nil
}

func (a attributeSet) field(name string) (*string, error) {
	raw, ok := a[name]
	if !ok {
		return nil, nil
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		empty := ""
		return &empty, nil
	}

	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("%w: attribute %q must be a string", domain.ErrMalformedRequest, name)
	}
	return &value, nil
}

func (a attributeSet) addressPatch() (domain.AddressPatch, error) {
	var (
		patch domain.AddressPatch
		err   error
	)
	targets := []struct {
		name string
		dst  **string
	}{
		{"first-name", &patch.FirstName},
		{"last-name", &patch.LastName},
		{"company", &patch.Company},
		{"telephone", &patch.Telephone},
		{"email", &patch.Email},
	}
	for _, t := range targets {
		if *t.dst, err = a.field(t.name); err != nil {
			return domain.AddressPatch{}, err
		}
	}
	return patch, nil
}

func (a attributeSet) postalPatch() (domain.PostalPatch, error) {
	var (
		patch domain.PostalPatch
		err   error
	)
	targets := []struct {
		name string
		dst  **string
	}{
		{"locality", &patch.Locality},
		{"postal-code", &patch.PostalCode},
		{"street-address", &patch.StreetAddress},
	}
	for _, t := range targets {
		if *t.dst, err = a.field(t.name); err != nil {
			return domain.PostalPatch{}, err
		}
	}
	return patch, nil
}
