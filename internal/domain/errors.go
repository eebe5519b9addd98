package domain

import "errors"

// Классы ошибок. HTTP-слой сопоставляет их со статусами ответа.
var (
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrValidation = errors.New("validation failed")
	ErrUpstream   = errors.New("triple store unavailable")
	ErrConflict   = errors.New("conflict")
)

// kindError — конкретная ошибка, принадлежащая одному из классов.
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

func newKindError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

var (
	// ErrBasketNotFound — идентификатор корзины больше не находится в графе.
	ErrBasketNotFound = newKindError(ErrNotFound, "basket not found")
	// ErrBasketNotOwned — корзина не принадлежит ни графу сессии, ни графу аккаунта.
	ErrBasketNotOwned = newKindError(ErrForbidden, "basket is not owned by this session")
	// ErrBasketNotConfirmable — чужая корзина или корзина не в статусе draft.
	ErrBasketNotConfirmable = newKindError(ErrForbidden, "not your basket or not in draft state")
	// ErrSessionRequired — запрос без заголовка mu-session-id.
	ErrSessionRequired = newKindError(ErrValidation, "mu-session-id header is required")
	// ErrBasketMismatch — basketId в теле не совпадает с текущей корзиной.
	ErrBasketMismatch = newKindError(ErrValidation, "basket id does not match the active basket")
	// ErrAmountInvalid — количество в строке заказа должно быть положительным.
	ErrAmountInvalid = newKindError(ErrValidation, "amount must be a positive integer")
	// ErrOfferingRequired — не передан offeringId.
	ErrOfferingRequired = newKindError(ErrValidation, "offeringId is required")
	// ErrOfferingNotFound — предложение не находится в каталоге.
	ErrOfferingNotFound = newKindError(ErrValidation, "offering not found in catalog")
	// ErrOrderLineRequired — не передан orderLineId.
	ErrOrderLineRequired = newKindError(ErrValidation, "orderLineId is required")
	// ErrDeliveryTypeInvalid — тип доставки должен быть абсолютным IRI.
	ErrDeliveryTypeInvalid = newKindError(ErrValidation, "deliveryType must be an absolute IRI")
	// ErrAddressKindInvalid — неизвестный вид адреса.
	ErrAddressKindInvalid = newKindError(ErrValidation, "address kind must be delivery or invoice")
	// ErrMalformedRequest — тело запроса не разбирается.
	ErrMalformedRequest = newKindError(ErrValidation, "malformed request body")
)

var (
	// ErrIdempotencyKeyRequired — пустой idempotency-key.
	ErrIdempotencyKeyRequired = newKindError(ErrValidation, "idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой hash запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists — ключ уже использован тем же запросом.
	ErrIdempotencyKeyAlreadyExists = newKindError(ErrConflict, "idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ переиспользован с другим телом запроса.
	ErrIdempotencyHashMismatch = newKindError(ErrConflict, "idempotency key reused with different request")
	// ErrIdempotencyKeyNotFound — ключ не найден.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsForbidden(err error) bool { return errors.Is(err, ErrForbidden) }

func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

func IsUpstream(err error) bool { return errors.Is(err, ErrUpstream) }

// IsIdempotencyConflict проверяет, что ключ уже занят.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}
