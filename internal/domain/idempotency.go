package domain

import "time"

// IdempotencyStatus — состояние ключа Idempotency-Key.
type IdempotencyStatus string

const (
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	IdempotencyStatusDone       IdempotencyStatus = "done"
	IdempotencyStatusFailed     IdempotencyStatus = "failed"
)

func (s IdempotencyStatus) Valid() bool {
	return s == IdempotencyStatusProcessing || s == IdempotencyStatusDone || s == IdempotencyStatusFailed
}

// IdempotencyRecord — запомненный ответ на мутирующий запрос к корзине.
// Пока Status == processing, ответ ещё не записан.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseBody []byte
	HTTPStatus   int
	Status       IdempotencyStatus
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Replayable сообщает, что ответ можно вернуть повторно без выполнения запроса.
func (r IdempotencyRecord) Replayable() bool {
	return r.HTTPStatus != 0 && r.Status != IdempotencyStatusProcessing
}

// Expired: ключ без TTL не истекает.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.TTLAt.IsZero() && !now.Before(r.TTLAt)
}

// ClaimConflict возвращает ошибку для повторного захвата живого ключа:
// тот же запрос даёт ErrIdempotencyKeyAlreadyExists, другой — ErrIdempotencyHashMismatch.
func (r IdempotencyRecord) ClaimConflict(requestHash string) error {
	if r.RequestHash != requestHash {
		return ErrIdempotencyHashMismatch
	}
	return ErrIdempotencyKeyAlreadyExists
}
