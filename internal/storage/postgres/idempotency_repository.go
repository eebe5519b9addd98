package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/basket/internal/domain"
)

const defaultIdempotencyTTL = 24 * time.Hour

const (
	// Истёкший ключ занимается заново; живой ключ не трогается, и RETURNING ничего не вернёт.
	claimIdempotencySQL = `
INSERT INTO idempotency_keys AS k (key, request_hash, status, ttl_at, created_at, updated_at)
VALUES ($1, $2, 'processing', $3, $4, $4)
ON CONFLICT (key) DO UPDATE
SET request_hash = EXCLUDED.request_hash,
	response_body = NULL,
	http_status = NULL,
	status = EXCLUDED.status,
	ttl_at = EXCLUDED.ttl_at,
	created_at = EXCLUDED.created_at,
	updated_at = EXCLUDED.updated_at
WHERE k.ttl_at <= EXCLUDED.created_at
RETURNING created_at`

	selectIdempotencySQL = `
SELECT key, request_hash, response_body, http_status, status, ttl_at, created_at, updated_at
FROM idempotency_keys
WHERE key = $1`

	finishIdempotencySQL = `
UPDATE idempotency_keys
SET response_body = $2, http_status = $3, status = $4, updated_at = $5
WHERE key = $1`

	// LIMIT NULL в PostgreSQL снимает ограничение.
	deleteExpiredIdempotencySQL = `
DELETE FROM idempotency_keys
WHERE key IN (
	SELECT key FROM idempotency_keys
	WHERE ttl_at <= $1
	ORDER BY ttl_at
	LIMIT NULLIF($2, 0)
)`
)

type idempotencyRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewIdempotencyRepository хранит ключи в таблице idempotency_keys.
func NewIdempotencyRepository(store *Store) domain.IdempotencyRepository {
	return &idempotencyRepository{
		db:  store.DB(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *idempotencyRepository) CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key, requestHash = strings.TrimSpace(key), strings.TrimSpace(requestHash)
	switch {
	case key == "":
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	case requestHash == "":
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := r.now()
	if ttlAt.IsZero() {
		ttlAt = now.Add(defaultIdempotencyTTL)
	}

	opCtx, cancel := withOpTimeout(ctx)
	defer cancel()

	var createdAt time.Time
	err := r.db.QueryRowContext(opCtx, claimIdempotencySQL, key, requestHash, ttlAt, now).Scan(&createdAt)
	switch {
	case err == nil:
		return domain.IdempotencyRecord{
			Key:         key,
			RequestHash: requestHash,
			Status:      domain.IdempotencyStatusProcessing,
			TTLAt:       ttlAt,
			CreatedAt:   createdAt.UTC(),
			UpdatedAt:   createdAt.UTC(),
		}, nil
	case !errors.Is(err, sql.ErrNoRows) && !isUniqueViolation(err):
		return domain.IdempotencyRecord{}, fmt.Errorf("claim idempotency key: %w", err)
	}

	existing, err := r.Get(ctx, key)
	if err != nil {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
	}
	return existing, existing.ClaimConflict(requestHash)
}

func (r *idempotencyRepository) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	rec, err := scanIdempotency(r.db.QueryRowContext(ctx, selectIdempotencySQL, key))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("load idempotency key %s: %w", key, err)
	}
	return rec, nil
}

func scanIdempotency(row *sql.Row) (domain.IdempotencyRecord, error) {
	var (
		rec    domain.IdempotencyRecord
		status string
		code   sql.NullInt64
	)
	if err := row.Scan(&rec.Key, &rec.RequestHash, &rec.ResponseBody, &code, &status, &rec.TTLAt, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return rec, err
	}
	rec.Status = domain.IdempotencyStatus(status)
	if !rec.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("unknown status %q", status)
	}
	if code.Valid {
		rec.HTTPStatus = int(code.Int64)
	}
	rec.TTLAt, rec.CreatedAt, rec.UpdatedAt = rec.TTLAt.UTC(), rec.CreatedAt.UTC(), rec.UpdatedAt.UTC()
	return rec, nil
}

func (r *idempotencyRepository) MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.finish(ctx, key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

func (r *idempotencyRepository) MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.finish(ctx, key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

func (r *idempotencyRepository) finish(ctx context.Context, key string, status domain.IdempotencyStatus, body []byte, httpStatus int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, finishIdempotencySQL, key, body, httpStatus, string(status), r.now())
	if err != nil {
		return fmt.Errorf("store idempotent response for %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store idempotent response for %s: %w", key, err)
	}
	if n == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

// DeleteExpired удаляет не больше limit ключей с ttl_at <= before, самые старые первыми.
// limit <= 0 снимает ограничение, нулевой before означает «сейчас».
func (r *idempotencyRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = r.now()
	}

	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, deleteExpiredIdempotencySQL, before, max(limit, 0))
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency keys: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency keys: %w", err)
	}
	return int(n), nil
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)
