package httpsvc

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/basket/internal/domain"
)

// statusRecorder запоминает статус и, при необходимости, тело ответа.
type statusRecorder struct {
	http.ResponseWriter
	status int
	body   *bytes.Buffer
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	if r.body != nil {
		r.body.Write(p)
	}
	return r.ResponseWriter.Write(p)
}

func (r *statusRecorder) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// instrument пишет одну запись лога и метрики на запрос.
func (s *Server) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if s.metrics != nil {
			s.metrics.RequestStarted()
		}

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		status := rec.statusCode()
		if s.metrics != nil {
			s.metrics.RequestFinished(route, r.Method, status, duration)
		}

		s.logger.WithFields(log.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      status,
			"duration_ms": duration.Milliseconds(),
			"session_id":  r.Header.Get(headerSession),
		}).Info("http request")
	})
}

// withIdempotency повторяет сохранённый ответ для запроса с тем же Idempotency-Key.
// Без заголовка запрос обрабатывается как обычно.
func (s *Server) withIdempotency(next http.Handler) http.Handler {
	if s.idempotency == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: %v", domain.ErrMalformedRequest, err))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		ctx := context.WithoutCancel(r.Context())
		hash := requestHash(r.Method, r.URL.Path, r.Header.Get(headerSession), body)

		record, err := s.idempotency.CreateProcessing(ctx, key, hash, s.now().Add(s.idempotencyTTL))
		if err != nil {
			s.replay(w, r, record, err)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, body: &bytes.Buffer{}}
		next.ServeHTTP(rec, r)

		status := rec.statusCode()
		store := s.idempotency.MarkDone
		if status >= http.StatusBadRequest {
			store = s.idempotency.MarkFailed
		}
		if err := store(ctx, key, rec.body.Bytes(), status); err != nil {
			s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent response")
		}
	})
}

func (s *Server) replay(w http.ResponseWriter, r *http.Request, record domain.IdempotencyRecord, createErr error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		s.writeError(w, r, createErr)
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		if !record.Replayable() {
			s.writeError(w, r, fmt.Errorf("%w: request is still processing", createErr))
			return
		}
		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(record.HTTPStatus)
		_, _ = w.Write(record.ResponseBody)
	default:
		s.writeError(w, r, createErr)
	}
}

// requestHash — sha256 от метода, пути, сессии и тела запроса.
func requestHash(method, path, session string, body []byte) string {
	h := sha256.New()
	for _, part := range []string{method, path, session} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
