// Package httpsvc — HTTP API корзины.
package httpsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/basket/internal/domain"
	"github.com/vladislavdragonenkov/basket/internal/jsonapi"
	"github.com/vladislavdragonenkov/basket/internal/metrics"
	"github.com/vladislavdragonenkov/basket/internal/storage/triplestore"
)

const (
	headerSession        = "mu-session-id"
	headerCallID         = "mu-call-id"
	headerIdempotencyKey = "Idempotency-Key"

	contentTypeJSON    = "application/json"
	contentTypeJSONAPI = "application/vnd.api+json"

	maxBodyBytes          = 1 << 20
	defaultIdempotencyTTL = 24 * time.Hour
)

// Options задаёт параметры Server.
type Options struct {
	Logger         *log.Entry
	Metrics        *metrics.HTTPMetrics
	Idempotency    domain.IdempotencyRepository
	IdempotencyTTL time.Duration
}

// Option настраивает Server.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics включает метрики запросов.
func WithMetrics(m *metrics.HTTPMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithIdempotency включает обработку заголовка Idempotency-Key для POST-запросов.
func WithIdempotency(repo domain.IdempotencyRepository, ttl time.Duration) Option {
	return func(opts *Options) {
		opts.Idempotency = repo
		opts.IdempotencyTTL = ttl
	}
}

// Server обслуживает HTTP API корзины.
type Server struct {
	graphs         domain.GraphResolver
	baskets        domain.BasketStore
	merger         domain.BasketMerger
	projector      *jsonapi.Projector
	idempotency    domain.IdempotencyRepository
	idempotencyTTL time.Duration
	metrics        *metrics.HTTPMetrics
	logger         *log.Entry
	now            func() time.Time
}

// NewServer создаёт HTTP API поверх резолвера графов, хранилища корзин и merge.
func NewServer(graphs domain.GraphResolver, baskets domain.BasketStore, merger domain.BasketMerger, options ...Option) *Server {
	opts := Options{IdempotencyTTL: defaultIdempotencyTTL}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = defaultIdempotencyTTL
	}

	return &Server{
		graphs:         graphs,
		baskets:        baskets,
		merger:         merger,
		projector:      jsonapi.NewProjector(baskets),
		idempotency:    opts.Idempotency,
		idempotencyTTL: opts.IdempotencyTTL,
		metrics:        opts.Metrics,
		logger:         logger,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// handlerFunc получает контекст, отвязанный от отмены клиентом, и сессию запроса.
type handlerFunc func(ctx context.Context, w http.ResponseWriter, r *http.Request, session domain.SessionID) error

// Handler возвращает маршрутизатор API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	s.handle(mux, http.MethodGet, "/ensure", s.ensure)
	s.handle(mux, http.MethodGet, "/previous/{basketId}", s.previous)
	s.handle(mux, http.MethodPost, "/add-order-line", s.addOrderLine)
	s.handle(mux, http.MethodPost, "/add-comment-to-order-line", s.addCommentToOrderLine)
	s.handle(mux, http.MethodPost, "/delete-order-line", s.deleteOrderLine)
	s.handle(mux, http.MethodPost, "/persist-invoice-info", s.persistInvoiceInfo)
	s.handle(mux, http.MethodPost, "/persist-delivery-info", s.persistDeliveryInfo)
	s.handle(mux, http.MethodPost, "/merge-graphs", s.mergeGraphs)
	s.handle(mux, http.MethodPost, "/confirm/{basketId}", s.confirm)

	return mux
}

func (s *Server) handle(mux *http.ServeMux, method, route string, fn handlerFunc) {
	h := s.withSession(fn)
	if method == http.MethodPost {
		h = s.withIdempotency(h)
	}
	mux.Handle(method+" "+route, s.instrument(route, h))
}

// withSession читает mu-session-id и переносит заголовки в контекст запросов к хранилищу.
// Отмена запроса клиентом не прерывает уже начатые операции хранилища.
func (s *Server) withSession(fn handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := domain.SessionID(strings.TrimSpace(r.Header.Get(headerSession)))
		if err := session.Validate(); err != nil {
			s.writeError(w, r, err)
			return
		}

		ctx := context.WithoutCancel(r.Context())
		ctx = triplestore.WithRequestInfo(ctx, triplestore.RequestInfo{
			SessionID: string(session),
			CallID:    r.Header.Get(headerCallID),
		})

		if err := fn(ctx, w, r, session); err != nil {
			s.writeError(w, r, err)
		}
	})
}

func (s *Server) ensure(ctx context.Context, w http.ResponseWriter, _ *http.Request, session domain.SessionID) error {
	ref, err := s.activeBasket(ctx, session)
	if err != nil {
		return err
	}
	return s.writeBasket(ctx, w, ref)
}

func (s *Server) previous(ctx context.Context, w http.ResponseWriter, r *http.Request, session domain.SessionID) error {
	ref, err := s.graphs.BasketOwner(ctx, session, r.PathValue("basketId"))
	if err != nil {
		return err
	}
	return s.writeBasket(ctx, w, ref)
}

func (s *Server) addOrderLine(ctx context.Context, w http.ResponseWriter, r *http.Request, session domain.SessionID) error {
	var req addOrderLineRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	ref, err := s.activeBasket(ctx, session)
	if err != nil {
		return err
	}
	if _, err := s.baskets.AddOrderLine(ctx, ref, domain.NewOrderLine{
		OfferingID: req.OfferingID,
		Amount:     int(req.Amount),
		Comment:    req.Comment,
	}); err != nil {
		return err
	}
	return s.changed(ctx, w, ref)
}

func (s *Server) addCommentToOrderLine(ctx context.Context, w http.ResponseWriter, r *http.Request, session domain.SessionID) error {
	var req orderLineCommentRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	ref, err := s.activeBasket(ctx, session)
	if err != nil {
		return err
	}
	if err := s.baskets.SetOrderLineComment(ctx, ref, req.OrderLineID, req.Comment); err != nil {
		return err
	}
	return s.changed(ctx, w, ref)
}

func (s *Server) deleteOrderLine(ctx context.Context, w http.ResponseWriter, r *http.Request, session domain.SessionID) error {
	var req deleteOrderLineRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	ref, err := s.activeBasket(ctx, session)
	if err != nil {
		return err
	}
	if err := s.baskets.RemoveOrderLine(ctx, ref, req.OrderLineID); err != nil {
		return err
	}
	return s.changed(ctx, w, ref)
}

func (s *Server) persistInvoiceInfo(ctx context.Context, w http.ResponseWriter, r *http.Request, session domain.SessionID) error {
	var req persistInvoiceRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	addr, err := req.InvoiceAddress.addressPatch()
	if err != nil {
		return err
	}
	postal, err := req.InvoicePostal.postalPatch()
	if err != nil {
		return err
	}

	ref, err := s.requestedBasket(ctx, session, req.BasketID)
	if err != nil {
		return err
	}
	if err := s.baskets.PersistAddress(ctx, ref, domain.AddressKindInvoice, addr, postal); err != nil {
		return err
	}
	return s.changed(ctx, w, ref)
}

func (s *Server) persistDeliveryInfo(ctx context.Context, w http.ResponseWriter, r *http.Request, session domain.SessionID) error {
	var req persistDeliveryRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	addr, err := req.DeliveryAddress.addressPatch()
	if err != nil {
		return err
	}
	postal, err := req.DeliveryPostal.postalPatch()
	if err != nil {
		return err
	}

	ref, err := s.requestedBasket(ctx, session, req.BasketID)
	if err != nil {
		return err
	}
	if err := s.baskets.PersistAddress(ctx, ref, domain.AddressKindDelivery, addr, postal); err != nil {
		return err
	}
	if err := s.baskets.PersistDeliveryMeta(ctx, ref, domain.DeliveryMeta{
		HasCustomDeliveryPlace: req.HasCustomDeliveryPlace,
		DeliveryPlaceID:        strings.TrimSpace(req.DeliveryPlaceID),
		DeliveryType:           strings.TrimSpace(req.DeliveryType),
	}); err != nil {
		return err
	}
	return s.changed(ctx, w, ref)
}

func (s *Server) mergeGraphs(ctx context.Context, w http.ResponseWriter, _ *http.Request, session domain.SessionID) error {
	if _, err := s.merger.MergeSessionBasketIntoAccount(ctx, session); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, succeedResponse{Succeed: true})
	return nil
}

func (s *Server) confirm(ctx context.Context, w http.ResponseWriter, r *http.Request, session domain.SessionID) error {
	graph, err := s.graphs.ResolveOwnerGraph(ctx, session)
	if err != nil {
		return err
	}
	if _, err := s.baskets.ConfirmBasket(ctx, graph, r.PathValue("basketId")); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, doneResponse{Done: true})
	return nil
}

func (s *Server) activeBasket(ctx context.Context, session domain.SessionID) (domain.BasketRef, error) {
	graph, err := s.graphs.ResolveOwnerGraph(ctx, session)
	if err != nil {
		return domain.BasketRef{}, err
	}
	return s.baskets.EnsureActiveBasket(ctx, graph)
}

// requestedBasket возвращает активную корзину и проверяет, что клиент изменяет именно её.
func (s *Server) requestedBasket(ctx context.Context, session domain.SessionID, basketID string) (domain.BasketRef, error) {
	ref, err := s.activeBasket(ctx, session)
	if err != nil {
		return domain.BasketRef{}, err
	}
	if strings.TrimSpace(basketID) != ref.ID {
		return domain.BasketRef{}, fmt.Errorf("%w: got %q", domain.ErrBasketMismatch, basketID)
	}
	return ref, nil
}

func (s *Server) changed(ctx context.Context, w http.ResponseWriter, ref domain.BasketRef) error {
	if err := s.baskets.RegisterBasketChanged(ctx, ref); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, succeedResponse{Succeed: true})
	return nil
}

func (s *Server) writeBasket(ctx context.Context, w http.ResponseWriter, ref domain.BasketRef) error {
	doc, err := s.projector.Project(ctx, ref)
	if err != nil {
		return err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal basket document: %w", err)
	}
	w.Header().Set("Content-Type", contentTypeJSONAPI)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
	return nil
}

type succeedResponse struct {
	Succeed bool `json:"succeed"`
}

type doneResponse struct {
	Done bool `json:"done"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", domain.ErrMalformedRequest)
		}
		return fmt.Errorf("%w: %v", domain.ErrMalformedRequest, err)
	}
	return nil
}
