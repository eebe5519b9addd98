// Package basket реализует операции корзины поверх triple store.
//
// Каждая операция получает граф владельца явно и выполняется одним запросом
// (либо проверкой и одним условным обновлением), без состояния в процессе.
package basket

import (
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/basket/internal/domain"
	"github.com/vladislavdragonenkov/basket/internal/metrics"
	"github.com/vladislavdragonenkov/basket/internal/service/outbox"
	"github.com/vladislavdragonenkov/basket/internal/sparql"
	"github.com/vladislavdragonenkov/basket/internal/vocab"
)

// Options задаёт параметры Store.
type Options struct {
	Logger          *log.Entry
	Metrics         *metrics.BasketMetrics
	Events          *outbox.Recorder
	CatalogGraph    string
	StrictOfferings bool
	Clock           func() time.Time
	NewID           func() string
}

// Option настраивает Store.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics включает доменные метрики.
func WithMetrics(m *metrics.BasketMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithEvents включает запись событий корзины в outbox.
func WithEvents(recorder *outbox.Recorder) Option {
	return func(opts *Options) {
		opts.Events = recorder
	}
}

// WithCatalogGraph задаёт граф каталога предложений и мест доставки.
func WithCatalogGraph(iri string) Option {
	return func(opts *Options) {
		opts.CatalogGraph = iri
	}
}

// WithStrictOfferings включает ошибку валидации для предложений вне каталога.
// Без неё строка с неизвестным предложением молча не создаётся.
func WithStrictOfferings(strict bool) Option {
	return func(opts *Options) {
		opts.StrictOfferings = strict
	}
}

// WithClock подменяет источник времени.
func WithClock(clock func() time.Time) Option {
	return func(opts *Options) {
		opts.Clock = clock
	}
}

// WithIDGenerator подменяет генератор идентификаторов ресурсов.
func WithIDGenerator(newID func() string) Option {
	return func(opts *Options) {
		opts.NewID = newID
	}
}

// Store реализует domain.BasketStore.
type Store struct {
	exec            sparql.Executor
	logger          *log.Entry
	metrics         *metrics.BasketMetrics
	events          *outbox.Recorder
	catalog         sparql.Term
	strictOfferings bool
	now             func() time.Time
	newID           func() string
}

// NewStore создаёт хранилище корзин.
func NewStore(exec sparql.Executor, options ...Option) *Store {
	opts := Options{
		CatalogGraph:    vocab.DefaultCatalogGraph,
		StrictOfferings: true,
		Clock:           time.Now,
		NewID:           uuid.NewString,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "basket-store")
	}
	if opts.CatalogGraph == "" {
		opts.CatalogGraph = vocab.DefaultCatalogGraph
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	return &Store{
		exec:            exec,
		logger:          logger,
		metrics:         opts.Metrics,
		events:          opts.Events,
		catalog:         sparql.IRI(opts.CatalogGraph),
		strictOfferings: opts.StrictOfferings,
		now:             func() time.Time { return opts.Clock().UTC() },
		newID:           opts.NewID,
	}
}

// Catalog возвращает граф каталога.
func (s *Store) Catalog() sparql.Term {
	return s.catalog
}

var (
	vBasket   = sparql.Var("basket")
	vID       = sparql.Var("id")
	vChanged  = sparql.Var("changedAt")
	vLine     = sparql.Var("line")
	vAddress  = sparql.Var("address")
	vPostal   = sparql.Var("postal")
	vOffering = sparql.Var("offering")
	vPlace    = sparql.Var("place")
)

// basketByID сопоставляет ?basket с корзиной по её mu:uuid.
func basketByID(id string) []sparql.Pattern {
	return []sparql.Pattern{
		sparql.T(vBasket, vocab.UUID, sparql.String(id)),
		sparql.T(vBasket, vocab.Type, vocab.BasketClass),
	}
}

func graphTerm(g domain.GraphRef) sparql.Term {
	return sparql.IRI(g.IRI)
}

var _ domain.BasketStore = (*Store)(nil)
