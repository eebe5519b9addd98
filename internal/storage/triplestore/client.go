// Package triplestore — клиент SPARQL 1.1 Protocol для внешнего triple store.
package triplestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/basket/internal/domain"
	"github.com/vladislavdragonenkov/basket/internal/sparql"
)

const (
	headerSudo    = "mu-auth-sudo"
	headerSession = "mu-session-id"
	headerCallID  = "mu-call-id"

	contentTypeForm = "application/x-www-form-urlencoded"

	// maxErrorBody ограничивает фрагмент тела ответа, попадающий в ошибку.
	maxErrorBody = 512
)

// ErrEndpointRequired возвращается, если не задан адрес хранилища.
var ErrEndpointRequired = errors.New("triple store endpoint is required")

// Config задаёт параметры подключения к хранилищу.
type Config struct {
	QueryEndpoint string
	// UpdateEndpoint по умолчанию совпадает с QueryEndpoint.
	UpdateEndpoint string
	Timeout        time.Duration
	// Sudo добавляет заголовок mu-auth-sudo: запросы идут в обход авторизации по графам.
	Sudo bool

	BreakerFailures int
	BreakerReset    time.Duration

	// QueryRetry управляет повторами SELECT; нулевое значение означает одну попытку.
	QueryRetry RetryConfig
}

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() Config {
	return Config{
		QueryEndpoint:   "http://database:8890/sparql",
		Timeout:         10 * time.Second,
		Sudo:            true,
		BreakerFailures: 5,
		BreakerReset:    30 * time.Second,
	}
}

// Client реализует sparql.Executor поверх HTTP.
type Client struct {
	queryURL  string
	updateURL string
	sudo      bool
	http      *http.Client
	breaker   *CircuitBreaker
	retry     RetryConfig
	logger    *log.Entry
}

// Option настраивает Client.
type Option func(*Client)

// WithHTTPClient подменяет HTTP-клиент (используется в тестах).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger задаёт logger клиента.
func WithLogger(logger *log.Entry) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient создаёт клиента хранилища.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	queryURL := strings.TrimSpace(cfg.QueryEndpoint)
	if queryURL == "" {
		return nil, ErrEndpointRequired
	}
	if _, err := url.ParseRequestURI(queryURL); err != nil {
		return nil, fmt.Errorf("parse triple store endpoint: %w", err)
	}
	updateURL := strings.TrimSpace(cfg.UpdateEndpoint)
	if updateURL == "" {
		updateURL = queryURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}

	c := &Client{
		queryURL:  queryURL,
		updateURL: updateURL,
		sudo:      cfg.Sudo,
		http:      &http.Client{Timeout: timeout},
		retry:     cfg.QueryRetry,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.WithField("component", "triplestore-client")
	}
	if cfg.BreakerFailures > 0 {
		c.breaker = NewCircuitBreaker(cfg.BreakerFailures, cfg.BreakerReset, c.logger)
	}
	return c, nil
}

// Query выполняет SELECT и разбирает ответ application/sparql-results+json.
func (c *Client) Query(ctx context.Context, q sparql.Select) (sparql.Results, error) {
	var res sparql.Results
	text := q.Render()
	err := retry(ctx, c.retry, "query", c.logger, func() error {
		return c.do(ctx, "query", func() error {
			body, err := c.post(ctx, c.queryURL, "query", text, sparql.ContentTypeResults)
			if err != nil {
				return err
			}
			defer body.Close()

			res, err = sparql.DecodeResults(body)
			if err != nil {
				return fmt.Errorf("%w: %v", domain.ErrUpstream, err)
			}
			return nil
		})
	})
	return res, err
}

// Update отправляет все операции одним запросом.
func (c *Client) Update(ctx context.Context, ops ...sparql.Update) error {
	for i, op := range ops {
		if err := op.Validate(); err != nil {
			return fmt.Errorf("update #%d: %w", i, err)
		}
	}
	if len(ops) == 0 {
		return sparql.ErrEmptyUpdate
	}

	return c.do(ctx, "update", func() error {
		body, err := c.post(ctx, c.updateURL, "update", sparql.RenderUpdates(ops...), "application/json")
		if err != nil {
			return err
		}
		_, _ = io.Copy(io.Discard, body)
		return body.Close()
	})
}

func (c *Client) do(ctx context.Context, operation string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.breaker == nil {
		return fn()
	}
	return c.breaker.Execute(operation, fn)
}

func (c *Client) post(ctx context.Context, endpoint, param, text, accept string) (io.ReadCloser, error) {
	form := url.Values{param: {text}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", param, err)
	}
	req.Header.Set("Content-Type", contentTypeForm)
	req.Header.Set("Accept", accept)
	if c.sudo {
		req.Header.Set(headerSudo, "true")
	}
	if info, ok := RequestInfoFrom(ctx); ok {
		if info.SessionID != "" {
			req.Header.Set(headerSession, info.SessionID)
		}
		if info.CallID != "" {
			req.Header.Set(headerCallID, info.CallID)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s request: %v", domain.ErrUpstream, param, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()

		c.logger.WithFields(log.Fields{
			"operation": param,
			"status":    resp.StatusCode,
		}).Warn("triple store rejected request")
		return nil, fmt.Errorf("%w: %s returned %d: %s", domain.ErrUpstream, param, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return resp.Body, nil
}

var _ sparql.Executor = (*Client)(nil)

// BreakerState возвращает состояние circuit breaker; CircuitClosed, если breaker выключен.
func (c *Client) BreakerState() CircuitState {
	if c.breaker == nil {
		return CircuitClosed
	}
	return c.breaker.State()
}

// pingQuery — минимальный запрос для проверки доступности хранилища.
var pingQuery = sparql.Select{
	Vars:  []string{"s"},
	Where: []sparql.Pattern{sparql.T(sparql.Var("s"), sparql.Var("p"), sparql.Var("o"))},
	Limit: 1,
}

// Ping выполняет пробный SELECT через exec.
func Ping(ctx context.Context, exec sparql.Executor) error {
	if _, err := exec.Query(ctx, pingQuery); err != nil {
		return fmt.Errorf("triple store ping: %w", err)
	}
	return nil
}
