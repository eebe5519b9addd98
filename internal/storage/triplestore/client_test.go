package triplestore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/basket/internal/domain"
	"github.com/vladislavdragonenkov/basket/internal/sparql"
)

var (
	g     = sparql.IRI("http://mu.semte.ch/graphs/s1")
	uuid  = sparql.IRI("http://mu.semte.ch/vocabularies/core/uuid")
	thing = sparql.IRI("http://example.org/thing")
)

type captured struct {
	method      string
	contentType string
	accept      string
	sudo        string
	session     string
	callID      string
	form        url.Values
}

func recordingServer(t *testing.T, status int, body string) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		form, err := url.ParseQuery(string(raw))
		if err != nil {
			t.Errorf("parse form: %v", err)
		}
		*got = captured{
			method:      r.Method,
			contentType: r.Header.Get("Content-Type"),
			accept:      r.Header.Get("Accept"),
			sudo:        r.Header.Get(headerSudo),
			session:     r.Header.Get(headerSession),
			callID:      r.Header.Get(headerCallID),
			form:        form,
		}
		w.Header().Set("Content-Type", sparql.ContentTypeResults)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func newTestClient(t *testing.T, endpoint string, mutate func(*Config)) *Client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.QueryEndpoint = endpoint
	cfg.Timeout = 2 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewClient(cfg)
	require.NoError(t, err)
	return c
}

func TestClient_Query(t *testing.T) {
	srv, got := recordingServer(t, http.StatusOK, `{
		"head": {"vars": ["s", "id"]},
		"results": {"bindings": [
			{"s": {"type": "uri", "value": "http://example.org/thing"},
			 "id": {"type": "literal", "value": "t1"}}
		]}
	}`)
	c := newTestClient(t, srv.URL, nil)

	ctx := WithRequestInfo(context.Background(), RequestInfo{SessionID: "http://sessions/1", CallID: "42"})
	res, err := c.Query(ctx, sparql.Select{
		Vars:  []string{"s", "id"},
		Where: []sparql.Pattern{sparql.InGraph(g, sparql.T(sparql.Var("s"), uuid, sparql.Var("id")))},
	})
	require.NoError(t, err)
	require.Len(t, res.Solutions, 1)
	assert.Equal(t, thing, res.Solutions[0]["s"])
	assert.Equal(t, "t1", res.Solutions[0].Value("id"))

	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, contentTypeForm, got.contentType)
	assert.Equal(t, sparql.ContentTypeResults, got.accept)
	assert.Equal(t, "true", got.sudo)
	assert.Equal(t, "http://sessions/1", got.session)
	assert.Equal(t, "42", got.callID)
	assert.Contains(t, got.form.Get("query"), "SELECT ?s ?id WHERE {")
	assert.Contains(t, got.form.Get("query"), "GRAPH <http://mu.semte.ch/graphs/s1>")
}

func TestClient_UpdateSendsAllOperationsInOneRequest(t *testing.T) {
	var calls atomic.Int32
	var text string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		text = r.PostForm.Get("update")
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv.URL, func(cfg *Config) { cfg.Sudo = false })

	err := c.Update(context.Background(),
		sparql.Update{Insert: sparql.Quads(g, sparql.T(thing, uuid, sparql.String("t1")))},
		sparql.Update{
			Delete: sparql.Quads(g, sparql.T(thing, uuid, sparql.Var("old"))),
			Where:  []sparql.Pattern{sparql.InGraph(g, sparql.T(thing, uuid, sparql.Var("old")))},
		},
	)
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())
	assert.Contains(t, text, "INSERT DATA {")
	assert.Contains(t, text, " ;\nDELETE {")
}

func TestClient_UpdateValidatesBeforeSending(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	t.Cleanup(srv.Close)
	c := newTestClient(t, srv.URL, nil)

	err := c.Update(context.Background(), sparql.Update{
		Insert: sparql.Quads(g, sparql.T(sparql.Var("s"), uuid, sparql.String("x"))),
	})
	require.ErrorIs(t, err, sparql.ErrVarInData)
	assert.Zero(t, calls.Load())

	assert.ErrorIs(t, c.Update(context.Background()), sparql.ErrEmptyUpdate)
}

func TestClient_UpstreamErrors(t *testing.T) {
	t.Run("non 2xx", func(t *testing.T) {
		srv, _ := recordingServer(t, http.StatusInternalServerError, "Virtuoso 37000 Error SP030")
		c := newTestClient(t, srv.URL, nil)

		_, err := c.Query(context.Background(), sparql.Select{})
		require.ErrorIs(t, err, domain.ErrUpstream)
		assert.Contains(t, err.Error(), "500")
		assert.Contains(t, err.Error(), "SP030")
	})

	t.Run("malformed body", func(t *testing.T) {
		srv, _ := recordingServer(t, http.StatusOK, "<html>")
		c := newTestClient(t, srv.URL, nil)

		_, err := c.Query(context.Background(), sparql.Select{})
		assert.True(t, domain.IsUpstream(err), "got %v", err)
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		endpoint := srv.URL
		srv.Close()
		c := newTestClient(t, endpoint, nil)

		err := c.Update(context.Background(), sparql.Update{Insert: sparql.Quads(g, sparql.T(thing, uuid, sparql.String("x")))})
		assert.ErrorIs(t, err, domain.ErrUpstream)
	})
}

func TestClient_CircuitBreakerFailsFast(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.BreakerFailures = 2
		cfg.BreakerReset = time.Hour
	})

	for i := 0; i < 2; i++ {
		_, err := c.Query(context.Background(), sparql.Select{})
		require.ErrorIs(t, err, domain.ErrUpstream)
	}
	_, err := c.Query(context.Background(), sparql.Select{})
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.EqualValues(t, 2, calls.Load())
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{})
	assert.ErrorIs(t, err, ErrEndpointRequired)

	_, err = NewClient(Config{QueryEndpoint: "not a url"})
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	srv, got := recordingServer(t, http.StatusOK, `{"head":{"vars":["s"]},"results":{"bindings":[]}}`)
	c := newTestClient(t, srv.URL, nil)

	require.NoError(t, Ping(context.Background(), c))
	assert.Contains(t, got.form.Get("query"), "LIMIT 1")
	assert.Equal(t, CircuitClosed, c.BreakerState())

	down := httptest.NewServer(http.NotFoundHandler())
	endpoint := down.URL
	down.Close()
	c = newTestClient(t, endpoint, func(cfg *Config) { cfg.BreakerFailures = 1 })

	err := Ping(context.Background(), c)
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.Equal(t, CircuitOpen, c.BreakerState())
}

func TestClient_QueryRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", sparql.ContentTypeResults)
		_, _ = io.WriteString(w, `{"head":{"vars":["s"]},"results":{"bindings":[]}}`)
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.BreakerFailures = 0
		cfg.QueryRetry = RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2}
	})

	_, err := c.Query(context.Background(), sparql.Select{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load())
}

func TestClient_UpdateIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.QueryRetry = RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond}
	})

	err := c.Update(context.Background(), sparql.Update{Insert: sparql.Quads(g, sparql.T(thing, uuid, sparql.String("x")))})
	require.ErrorIs(t, err, domain.ErrUpstream)
	assert.EqualValues(t, 1, calls.Load())
}

func TestRetry_StopsOnNonRetryableErrors(t *testing.T) {
	rc := RetryConfig{MaxAttempts: 4, InitialDelay: time.Millisecond}
	logger := newTestClient(t, "http://localhost/sparql", nil).logger

	for _, stop := range []error{ErrCircuitOpen, context.Canceled, sparql.ErrEmptyUpdate} {
		attempts := 0
		err := retry(context.Background(), rc, "query", logger, func() error {
			attempts++
			return stop
		})
		assert.ErrorIs(t, err, stop)
		assert.Equal(t, 1, attempts, "error %v must not be retried", stop)
	}

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := retry(ctx, RetryConfig{MaxAttempts: 4, InitialDelay: time.Hour}, "query", logger, func() error {
		attempts++
		cancel()
		return domain.ErrUpstream
	})
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.Equal(t, 1, attempts)
}

func TestRetryConfig_Normalized(t *testing.T) {
	rc := RetryConfig{}.normalized()
	assert.Equal(t, 1, rc.MaxAttempts)
	assert.Equal(t, 1.0, rc.BackoffFactor)
	assert.Equal(t, DefaultRetryConfig().MaxDelay, rc.MaxDelay)
}
