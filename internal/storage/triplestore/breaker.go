package triplestore

import (
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/basket/internal/domain"
)

// ErrCircuitOpen: запрос отклонён без обращения к triple store.
var ErrCircuitOpen = fmt.Errorf("%w: circuit breaker is open", domain.ErrUpstream)

type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

var circuitStateNames = [...]string{
	CircuitClosed:   "closed",
	CircuitOpen:     "open",
	CircuitHalfOpen: "half-open",
}

func (s CircuitState) String() string {
	if s < 0 || int(s) >= len(circuitStateNames) {
		return "unknown"
	}
	return circuitStateNames[s]
}

// CircuitBreaker защищает triple store от шквала запросов, пока он недоступен.
//
// После maxFailures подряд ошибок domain.ErrUpstream breaker размыкается.
// Через resetTimeout он пропускает ровно один пробный запрос: успех замыкает цепь,
// ошибка снова размыкает её. Остальные ошибки (валидация, конфликты) не считаются.
type CircuitBreaker struct {
	maxFailures  int
	resetTimeout time.Duration
	now          func() time.Time
	logger       *log.Entry

	mu            sync.Mutex
	state         CircuitState
	failures      int
	openedAt      time.Time
	trialInFlight bool
}

func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, logger *log.Entry) *CircuitBreaker {
	if logger == nil {
		logger = log.WithField("component", "circuit-breaker")
	}
	return &CircuitBreaker{
		maxFailures:  max(maxFailures, 1),
		resetTimeout: resetTimeout,
		now:          time.Now,
		logger:       logger,
	}
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Execute вызывает fn, если цепь замкнута или настало время пробного запроса.
func (cb *CircuitBreaker) Execute(operation string, fn func() error) error {
	trial, err := cb.acquire(operation)
	if err != nil {
		return err
	}
	err = fn()
	cb.release(operation, trial, err)
	return err
}

func (cb *CircuitBreaker) acquire(operation string) (trial bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return false, nil
	case CircuitOpen:
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			return false, ErrCircuitOpen
		}
		cb.transition(operation, CircuitHalfOpen)
	}
	if cb.trialInFlight {
		return false, ErrCircuitOpen
	}
	cb.trialInFlight = true
	return true, nil
}

func (cb *CircuitBreaker) release(operation string, trial bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if trial {
		cb.trialInFlight = false
	}
	if !errors.Is(err, domain.ErrUpstream) {
		cb.failures = 0
		if trial {
			cb.transition(operation, CircuitClosed)
		}
		return
	}

	cb.failures++
	if trial || cb.failures >= cb.maxFailures {
		cb.openedAt = cb.now()
		cb.transition(operation, CircuitOpen)
	}
}

func (cb *CircuitBreaker) transition(operation string, to CircuitState) {
	if cb.state == to {
		return
	}
	cb.logger.WithFields(log.Fields{
		"operation": operation,
		"from":      cb.state.String(),
		"to":        to.String(),
		"failures":  cb.failures,
	}).Warn("circuit breaker state changed")
	cb.state = to
}
