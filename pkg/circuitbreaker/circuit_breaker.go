package circuitbreaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State represents the state of a breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Breaker guards calls to an external service. After maxFailures consecutive
// failures it opens and rejects calls until the cooldown elapses, then lets a
// few probe calls through before closing again.
type Breaker struct {
	name             string
	maxFailures      uint32
	cooldown         time.Duration
	halfOpenMaxCalls uint32

	mu              sync.Mutex
	state           State
	failures        uint32
	successes       uint32
	halfOpenCalls   uint32
	lastFailureTime time.Time

	logger *logrus.Logger
}

func New(name string, maxFailures uint32, cooldown time.Duration, logger *logrus.Logger) *Breaker {
	if logger == nil {
		logger = logrus.New()
	}
	return &Breaker{
		name:             name,
		maxFailures:      maxFailures,
		cooldown:         cooldown,
		halfOpenMaxCalls: 3,
		state:            StateClosed,
		logger:           logger,
	}
}

// Execute runs fn if the breaker allows it. An open breaker returns
// *OpenError without calling fn.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.allow() {
		return &OpenError{Name: b.name, State: b.State()}
	}

	err := fn(ctx)
	if err != nil {
		b.onFailure()
		return err
	}

	b.onSuccess()
	return nil
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(b.lastFailureTime) >= b.cooldown {
			b.toHalfOpen()
			return true
		}
		return false
	case StateHalfOpen:
		if b.halfOpenCalls < b.halfOpenMaxCalls {
			b.halfOpenCalls++
			return true
		}
		return false
	default:
		return false
	}
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.successes++
		if b.successes >= b.halfOpenMaxCalls {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
			b.halfOpenCalls = 0
			b.logger.WithFields(logrus.Fields{
				"circuit_breaker": b.name,
				"state":           "CLOSED",
			}).Info("Circuit breaker closed after successful recovery")
		}
		return
	}

	b.failures = 0
}

func (b *Breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailureTime = time.Now()

	if b.state == StateHalfOpen || b.failures >= b.maxFailures {
		b.state = StateOpen
		b.successes = 0
		b.halfOpenCalls = 0
		b.logger.WithFields(logrus.Fields{
			"circuit_breaker": b.name,
			"failures":        b.failures,
			"state":           "OPEN",
		}).Warn("Circuit breaker opened due to failures")
	}
}

func (b *Breaker) toHalfOpen() {
	b.state = StateHalfOpen
	b.halfOpenCalls = 1
	b.successes = 0
	b.logger.WithFields(logrus.Fields{
		"circuit_breaker": b.name,
		"state":           "HALF_OPEN",
	}).Info("Circuit breaker transitioned to half-open")
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && time.Since(b.lastFailureTime) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// OpenError is returned when the breaker rejects a call.
type OpenError struct {
	Name  string
	State State
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is %s", e.Name, e.State)
}

// IsOpenError reports whether err is a breaker rejection.
func IsOpenError(err error) bool {
	_, ok := err.(*OpenError)
	return ok
}
