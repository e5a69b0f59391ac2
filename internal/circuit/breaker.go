// Package circuit implements a consecutive-failure circuit breaker for
// outbound data-source calls (PriceSource/NewsSource/SocialSource),
// adapted from the teacher's internal/net/circuit.Breaker/Manager with
// the same three-state machine, now returning errkind-tagged errors.
package circuit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sawpanic/equityrun/internal/errkind"
)

// State is the breaker's current disposition.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes the breaker's thresholds and timeouts.
type Config struct {
	FailureThreshold int           // consecutive failures to open
	SuccessThreshold int           // consecutive half-open successes to close
	OpenTimeout      time.Duration // time in Open before trying Half-Open
	RequestTimeout   time.Duration // per-call deadline (spec: 10s per-source default)
}

// DefaultConfig matches spec §5's per-source timeout default.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5, // mirrors the scanner quarantine threshold, §7
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
		RequestTimeout:   10 * time.Second,
	}
}

// Breaker guards a single named outbound dependency.
type Breaker struct {
	mu              sync.RWMutex
	config          Config
	state           State
	failures        int
	successes       int
	lastFailureTime time.Time
	lastStateChange time.Time
	totalRequests   int64
	totalSuccesses  int64
	totalFailures   int64
	totalTimeouts   int64
}

func NewBreaker(config Config) *Breaker {
	return &Breaker{config: config, state: StateClosed, lastStateChange: time.Now()}
}

// Call executes fn if the breaker allows it, enforcing RequestTimeout and
// feeding the outcome back into the state machine.
func (b *Breaker) Call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if !b.allowRequest() {
		return errkind.New(errkind.Network, op, fmt.Errorf("circuit open"))
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, b.config.RequestTimeout)
	defer cancel()

	b.mu.Lock()
	b.totalRequests++
	b.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- fn(timeoutCtx) }()

	select {
	case err := <-done:
		if err != nil {
			b.onFailure()
			return err
		}
		b.onSuccess()
		return nil
	case <-timeoutCtx.Done():
		b.onTimeout()
		return errkind.New(errkind.Network, op, timeoutCtx.Err())
	}
}

func (b *Breaker) allowRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(b.lastFailureTime) > b.config.OpenTimeout {
			b.setState(StateHalfOpen)
			return true
		}
		return false
	case StateHalfOpen:
		return true
	default:
		return false
	}
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.totalSuccesses++

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.setState(StateClosed)
			b.failures, b.successes = 0, 0
		}
	}
}

func (b *Breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.totalFailures++
	b.lastFailureTime = time.Now()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.setState(StateOpen)
		}
	case StateHalfOpen:
		b.setState(StateOpen)
		b.successes = 0
	}
}

func (b *Breaker) onTimeout() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.totalTimeouts++
	b.totalFailures++
	b.lastFailureTime = time.Now()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.setState(StateOpen)
		}
	case StateHalfOpen:
		b.setState(StateOpen)
		b.successes = 0
	}
}

func (b *Breaker) setState(s State) {
	if b.state != s {
		b.state = s
		b.lastStateChange = time.Now()
		if s == StateHalfOpen {
			b.failures = 0
		}
	}
}

func (b *Breaker) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Stats is a point-in-time snapshot for Health() reporting.
type Stats struct {
	State               State     `json:"state"`
	TotalRequests       int64     `json:"total_requests"`
	TotalFailures       int64     `json:"total_failures"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastFailureTime     time.Time `json:"last_failure_time,omitempty"`
	SuccessRate         float64   `json:"success_rate"`
}

func (b *Breaker) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rate := 1.0
	if b.totalRequests > 0 {
		rate = float64(b.totalSuccesses) / float64(b.totalRequests)
	}
	return Stats{
		State:               b.state,
		TotalRequests:       b.totalRequests,
		TotalFailures:       b.totalFailures,
		ConsecutiveFailures: b.failures,
		LastFailureTime:     b.lastFailureTime,
		SuccessRate:         rate,
	}
}

// Manager owns one Breaker per named source (PriceSource host, news feed
// URL, etc.), mirroring the teacher's Manager.
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	config   Config
}

func NewManager(config Config) *Manager {
	return &Manager{breakers: make(map[string]*Breaker), config: config}
}

func (m *Manager) breaker(source string) *Breaker {
	m.mu.RLock()
	b, ok := m.breakers[source]
	m.mu.RUnlock()
	if ok {
		return b
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.breakers[source]; ok {
		return b
	}
	b = NewBreaker(m.config)
	m.breakers[source] = b
	return b
}

// Call routes through the per-source breaker.
func (m *Manager) Call(ctx context.Context, source, op string, fn func(ctx context.Context) error) error {
	return m.breaker(source).Call(ctx, op, fn)
}

func (m *Manager) Stats() map[string]Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Stats, len(m.breakers))
	for source, b := range m.breakers {
		out[source] = b.Stats()
	}
	return out
}
