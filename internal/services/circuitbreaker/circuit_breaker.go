package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"letknow-gateway/internal/config"
)

var (
	ErrOpen            = errors.New("circuit breaker is open")
	ErrHalfOpenLimited = errors.New("circuit breaker is half-open and at capacity")
)

// IsRejected reports whether err came from the breaker refusing a call.
func IsRejected(err error) bool {
	return errors.Is(err, ErrOpen) || errors.Is(err, ErrHalfOpenLimited)
}

// State represents the circuit breaker state
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

// Options tune a Breaker beyond its thresholds.
type Options struct {
	// IsFailure decides whether an error counts against the breaker. Nil counts every non-nil error.
	IsFailure func(err error) bool
	// OnStateChange is invoked with the breaker lock released.
	OnStateChange func(name string, from, to State)
	Now           func() time.Time
}

// Breaker guards calls to a single dependency.
type Breaker struct {
	name     string
	config   config.CircuitBreakerConfig
	opts     Options
	mu       sync.Mutex
	state    State
	fails    int
	succ     int
	trials   int
	openedAt time.Time
}

func New(name string, cfg config.CircuitBreakerConfig, opts Options) *Breaker {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.IsFailure == nil {
		opts.IsFailure = func(err error) bool { return err != nil }
	}
	return &Breaker{
		name:   name,
		config: cfg,
		opts:   opts,
		state:  StateClosed,
	}
}

// Execute runs fn unless the breaker rejects the call.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.acquire(); err != nil {
		return err
	}

	err := fn(ctx)
	b.record(err)
	return err
}

func (b *Breaker) acquire() error {
	b.mu.Lock()
	var from, to State
	changed := false

	if b.state == StateOpen {
		if b.opts.Now().Sub(b.openedAt) < b.config.OpenTimeout {
			b.mu.Unlock()
			return ErrOpen
		}
		from, to, changed = b.state, StateHalfOpen, true
		b.state = StateHalfOpen
		b.trials = 0
		b.succ = 0
	}

	if b.state == StateHalfOpen {
		if b.trials >= b.config.MaxRequestsHalfOpen {
			b.mu.Unlock()
			b.notify(changed, from, to)
			return ErrHalfOpenLimited
		}
		b.trials++
	}
	b.mu.Unlock()

	b.notify(changed, from, to)
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	from := b.state

	if b.opts.IsFailure(err) {
		b.fails++
		switch b.state {
		case StateClosed:
			if b.fails >= b.config.FailureThreshold {
				b.trip()
			}
		case StateHalfOpen:
			b.trip()
		}
	} else {
		b.fails = 0
		if b.state == StateHalfOpen {
			b.succ++
			b.trials--
			if b.succ >= b.config.SuccessThreshold {
				b.state = StateClosed
				b.succ = 0
				b.trials = 0
			}
		}
	}

	to := b.state
	b.mu.Unlock()

	b.notify(from != to, from, to)
}

// trip opens the breaker. Caller holds mu.
func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.opts.Now()
	b.succ = 0
	b.trials = 0
}

func (b *Breaker) notify(changed bool, from, to State) {
	if changed && b.opts.OnStateChange != nil {
		b.opts.OnStateChange(b.name, from, to)
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Name() string {
	return b.name
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.fails = 0
	b.succ = 0
	b.trials = 0
	b.mu.Unlock()

	b.notify(from != StateClosed, from, StateClosed)
}
