package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned when a source is skipped because it failed too
// many runs in a row.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// BreakerState is the state of one source's breaker.
type BreakerState int

const (
	// BreakerClosed lets calls through.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects calls until the cooldown passes.
	BreakerOpen
	// BreakerHalfOpen lets one probe through after the cooldown.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker trips after Threshold consecutive failures and stays open for
// Cooldown. The first call after the cooldown is a probe: success closes
// the breaker, failure reopens it.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
}

// NewBreaker creates a closed breaker. Non-positive arguments select 5
// failures and a 30 second cooldown.
func NewBreaker(name string, threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{name: name, threshold: threshold, cooldown: cooldown, now: time.Now}
}

// Allow returns ErrCircuitOpen while the breaker is open.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen {
		if b.now().Sub(b.openedAt) < b.cooldown {
			return eris.Wrapf(ErrCircuitOpen, "breaker %s", b.name)
		}
		b.setState(BreakerHalfOpen)
	}
	return nil
}

// Record feeds the outcome of an allowed call back into the breaker.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0
		if b.state != BreakerClosed {
			b.setState(BreakerClosed)
		}
		return
	}

	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.threshold {
		b.openedAt = b.now()
		b.setState(BreakerOpen)
	}
}

// State returns the current state, reporting an expired open breaker as
// half-open.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return BreakerHalfOpen
	}
	return b.state
}

func (b *Breaker) setState(to BreakerState) {
	if b.state == to {
		return
	}
	zap.L().Info("resilience: breaker state change",
		zap.String("breaker", b.name),
		zap.Stringer("from", b.state),
		zap.Stringer("to", to),
	)
	b.state = to
}

// Breakers holds one Breaker per source name, created on first use.
type Breakers struct {
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewBreakers creates an empty registry whose breakers share one setting.
func NewBreakers(threshold int, cooldown time.Duration) *Breakers {
	return &Breakers{threshold: threshold, cooldown: cooldown, breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for name.
func (r *Breakers) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[name]
	if !ok {
		b = NewBreaker(name, r.threshold, r.cooldown)
		r.breakers[name] = b
	}
	return b
}

// States returns a snapshot of every breaker's state.
func (r *Breakers) States() map[string]BreakerState {
	r.mu.Lock()
	list := make(map[string]*Breaker, len(r.breakers))
	for name, b := range r.breakers {
		list[name] = b
	}
	r.mu.Unlock()

	out := make(map[string]BreakerState, len(list))
	for name, b := range list {
		out[name] = b.State()
	}
	return out
}
