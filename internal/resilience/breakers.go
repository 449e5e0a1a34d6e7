package resilience

import (
	"sync"
	"time"
)

// Breakers holds one Breaker per remote agent, created on first use.
type Breakers struct {
	mu          sync.Mutex
	set         map[string]*Breaker
	maxFailures int
	timeout     time.Duration
	counts      func(error) bool
	now         func() time.Time
}

// NewBreakers creates a keyed breaker set. counts selects which errors trip
// a breaker; nil counts every error.
func NewBreakers(maxFailures int, timeout time.Duration, counts func(error) bool) *Breakers {
	return &Breakers{
		set:         make(map[string]*Breaker),
		maxFailures: maxFailures,
		timeout:     timeout,
		counts:      counts,
		now:         time.Now,
	}
}

// For returns the breaker guarding key.
func (s *Breakers) For(key string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.set[key]
	if !ok {
		b = NewBreaker(s.maxFailures, s.timeout)
		b.counts = s.counts
		b.now = s.now
		s.set[key] = b
	}
	return b
}

// States reports the state of every breaker created so far.
func (s *Breakers) States() map[string]State {
	s.mu.Lock()
	keys := make(map[string]*Breaker, len(s.set))
	for k, b := range s.set {
		keys[k] = b
	}
	s.mu.Unlock()

	out := make(map[string]State, len(keys))
	for k, b := range keys {
		out[k] = b.State()
	}
	return out
}
