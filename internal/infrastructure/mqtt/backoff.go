package mqtt

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Backoff defaults.
const (
	defaultBackoffInitial    = 1 * time.Second
	defaultBackoffMax        = 60 * time.Second
	defaultBackoffMultiplier = 2.0
	defaultBackoffJitter     = 0.2
)

// BackoffConfig configures reconnect delays.
type BackoffConfig struct {
	// Initial is the delay before the second connection attempt.
	Initial time.Duration

	// Max caps every delay.
	Max time.Duration

	// Multiplier grows the delay per failed attempt. Values below 1 are
	// treated as 1.
	Multiplier float64

	// Jitter adds up to this fraction of the delay at random, e.g. 0.2
	// adds between 0% and 20%.
	Jitter float64
}

// Backoff produces capped exponential reconnect delays with jitter.
//
// Delays never decrease between resets: jitter is applied before the cap
// and the result is floored at the previous delay.
//
// Thread Safety: all methods are safe for concurrent use.
type Backoff struct {
	mu     sync.Mutex
	cfg    BackoffConfig
	random func() float64

	attempt int
	prev    time.Duration
}

// NewBackoff returns a Backoff with zero fields of cfg set to defaults.
func NewBackoff(cfg BackoffConfig) *Backoff {
	if cfg.Initial <= 0 {
		cfg.Initial = defaultBackoffInitial
	}
	if cfg.Max <= 0 {
		cfg.Max = defaultBackoffMax
	}
	if cfg.Max < cfg.Initial {
		cfg.Max = cfg.Initial
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	return &Backoff{cfg: cfg, random: rand.Float64}
}

// Next returns the delay to wait before the next attempt.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	grow := math.Pow(b.cfg.Multiplier, float64(b.attempt))
	b.attempt++

	d := float64(b.cfg.Initial) * grow * (1 + b.cfg.Jitter*b.random())
	delay := b.cfg.Max
	if d < float64(b.cfg.Max) {
		delay = time.Duration(d)
	}
	if delay < b.prev {
		delay = b.prev
	}
	b.prev = delay
	return delay
}

// Reset starts the sequence over. Called after a successful connection.
func (b *Backoff) Reset() {
	b.mu.Lock()
	b.attempt = 0
	b.prev = 0
	b.mu.Unlock()
}

// Attempt returns how many delays were handed out since the last reset.
func (b *Backoff) Attempt() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempt
}
