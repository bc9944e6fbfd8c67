// Package retry provides the redelivery spacing used when a deferred send
// job fails. The send pipeline itself never retries; a failed SMS stays
// resendable and the queue redelivers its job after a backoff delay.
package retry

import (
	"math"
	"math/rand"
	"time"
)

// Backoff computes exponential redelivery delays with jitter.
type Backoff struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Factor    float64
	Jitter    float64
}

// DefaultBackoff spaces job redeliveries from seconds up to a few minutes.
func DefaultBackoff() *Backoff {
	return &Backoff{
		BaseDelay: 2 * time.Second,
		MaxDelay:  5 * time.Minute,
		Factor:    2.0,
		Jitter:    0.2,
	}
}

// NextDelay returns the delay before redelivery number attempt (0-based).
func (b *Backoff) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(b.BaseDelay) * math.Pow(b.Factor, float64(attempt))
	if delay > float64(b.MaxDelay) {
		delay = float64(b.MaxDelay)
	}

	if b.Jitter > 0 {
		jitterRange := delay * b.Jitter
		delay += (rand.Float64() * 2 * jitterRange) - jitterRange
	}

	if delay < float64(100*time.Millisecond) {
		delay = float64(100 * time.Millisecond)
	}

	return time.Duration(delay)
}
