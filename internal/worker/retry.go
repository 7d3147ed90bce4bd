package worker

import (
	"math/rand/v2"
	"time"

	"rentals/internal/config"
)

// RetryPolicy spaces out sheet sync attempts. The delay grows by Factor per
// attempt up to Cap; Jitter is the fraction of the delay that is randomised
// so bookings that failed in the same outage come back at different times.
type RetryPolicy struct {
	MaxRetries int
	Base       time.Duration
	Cap        time.Duration
	Factor     float64
	Jitter     float64

	// random returns a value in [0, 1); nil means math/rand.
	random func() float64
}

// NewRetryPolicy builds the policy from the google.retry config section.
func NewRetryPolicy(cfg config.SyncRetryConfig) RetryPolicy {
	p := RetryPolicy{
		MaxRetries: cfg.MaxRetries,
		Base:       cfg.InitialDelay,
		Cap:        cfg.MaxDelay,
		Factor:     cfg.Backoff,
		Jitter:     cfg.Jitter,
	}
	return p.withDefaults()
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = 5
	}
	if p.Base <= 0 {
		p.Base = 2 * time.Second
	}
	if p.Cap <= 0 {
		p.Cap = time.Minute
	}
	if p.Factor < 1 {
		p.Factor = 2
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Jitter > 1 {
		p.Jitter = 1
	}
	return p
}

// Exhausted reports whether a task on its attempt-th failure goes to the dead letter.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= p.MaxRetries
}

// Delay is the wait before retrying after the attempt-th failure (1-based).
// The result never exceeds Cap.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := float64(p.Base)
	for i := 1; i < attempt && delay < float64(p.Cap); i++ {
		delay *= p.Factor
	}
	if delay > float64(p.Cap) {
		delay = float64(p.Cap)
	}

	if p.Jitter > 0 {
		r := rand.Float64
		if p.random != nil {
			r = p.random
		}
		// spread evenly over [delay*(1-jitter), delay]
		delay -= delay * p.Jitter * r()
	}
	if delay < float64(time.Millisecond) {
		return time.Millisecond
	}
	return time.Duration(delay)
}
