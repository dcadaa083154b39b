package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

const defaultInitialInterval = 500 * time.Millisecond

// withDefaults fills the zero fields of p.
func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2.0
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = defaultInitialInterval
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = p.InitialInterval
	}
	return p
}

// exponential is the jittered schedule for p. A zero MaxElapsedTime leaves
// MaxAttempts as the only bound.
func (p Policy) exponential() *backoff.ExponentialBackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.Multiplier = p.Multiplier
	exp.MaxElapsedTime = p.MaxElapsedTime
	exp.Reset()
	return exp
}

// Delays lists the waits between attempts before jitter is applied.
func (p Policy) Delays() []time.Duration {
	p = p.withDefaults()

	delays := make([]time.Duration, 0, p.MaxAttempts-1)
	next := float64(p.InitialInterval)
	for i := 1; i < p.MaxAttempts; i++ {
		d := time.Duration(next)
		if d > p.MaxInterval {
			d = p.MaxInterval
		}
		delays = append(delays, d)
		next *= p.Multiplier
	}
	return delays
}
