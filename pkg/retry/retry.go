// Package retry repeats transport calls with jittered exponential backoff.
// An error stops the loop early when it reports IsFatal, which covers the
// coded errors of pkg/errors and anything wrapped with Permanent.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// MaxElapsedTime bounds the whole loop when set.
	MaxElapsedTime time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		MaxElapsedTime:  5 * time.Minute,
	}
}

// Notify is called before every delayed re-attempt. attempt counts the
// calls made so far.
type Notify func(attempt int, err error, next time.Duration)

type fatal interface {
	IsFatal() bool
}

type permanent struct {
	err error
}

func (p *permanent) Error() string { return p.err.Error() }
func (p *permanent) Unwrap() error { return p.err }
func (p *permanent) IsFatal() bool { return true }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanent{err: err}
}

// IsPermanent reports whether any error in err's chain is fatal.
func IsPermanent(err error) bool {
	var f fatal
	return errors.As(err, &f) && f.IsFatal()
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	p = p.withDefaults()
	b := backoff.WithContext(p.exponential(), ctx)
	return backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
}

// Do calls fn until it succeeds, returns a permanent error, the policy is
// exhausted or ctx is done. The last error from fn is returned unwrapped.
func Do(ctx context.Context, policy Policy, fn func() error) error {
	return DoNotify(ctx, policy, fn, nil)
}

func DoNotify(ctx context.Context, policy Policy, fn func() error, notify Notify) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := fn()
		if err != nil && IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	var onRetry backoff.Notify
	if notify != nil {
		onRetry = func(err error, next time.Duration) {
			notify(attempt, err, next)
		}
	}

	err := backoff.RetryNotify(operation, policy.backOff(ctx), onRetry)

	var stop *backoff.PermanentError
	if errors.As(err, &stop) {
		return stop.Err
	}
	return err
}
