// Package retry runs registry operations under an exponential backoff
// policy. Only failures whose errors.Class is retryable are attempted again.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/caio-sobreiro/pdfpacs/errors"
)

// Defaults
const (
	DefaultMaxAttempts = 3
	DefaultBase        = 1.5
	DefaultMaxDelay    = 60 * time.Second
)

// Policy bounds the attempts of one operation. MaxAttempts counts every
// attempt, the first one included.
type Policy struct {
	MaxAttempts int
	Base        float64
	Jitter      bool
	MaxDelay    time.Duration
}

// DefaultPolicy returns the policy used when nothing is configured
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		Base:        DefaultBase,
		MaxDelay:    DefaultMaxDelay,
	}
}

// Delay returns the wait before retry n (1-based): Base^n seconds, capped
// at MaxDelay. Jitter is applied by the Runner.
func (p Policy) Delay(n int) time.Duration {
	seconds := math.Pow(p.Base, float64(n))
	d := time.Duration(seconds * float64(time.Second))
	if p.MaxDelay > 0 && (d > p.MaxDelay || d < 0 || math.IsInf(seconds, 0)) {
		return p.MaxDelay
	}
	return d
}

// State is the retry state of one operation
type State struct {
	Attempt   int
	NextDelay time.Duration
	LastClass errors.Class
	LastErr   error
}

// Retries is the number of attempts after the first
func (s State) Retries() int {
	if s.Attempt <= 1 {
		return 0
	}
	return s.Attempt - 1
}

// Exhausted reports whether the operation stopped on a retryable failure
// because no attempts were left
func (s State) Exhausted() bool {
	return s.LastErr != nil && s.LastClass.Retryable()
}

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the wall-clock Sleeper
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Runner executes operations under a Policy
type Runner struct {
	Policy   Policy
	Sleep    Sleeper
	Classify func(error) errors.Class
	// OnRetry is called before each wait with the state of the failed attempt
	OnRetry func(State)
	// jitter returns a value in [0, d]
	jitter func(d time.Duration) time.Duration
}

// NewRunner returns a Runner with the wall-clock sleeper and errors.Classify
func NewRunner(p Policy) *Runner {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	return &Runner{
		Policy:   p,
		Sleep:    SleepContext,
		Classify: errors.Classify,
	}
}

func (r *Runner) applyJitter(d time.Duration) time.Duration {
	if !r.Policy.Jitter || d <= 0 {
		return d
	}
	if r.jitter != nil {
		return r.jitter(d)
	}
	return time.Duration(rand.Int64N(int64(d) + 1))
}

// Do calls op until it succeeds, fails with a non-retryable class, or the
// attempts run out. The returned State describes the last attempt; the
// error is the last failure. Exhausted transient failures are marked with
// errors.ErrTransient.
func (r *Runner) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) (State, error) {
	classify := r.Classify
	if classify == nil {
		classify = errors.Classify
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	maxAttempts := r.Policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var state State
	for attempt := 1; ; attempt++ {
		state.Attempt = attempt
		err := op(ctx, attempt)
		if err == nil {
			state.LastErr = nil
			state.LastClass = errors.ClassNone
			state.NextDelay = 0
			return state, nil
		}

		state.LastErr = err
		state.LastClass = classify(err)
		state.NextDelay = 0

		if !state.LastClass.Retryable() {
			return state, err
		}
		if attempt >= maxAttempts {
			return state, errors.Mark(errors.Wrapf(err, "gave up after %d attempts", attempt), errors.ErrTransient)
		}

		state.NextDelay = r.applyJitter(r.Policy.Delay(attempt))
		if r.OnRetry != nil {
			r.OnRetry(state)
		}
		if err := sleep(ctx, state.NextDelay); err != nil {
			return state, errors.Wrap(err, "retry wait interrupted")
		}
	}
}
