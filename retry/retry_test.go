package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caio-sobreiro/pdfpacs/errors"
)

type recordingSleeper struct {
	waits []time.Duration
}

func (s *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

func newTestRunner(p Policy) (*Runner, *recordingSleeper) {
	s := &recordingSleeper{}
	r := NewRunner(p)
	r.Sleep = s.sleep
	return r, s
}

var (
	transient = errors.NewStatusError("store", 503, "")
	permanent = errors.NewStatusError("store", 400, "")
)

func TestPolicyDelay(t *testing.T) {
	p := Policy{Base: 2, MaxDelay: 10 * time.Second}
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
	assert.Equal(t, 8*time.Second, p.Delay(3))
	assert.Equal(t, 10*time.Second, p.Delay(4))
	assert.Equal(t, 10*time.Second, p.Delay(5000))

	assert.Equal(t, 1500*time.Millisecond, DefaultPolicy().Delay(1))
	assert.Equal(t, 2250*time.Millisecond, DefaultPolicy().Delay(2))
}

func TestDoRetriesTransientUntilSuccess(t *testing.T) {
	tests := []struct {
		name        string
		maxAttempts int
		failures    int
		wantRetries int
		wantErr     bool
	}{
		{name: "immediate success", maxAttempts: 3, failures: 0, wantRetries: 0},
		{name: "one failure", maxAttempts: 3, failures: 1, wantRetries: 1},
		{name: "two failures", maxAttempts: 3, failures: 2, wantRetries: 2},
		{name: "exhausted", maxAttempts: 3, failures: 5, wantRetries: 2, wantErr: true},
		{name: "single attempt", maxAttempts: 1, failures: 1, wantRetries: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, s := newTestRunner(Policy{MaxAttempts: tt.maxAttempts, Base: 2})

			calls := 0
			state, err := r.Do(context.Background(), func(context.Context, int) error {
				calls++
				if calls <= tt.failures {
					return transient
				}
				return nil
			})

			assert.Equal(t, tt.wantRetries, state.Retries())
			assert.Equal(t, tt.wantRetries+1, calls)
			assert.Len(t, s.waits, tt.wantRetries)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errors.ErrTransient))
				assert.True(t, state.Exhausted())
				assert.Equal(t, errors.ClassServer, state.LastClass)
			} else {
				require.NoError(t, err)
				assert.False(t, state.Exhausted())
			}
		})
	}
}

func TestDoStopsOnPermanent(t *testing.T) {
	r, s := newTestRunner(Policy{MaxAttempts: 5, Base: 2})

	calls := 0
	state, err := r.Do(context.Background(), func(context.Context, int) error {
		calls++
		return permanent
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, state.Retries())
	assert.Empty(t, s.waits)
	assert.Equal(t, errors.ClassRejected, state.LastClass)
	assert.False(t, state.Exhausted())
	assert.False(t, errors.Is(err, errors.ErrTransient))
}

func TestDoWaitsFollowPolicy(t *testing.T) {
	r, s := newTestRunner(Policy{MaxAttempts: 4, Base: 2})

	var seen []State
	r.OnRetry = func(st State) { seen = append(seen, st) }

	_, err := r.Do(context.Background(), func(context.Context, int) error { return transient })
	require.Error(t, err)

	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, s.waits)
	require.Len(t, seen, 3)
	assert.Equal(t, 1, seen[0].Attempt)
	assert.Equal(t, 2*time.Second, seen[0].NextDelay)
	assert.Equal(t, errors.ClassServer, seen[2].LastClass)
}

func TestDoJitterStaysWithinDelay(t *testing.T) {
	r, s := newTestRunner(Policy{MaxAttempts: 3, Base: 2, Jitter: true})
	r.jitter = func(d time.Duration) time.Duration { return d / 2 }

	_, err := r.Do(context.Background(), func(context.Context, int) error { return transient })
	require.Error(t, err)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, s.waits)

	wall := NewRunner(Policy{Jitter: true})
	for i := 0; i < 50; i++ {
		d := wall.applyJitter(time.Second)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}
}

func TestDoInterruptedWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner(Policy{MaxAttempts: 3, Base: 2})
	calls := 0
	_, err := r.Do(ctx, func(context.Context, int) error {
		calls++
		return transient
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, SleepContext(context.Background(), 0))
	assert.NoError(t, SleepContext(context.Background(), time.Millisecond))
}
