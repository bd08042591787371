package upload

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/caio-sobreiro/pdfpacs/encapsulate"
	"github.com/caio-sobreiro/pdfpacs/errors"
	"github.com/caio-sobreiro/pdfpacs/identity"
	"github.com/caio-sobreiro/pdfpacs/interfaces"
	"github.com/caio-sobreiro/pdfpacs/logger"
	"github.com/caio-sobreiro/pdfpacs/retry"
)

// scriptedStore fails with errs in order, then succeeds
type scriptedStore struct {
	errs  []error
	calls int
}

func (s *scriptedStore) StoreInstance(_ context.Context, doc *encapsulate.Document) (interfaces.StoredInstance, error) {
	s.calls++
	if s.calls <= len(s.errs) {
		return interfaces.StoredInstance{}, s.errs[s.calls-1]
	}
	return interfaces.StoredInstance{ID: "instance-" + doc.SOPInstanceUID}, nil
}

type sleeps struct{ waits []time.Duration }

func (s *sleeps) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

func newClient(store interfaces.InstanceStore, maxAttempts int) (*Client, *sleeps, *observer.ObservedLogs) {
	s := &sleeps{}
	runner := retry.NewRunner(retry.Policy{MaxAttempts: maxAttempts, Base: 2})
	runner.Sleep = s.sleep
	core, logs := observer.New(zap.DebugLevel)
	return New(store, runner, zap.New(core).Sugar()), s, logs
}

func document(t *testing.T) *encapsulate.Document {
	t.Helper()
	doc, err := encapsulate.New(encapsulate.Options{}).Wrap(&identity.CanonicalIdentity{
		NameParts:    []string{"SOUZA"},
		RegistryName: "SOUZA",
		NaturalName:  "SOUZA",
		StudyDate:    time.Date(2025, 9, 7, 0, 0, 0, 0, time.UTC),
	}, "SOUZA_070925.pdf", []byte("%PDF-1.4\n%%EOF\n"))
	require.NoError(t, err)
	return doc
}

func unavailable() error { return errors.NewStatusError("POST /instances", 503, "") }

func TestRetriesUntilSuccess(t *testing.T) {
	tests := []struct {
		name        string
		failures    int
		maxAttempts int
		wantRetries int
		wantErr     bool
	}{
		{"immediate success", 0, 3, 0, false},
		{"one transient", 1, 3, 1, false},
		{"two transient", 2, 3, 2, false},
		{"exhausted", 5, 3, 2, true},
		{"single attempt", 1, 1, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &scriptedStore{}
			for i := 0; i < tt.failures; i++ {
				store.errs = append(store.errs, unavailable())
			}
			c, s, logs := newClient(store, tt.maxAttempts)

			res, err := c.Upload(context.Background(), "SOUZA_070925.pdf", document(t))

			assert.Equal(t, tt.wantRetries, res.Retries())
			assert.Len(t, s.waits, tt.wantRetries)
			assert.Equal(t, tt.wantRetries, logs.FilterField(zap.String(logger.FieldEvent, logger.EventUploadRetry)).Len())
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errors.ErrPermanentUpload))
				assert.Contains(t, err.Error(), fmt.Sprintf("registry unavailable (server): gave up after %d attempts", tt.maxAttempts))
				assert.Equal(t, errors.ClassServer, res.LastClass)
				assert.Empty(t, res.InstanceID)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, res.InstanceID)
			assert.Equal(t, errors.ClassNone, res.LastClass)
		})
	}
}

func TestPermanentFailureNotRetried(t *testing.T) {
	for _, code := range []int{400, 401, 403, 415} {
		store := &scriptedStore{errs: []error{errors.NewStatusError("POST /instances", code, "")}}
		c, s, _ := newClient(store, 5)

		res, err := c.Upload(context.Background(), "a.pdf", document(t))

		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrPermanentUpload))
		assert.Contains(t, err.Error(), "upload a.pdf rejected")
		assert.Equal(t, 1, store.calls)
		assert.Zero(t, res.Retries())
		assert.Empty(t, s.waits)
		assert.False(t, res.LastClass.Retryable())
	}
}

func TestBackoffDelays(t *testing.T) {
	store := &scriptedStore{errs: []error{unavailable(), unavailable(), unavailable()}}
	c, s, _ := newClient(store, 4)

	_, err := c.Upload(context.Background(), "a.pdf", document(t))

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, s.waits)
}

func TestAlreadyStoredIsSuccess(t *testing.T) {
	c, _, _ := newClient(alreadyStored{}, 3)

	res, err := c.Upload(context.Background(), "a.pdf", document(t))

	require.NoError(t, err)
	assert.True(t, res.AlreadyStored)
	assert.Equal(t, "existing", res.InstanceID)
}

type alreadyStored struct{}

func (alreadyStored) StoreInstance(context.Context, *encapsulate.Document) (interfaces.StoredInstance, error) {
	return interfaces.StoredInstance{ID: "existing", AlreadyStored: true}, nil
}
