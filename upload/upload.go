// Package upload sends encapsulated documents to the registry with bounded
// retry.
package upload

import (
	"context"

	"go.uber.org/zap"

	"github.com/caio-sobreiro/pdfpacs/encapsulate"
	"github.com/caio-sobreiro/pdfpacs/errors"
	"github.com/caio-sobreiro/pdfpacs/interfaces"
	"github.com/caio-sobreiro/pdfpacs/logger"
	"github.com/caio-sobreiro/pdfpacs/retry"
)

// Result describes one upload sequence
type Result struct {
	InstanceID    string
	AlreadyStored bool
	// Attempts counts every try, the first included
	Attempts  int
	LastClass errors.Class
}

// Retries is the number of attempts after the first
func (r Result) Retries() int {
	if r.Attempts <= 1 {
		return 0
	}
	return r.Attempts - 1
}

// Client uploads documents. Retry state lives in each Upload call, so a
// Client can be shared by all workers.
type Client struct {
	store  interfaces.InstanceStore
	runner *retry.Runner
	logger *zap.SugaredLogger
}

// New returns a Client storing through store. runner may be nil for the
// default policy.
func New(store interfaces.InstanceStore, runner *retry.Runner, log *zap.SugaredLogger) *Client {
	if runner == nil {
		runner = retry.NewRunner(retry.DefaultPolicy())
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{store: store, runner: runner, logger: log}
}

// Upload stores doc. Transient failures are retried per the runner's
// policy; a permanent failure or exhausted attempts return an error marked
// errors.ErrPermanentUpload together with the last error class.
func (c *Client) Upload(ctx context.Context, file string, doc *encapsulate.Document) (Result, error) {
	runner := *c.runner
	runner.OnRetry = func(s retry.State) {
		c.logger.Warnw("Upload failed, retrying",
			logger.FieldEvent, logger.EventUploadRetry,
			logger.FieldFile, file,
			logger.FieldAttempt, s.Attempt,
			logger.FieldDelay, s.NextDelay,
			logger.FieldErrorClass, s.LastClass.String(),
			logger.FieldError, s.LastErr)
	}

	var stored interfaces.StoredInstance
	state, err := runner.Do(ctx, func(ctx context.Context, _ int) error {
		var err error
		stored, err = c.store.StoreInstance(ctx, doc)
		return err
	})

	res := Result{Attempts: state.Attempt, LastClass: state.LastClass}
	if err != nil {
		if state.Exhausted() {
			return res, errors.Mark(errors.Wrapf(err, "upload %s: registry unavailable (%s)", file, state.LastClass), errors.ErrPermanentUpload)
		}
		return res, errors.Mark(errors.Wrapf(err, "upload %s rejected (%s)", file, state.LastClass), errors.ErrPermanentUpload)
	}

	res.InstanceID = stored.ID
	res.AlreadyStored = stored.AlreadyStored
	return res, nil
}
