// Package pipeline drives discovered PDF files through parsing, validation,
// integrity checks, duplicate detection, encapsulation, upload and filing.
//
// A run scans the source folder once, hands every candidate file to a fixed
// pool of workers and returns a Summary. A failing file never stops the
// run; only an unusable source folder, outcome folder or (when pinging is
// enabled) an unreachable registry does.
package pipeline

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/caio-sobreiro/pdfpacs/duplicate"
	"github.com/caio-sobreiro/pdfpacs/encapsulate"
	"github.com/caio-sobreiro/pdfpacs/errors"
	"github.com/caio-sobreiro/pdfpacs/identity"
	"github.com/caio-sobreiro/pdfpacs/integrity"
	"github.com/caio-sobreiro/pdfpacs/interfaces"
	"github.com/caio-sobreiro/pdfpacs/ledger"
	"github.com/caio-sobreiro/pdfpacs/logger"
	"github.com/caio-sobreiro/pdfpacs/organizer"
	"github.com/caio-sobreiro/pdfpacs/upload"
)

// DefaultWorkers is the pool size when none is configured
const DefaultWorkers = 2

// Journal persists runs and their per-file results. *ledger.Ledger
// implements it.
type Journal interface {
	StartRun(ctx context.Context, id string, started time.Time) error
	Record(ctx context.Context, e ledger.Entry) error
	FinishRun(ctx context.Context, id string, finished time.Time, counts map[string]int) error
}

// Deps are the stage implementations. Duplicates and Uploader are
// required; the other stages fall back to their zero-option defaults.
type Deps struct {
	Parser       *identity.Parser
	Validator    *identity.Validator
	Integrity    *integrity.Checker
	Duplicates   *duplicate.Detector
	Encapsulator *encapsulate.Encapsulator
	Uploader     *upload.Client
	Organizer    *organizer.Organizer
	// Pinger is called before discovery when Options.Ping is set
	Pinger  interfaces.Pinger
	Journal Journal
	Logger  *zap.SugaredLogger
}

// Options configures a run
type Options struct {
	Source  string
	Workers int
	Ping    bool
	Now     func() time.Time
	// NewRunID defaults to a ULID
	NewRunID func() string
}

// Orchestrator runs the pipeline over a source folder. Run may be called
// repeatedly but not concurrently.
type Orchestrator struct {
	deps   Deps
	opts   Options
	logger *zap.SugaredLogger
}

// New checks deps and fills in defaults
func New(deps Deps, opts Options) (*Orchestrator, error) {
	if opts.Source == "" {
		return nil, errors.New("pipeline: source folder required")
	}
	if deps.Duplicates == nil {
		return nil, errors.New("pipeline: duplicate detector required")
	}
	if deps.Uploader == nil {
		return nil, errors.New("pipeline: upload client required")
	}
	if opts.Ping && deps.Pinger == nil {
		return nil, errors.New("pipeline: ping enabled without a pinger")
	}

	if deps.Parser == nil {
		parser, err := identity.NewParser(identity.ParserOptions{})
		if err != nil {
			return nil, err
		}
		deps.Parser = parser
	}
	if deps.Validator == nil {
		deps.Validator = identity.NewValidator(identity.ValidatorOptions{})
	}
	if deps.Integrity == nil {
		deps.Integrity = integrity.NewChecker(integrity.Options{})
	}
	if deps.Encapsulator == nil {
		deps.Encapsulator = encapsulate.New(encapsulate.Options{})
	}
	if deps.Organizer == nil {
		deps.Organizer = organizer.New(organizer.DefaultOptions(opts.Source))
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}

	if opts.Workers < 1 {
		opts.Workers = DefaultWorkers
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewRunID == nil {
		opts.NewRunID = func() string { return ulid.Make().String() }
	}

	return &Orchestrator{deps: deps, opts: opts, logger: deps.Logger}, nil
}

// Run processes every candidate file currently in the source folder.
//
// Cancelling ctx stops dispatching; files already taken by a worker are
// finished with a context detached from ctx, so no file is left between
// stages. The returned error is only set for faults that prevent the run
// from starting.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	runID := o.opts.NewRunID()
	summary := newSummary(runID, o.opts.Now())
	log := o.logger.With(logger.FieldRunID, runID)

	if err := o.deps.Organizer.EnsureDirs(); err != nil {
		return nil, err
	}
	if o.opts.Ping {
		desc, err := o.deps.Pinger.Ping(ctx)
		if err != nil {
			return nil, errors.WithHint(errors.Wrap(err, "registry unreachable"),
				"check registry.url or registry.address and the credentials")
		}
		log.Infow("Registry reachable", logger.FieldRegistry, desc)
	}

	paths, err := Discover(o.opts.Source)
	if err != nil {
		return nil, err
	}

	log.Infow("Run started",
		logger.FieldEvent, logger.EventRunStart,
		logger.FieldCount, len(paths),
		logger.FieldWorkers, o.opts.Workers,
		"duplicate_check", o.deps.Duplicates.Enabled())

	journal := o.startJournal(ctx, log, runID, summary.Started)

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		jobs = make(chan string)
		work = context.WithoutCancel(ctx)
	)
	for i := 0; i < o.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				res := o.process(work, log, path)
				if journal != nil {
					o.record(work, log, journal, runID, res)
				}
				mu.Lock()
				summary.Results = append(summary.Results, res)
				summary.Counts[res.Outcome]++
				mu.Unlock()
			}
		}()
	}

	dispatched := 0
dispatch:
	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- path:
			dispatched++
		}
	}
	close(jobs)
	wg.Wait()

	summary.Skipped = len(paths) - dispatched
	summary.Finished = o.opts.Now()

	if journal != nil {
		if err := journal.FinishRun(work, runID, summary.Finished, summary.CountsByName()); err != nil {
			log.Warnw("Ledger not updated", logger.FieldError, err)
		}
	}

	fields := []interface{}{
		logger.FieldEvent, logger.EventRunSummary,
		logger.FieldCount, summary.Total(),
		logger.FieldSkipped, summary.Skipped,
		logger.FieldDurationMS, summary.Finished.Sub(summary.Started).Milliseconds(),
	}
	for _, k := range OutcomeKinds {
		fields = append(fields, k.String(), summary.Counts[k])
	}
	log.Infow("Run finished", fields...)

	return summary, nil
}

// startJournal opens the run in the journal. A journal that cannot be
// written is dropped for the rest of the run.
func (o *Orchestrator) startJournal(ctx context.Context, log *zap.SugaredLogger, runID string, started time.Time) Journal {
	if o.deps.Journal == nil {
		return nil
	}
	if err := o.deps.Journal.StartRun(context.WithoutCancel(ctx), runID, started); err != nil {
		log.Warnw("Ledger unavailable for this run", logger.FieldError, err)
		return nil
	}
	return o.deps.Journal
}

func (o *Orchestrator) record(ctx context.Context, log *zap.SugaredLogger, j Journal, runID string, res FileResult) {
	err := j.Record(ctx, ledger.Entry{
		RunID:       runID,
		File:        res.File,
		Outcome:     res.Outcome.String(),
		InstanceID:  res.InstanceID,
		MatchedID:   res.MatchedID,
		Destination: res.Destination,
		ErrorClass:  res.ErrorClass,
		Reason:      res.Reason,
		ProcessedAt: o.opts.Now(),
	})
	if err != nil {
		log.Warnw("Ledger entry not written", logger.FieldFile, res.File, logger.FieldError, err)
	}
}

// process takes one file from discovery to its outcome folder
func (o *Orchestrator) process(ctx context.Context, log *zap.SugaredLogger, path string) FileResult {
	started := time.Now()
	res := &FileResult{File: filepath.Base(path)}
	log = log.With(logger.FieldFile, res.File)

	src, err := statSource(path)
	if err != nil {
		res.Outcome, res.Reason, res.Err = OutcomeFilesystemFailure, "unreadable", err
		log.Errorw("Cannot read file", logger.FieldEvent, logger.EventReadFailed, logger.FieldError, err)
		return o.file(log, res, path, time.Time{}, started)
	}
	log.Infow("Processing file", logger.FieldEvent, logger.EventProcessingStart, logger.FieldSize, src.Size)

	parsed, err := o.deps.Parser.Parse(src.Name)
	if err != nil {
		res.Outcome, res.Reason, res.Err = OutcomeParseFailure, err.Error(), err
		log.Warnw("File name not recognized", logger.FieldEvent, logger.EventInvalidFormat, logger.FieldReason, err.Error())
		return o.file(log, res, src.Path, time.Time{}, started)
	}
	res.Strategy = string(parsed.Strategy)

	id, err := o.deps.Validator.Validate(parsed)
	if err != nil {
		res.Outcome, res.Reason, res.Err = OutcomeValidationFailure, err.Error(), err
		log.Warnw("Identity rejected",
			logger.FieldEvent, logger.EventValidationFailed,
			logger.FieldStrategy, res.Strategy,
			logger.FieldReason, err.Error())
		return o.file(log, res, src.Path, time.Time{}, started)
	}

	err = o.deps.Integrity.CheckSize(src.Size)
	if err == nil {
		if err = src.load(o.deps.Integrity.MaxSize()); err != nil {
			res.Outcome, res.Reason, res.Err = OutcomeFilesystemFailure, "unreadable", err
			log.Errorw("Cannot read file", logger.FieldEvent, logger.EventReadFailed, logger.FieldError, err)
			return o.file(log, res, src.Path, id.StudyDate, started)
		}
		err = o.deps.Integrity.Check(src.Content)
	}
	if err != nil {
		res.Outcome, res.Reason, res.Err = OutcomeCorruptedSource, integrity.Reason(err), err
		log.Warnw("Corrupted document",
			logger.FieldEvent, logger.EventCorruptedDocument,
			logger.FieldReason, res.Reason,
			logger.FieldSize, src.Size,
			logger.FieldError, err)
		return o.file(log, res, src.Path, id.StudyDate, started)
	}

	dup := o.deps.Duplicates.Check(ctx, id)
	res.Criterion = dup.Criterion
	switch {
	case dup.Kind == duplicate.TransientFailure:
		res.Outcome, res.Err = OutcomeDuplicateCheckFailure, dup.Err
		res.ErrorClass = errors.Classify(dup.Err).String()
		res.Reason = dup.Err.Error()
		log.Errorw("Duplicate check failed",
			logger.FieldEvent, logger.EventDuplicateCheckFailed,
			logger.FieldCriterion, dup.Criterion,
			logger.FieldErrorClass, res.ErrorClass,
			logger.FieldError, dup.Err)
		return o.file(log, res, src.Path, id.StudyDate, started)
	case dup.IsDuplicate():
		res.Outcome, res.MatchedID = OutcomeDuplicate, dup.MatchedID
		log.Infow("Study already in registry",
			logger.FieldEvent, logger.EventDuplicateFound,
			logger.FieldCriterion, dup.Criterion,
			logger.FieldMatchedID, dup.MatchedID)
		return o.file(log, res, src.Path, id.StudyDate, started)
	}

	doc, err := o.deps.Encapsulator.Wrap(id, src.Name, src.Content)
	if err != nil {
		res.Outcome, res.Reason, res.Err = OutcomeUploadFailure, "encapsulation failed", err
		log.Errorw("Cannot build DICOM document", logger.FieldEvent, logger.EventUploadFailed, logger.FieldError, err)
		return o.file(log, res, src.Path, id.StudyDate, started)
	}

	up, err := o.deps.Uploader.Upload(ctx, src.Name, doc)
	res.Attempts = up.Attempts
	if err != nil {
		res.Outcome, res.Err = OutcomeUploadFailure, err
		res.ErrorClass = up.LastClass.String()
		res.Reason = err.Error()
		log.Errorw("Upload failed",
			logger.FieldEvent, logger.EventUploadFailed,
			logger.FieldAttempt, up.Attempts,
			logger.FieldErrorClass, res.ErrorClass,
			logger.FieldError, err)
		return o.file(log, res, src.Path, id.StudyDate, started)
	}

	res.Outcome, res.InstanceID = OutcomeSuccess, up.InstanceID
	log.Infow("Document stored",
		logger.FieldEvent, logger.EventUploadSucceeded,
		logger.FieldInstanceID, up.InstanceID,
		logger.FieldAttempt, up.Attempts,
		"already_stored", up.AlreadyStored)
	return o.file(log, res, src.Path, id.StudyDate, started)
}

// file moves the source to the folder of its outcome. A failed move turns
// the outcome into FilesystemFailure and leaves the file in place.
func (o *Orchestrator) file(log *zap.SugaredLogger, res *FileResult, path string, studyDate time.Time, started time.Time) FileResult {
	dest := destination(res.Outcome)
	target, err := o.deps.Organizer.Move(path, dest, studyDate)
	if err != nil {
		log.Errorw("Cannot move file",
			logger.FieldEvent, logger.EventMoveFailed,
			logger.FieldDestination, dest.String(),
			logger.FieldOutcome, res.Outcome.String(),
			logger.FieldError, err)
		if res.Outcome != OutcomeFilesystemFailure {
			res.Reason = "not moved after " + res.Outcome.String()
		}
		res.Outcome = OutcomeFilesystemFailure
		res.Err = err
	} else {
		res.Destination = target
		log.Infow("File moved",
			logger.FieldEvent, logger.EventFileMoved,
			logger.FieldDestination, target,
			logger.FieldOutcome, res.Outcome.String())
	}

	res.Duration = time.Since(started)
	return *res
}
