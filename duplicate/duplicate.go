// Package duplicate asks the registry whether a study already exists.
package duplicate

import (
	"context"

	"go.uber.org/zap"

	"github.com/caio-sobreiro/pdfpacs/errors"
	"github.com/caio-sobreiro/pdfpacs/identity"
	"github.com/caio-sobreiro/pdfpacs/interfaces"
	"github.com/caio-sobreiro/pdfpacs/logger"
	"github.com/caio-sobreiro/pdfpacs/retry"
)

// ResultKind is the outcome of a duplicate check
type ResultKind int

const (
	NotFound ResultKind = iota
	FoundByAccession
	FoundByPatientAndDate
	TransientFailure
)

func (k ResultKind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case FoundByAccession:
		return "found_by_accession"
	case FoundByPatientAndDate:
		return "found_by_patient_and_date"
	case TransientFailure:
		return "transient_failure"
	default:
		return "unknown"
	}
}

// Criterion names, in the order they are tried
const (
	CriterionAccession    = "accession"
	CriterionPatientID    = "patient_id+date"
	CriterionRegistryName = "registry_name+date"
	CriterionNaturalName  = "natural_name+date"
)

// Result is the answer for one identity
type Result struct {
	Kind ResultKind
	// MatchedID is the registry id of the first matching study
	MatchedID string
	// Criterion is the criterion that matched or failed
	Criterion string
	// Err is set for TransientFailure and is marked errors.ErrDuplicateCheck
	Err error
}

// IsDuplicate reports whether a study was found
func (r Result) IsDuplicate() bool {
	return r.Kind == FoundByAccession || r.Kind == FoundByPatientAndDate
}

type criterion struct {
	name  string
	kind  ResultKind
	query interfaces.StudyQuery
}

// Criteria lists the queries for id in order, skipping those whose
// fields are missing
func Criteria(id *identity.CanonicalIdentity) []interfaces.StudyQuery {
	list := criteria(id)
	out := make([]interfaces.StudyQuery, len(list))
	for i, c := range list {
		out[i] = c.query
	}
	return out
}

func criteria(id *identity.CanonicalIdentity) []criterion {
	var list []criterion

	if id.Accession != "" {
		list = append(list, criterion{CriterionAccession, FoundByAccession,
			interfaces.StudyQuery{AccessionNumber: id.Accession}})
	}
	if id.StudyDate.IsZero() {
		return list
	}
	date := id.DICOMDate()
	if id.PatientID != "" {
		list = append(list, criterion{CriterionPatientID, FoundByPatientAndDate,
			interfaces.StudyQuery{PatientID: id.PatientID, StudyDate: date}})
	}
	if id.RegistryName != "" {
		list = append(list, criterion{CriterionRegistryName, FoundByPatientAndDate,
			interfaces.StudyQuery{PatientName: id.RegistryName, StudyDate: date}})
	}
	// a single name token gives identical registry and natural names
	if id.NaturalName != "" && id.NaturalName != id.RegistryName {
		list = append(list, criterion{CriterionNaturalName, FoundByPatientAndDate,
			interfaces.StudyQuery{PatientName: id.NaturalName, StudyDate: date}})
	}
	return list
}

// Options configures a Detector
type Options struct {
	// Disabled bypasses every query; all identities are NotFound
	Disabled bool
	Policy   retry.Policy
	Logger   *zap.SugaredLogger
	// Runner overrides the runner built from Policy
	Runner *retry.Runner
}

// Detector runs the ordered criteria against a registry. It holds no
// per-call state and is safe for concurrent use.
type Detector struct {
	finder   interfaces.StudyFinder
	disabled bool
	runner   *retry.Runner
	logger   *zap.SugaredLogger
}

// New returns a Detector querying finder
func New(finder interfaces.StudyFinder, opts Options) *Detector {
	d := &Detector{
		finder:   finder,
		disabled: opts.Disabled,
		runner:   opts.Runner,
		logger:   opts.Logger,
	}
	if d.runner == nil {
		d.runner = retry.NewRunner(opts.Policy)
	}
	if d.logger == nil {
		d.logger = logger.Nop()
	}
	return d
}

// Enabled reports whether checks reach the registry
func (d *Detector) Enabled() bool {
	return !d.disabled
}

// Check tries each criterion in order and stops at the first match or the
// first query that fails after its retries. The first match wins; later
// criteria are never consulted to confirm or contradict it.
func (d *Detector) Check(ctx context.Context, id *identity.CanonicalIdentity) Result {
	if d.disabled || id == nil {
		return Result{Kind: NotFound}
	}

	for _, c := range criteria(id) {
		matches, err := d.query(ctx, c)
		if err != nil {
			return Result{
				Kind:      TransientFailure,
				Criterion: c.name,
				Err:       errors.Mark(errors.Wrapf(err, "duplicate query %s", c.name), errors.ErrDuplicateCheck),
			}
		}
		if len(matches) > 0 {
			return Result{Kind: c.kind, MatchedID: matches[0].ID, Criterion: c.name}
		}
	}
	return Result{Kind: NotFound}
}

func (d *Detector) query(ctx context.Context, c criterion) ([]interfaces.StudyMatch, error) {
	runner := *d.runner
	runner.OnRetry = func(s retry.State) {
		d.logger.Warnw("Duplicate query failed, retrying",
			logger.FieldCriterion, c.name,
			logger.FieldAttempt, s.Attempt,
			logger.FieldDelay, s.NextDelay,
			logger.FieldErrorClass, s.LastClass.String(),
			logger.FieldError, s.LastErr)
	}

	var matches []interfaces.StudyMatch
	_, err := runner.Do(ctx, func(ctx context.Context, _ int) error {
		var err error
		matches, err = d.finder.FindStudies(ctx, c.query)
		return err
	})
	if err != nil {
		return nil, err
	}

	d.logger.Debugw("Duplicate query",
		logger.FieldCriterion, c.name,
		logger.FieldCount, len(matches))
	return matches, nil
}
