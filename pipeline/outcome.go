package pipeline

import (
	"time"

	"github.com/caio-sobreiro/pdfpacs/organizer"
)

// OutcomeKind is the terminal state of one file
type OutcomeKind string

const (
	OutcomeSuccess               OutcomeKind = "success"
	OutcomeDuplicate             OutcomeKind = "duplicate"
	OutcomeParseFailure          OutcomeKind = "parse_failure"
	OutcomeValidationFailure     OutcomeKind = "validation_failure"
	OutcomeCorruptedSource       OutcomeKind = "corrupted_source"
	OutcomeDuplicateCheckFailure OutcomeKind = "duplicate_check_failure"
	OutcomeUploadFailure         OutcomeKind = "upload_failure"
	OutcomeFilesystemFailure     OutcomeKind = "filesystem_failure"
)

// OutcomeKinds lists every kind in report order
var OutcomeKinds = []OutcomeKind{
	OutcomeSuccess,
	OutcomeDuplicate,
	OutcomeParseFailure,
	OutcomeValidationFailure,
	OutcomeCorruptedSource,
	OutcomeDuplicateCheckFailure,
	OutcomeUploadFailure,
	OutcomeFilesystemFailure,
}

func (k OutcomeKind) String() string { return string(k) }

// Failed reports whether k routes the file to the errors folder
func (k OutcomeKind) Failed() bool {
	return k != OutcomeSuccess && k != OutcomeDuplicate
}

// destination maps an outcome to its folder
func destination(k OutcomeKind) organizer.Destination {
	switch k {
	case OutcomeSuccess:
		return organizer.Processed
	case OutcomeDuplicate:
		return organizer.Duplicates
	default:
		return organizer.Errors
	}
}

// SourceDocument is a discovered file. Content is read once, and only
// after the size bounds passed on the stat.
type SourceDocument struct {
	Path    string
	Name    string
	Content []byte
	Size    int64
}

// FileResult is the record of one file. Exactly one is produced per
// dispatched file.
type FileResult struct {
	File        string        `yaml:"file"`
	Outcome     OutcomeKind   `yaml:"outcome"`
	Strategy    string        `yaml:"strategy,omitempty"`
	InstanceID  string        `yaml:"instance_id,omitempty"`
	MatchedID   string        `yaml:"matched_id,omitempty"`
	Criterion   string        `yaml:"criterion,omitempty"`
	Attempts    int           `yaml:"attempts,omitempty"`
	ErrorClass  string        `yaml:"error_class,omitempty"`
	Reason      string        `yaml:"reason,omitempty"`
	Destination string        `yaml:"destination,omitempty"`
	Duration    time.Duration `yaml:"duration"`
	Err         error         `yaml:"-"`
}

// Summary aggregates one run
type Summary struct {
	RunID    string              `yaml:"run_id"`
	Started  time.Time           `yaml:"started"`
	Finished time.Time           `yaml:"finished"`
	Counts   map[OutcomeKind]int `yaml:"counts"`
	// Skipped counts discovered files never dispatched because the run
	// was cancelled
	Skipped int          `yaml:"skipped,omitempty"`
	Results []FileResult `yaml:"results"`
}

func newSummary(runID string, started time.Time) *Summary {
	return &Summary{
		RunID:   runID,
		Started: started,
		Counts:  make(map[OutcomeKind]int, len(OutcomeKinds)),
	}
}

// Total is the number of files with a result
func (s *Summary) Total() int {
	return len(s.Results)
}

// Failures counts results routed to the errors folder
func (s *Summary) Failures() int {
	n := 0
	for k, c := range s.Counts {
		if k.Failed() {
			n += c
		}
	}
	return n
}

// CountsByName returns the counts keyed by outcome name
func (s *Summary) CountsByName() map[string]int {
	out := make(map[string]int, len(s.Counts))
	for k, c := range s.Counts {
		out[k.String()] = c
	}
	return out
}
