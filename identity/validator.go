package identity

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ValidatorOptions bounds the plausible study dates
type ValidatorOptions struct {
	MinYear       int
	MaxFutureDays int
	Now           func() time.Time
}

// Validator canonicalizes parsed identities
type Validator struct {
	minDate       time.Time
	maxFutureDays int
	now           func() time.Time
}

// NewValidator returns a validator; zero options mean 1900 and one day ahead
func NewValidator(opts ValidatorOptions) *Validator {
	if opts.MinYear == 0 {
		opts.MinYear = 1900
	}
	if opts.MaxFutureDays == 0 {
		opts.MaxFutureDays = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Validator{
		minDate:       time.Date(opts.MinYear, 1, 1, 0, 0, 0, 0, time.UTC),
		maxFutureDays: opts.MaxFutureDays,
		now:           opts.Now,
	}
}

// Validate builds the CanonicalIdentity of p
func (v *Validator) Validate(p *ParsedIdentity) (*CanonicalIdentity, error) {
	if p == nil {
		return nil, newValidationError("identity", "missing")
	}

	patientID := strings.TrimSpace(p.PatientID)
	if patientID != "" && !isDigits(patientID) {
		if p.Strategy == StrategyStructured {
			return nil, newValidationError("patient id", "must be numeric")
		}
		patientID = ""
	}

	accession := strings.TrimSpace(p.Accession)
	if accession != "" && !isDigits(accession) {
		accession = ""
	}

	names := make([]string, 0, len(p.NameParts))
	for _, part := range p.NameParts {
		if n := NormalizeName(part); countLetters(n) >= 2 {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return nil, newValidationError("patient name", "no usable name tokens")
	}

	if p.StudyDate.IsZero() {
		return nil, newValidationError("study date", "missing")
	}
	date := time.Date(p.StudyDate.Year(), p.StudyDate.Month(), p.StudyDate.Day(), 0, 0, 0, 0, time.UTC)
	if date.Before(v.minDate) {
		return nil, newValidationError("study date", date.Format("2006-01-02")+" is before "+v.minDate.Format("2006-01-02"))
	}
	now := v.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if limit := today.AddDate(0, 0, v.maxFutureDays); date.After(limit) {
		return nil, newValidationError("study date", date.Format("2006-01-02")+" is after "+limit.Format("2006-01-02"))
	}

	return &CanonicalIdentity{
		PatientID:    patientID,
		NameParts:    names,
		RegistryName: RegistryName(names),
		NaturalName:  strings.Join(names, " "),
		StudyDate:    date,
		Accession:    accession,
		Strategy:     p.Strategy,
	}, nil
}

// RegistryName formats name tokens as SURNAME^GIVEN NAMES; the first token
// is the surname.
func RegistryName(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	default:
		return names[0] + "^" + strings.Join(names[1:], " ")
	}
}

// NormalizeName strips diacritics, maps anything but ASCII letters to
// spaces, collapses whitespace and uppercases.
func NormalizeName(token string) string {
	// transform chains keep state, so each call builds its own
	stripMarks := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	stripped, _, err := transform.String(stripMarks, token)
	if err != nil {
		stripped = token
	}

	mapped := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return unicode.ToUpper(r)
		}
		return ' '
	}, stripped)

	return strings.Join(strings.Fields(mapped), " ")
}

func countLetters(s string) int {
	n := 0
	for _, r := range s {
		if r != ' ' {
			n++
		}
	}
	return n
}
