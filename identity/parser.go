package identity

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/caio-sobreiro/pdfpacs/errors"
)

// Named groups a custom pattern may use
const (
	GroupPatientID = "patient_id"
	GroupNameParts = "name_parts"
	GroupDate      = "date"
	GroupAccession = "accession"
)

var knownGroups = map[string]bool{
	GroupPatientID: true,
	GroupNameParts: true,
	GroupDate:      true,
	GroupAccession: true,
}

// Strategy converts a file name without extension into an identity
type Strategy interface {
	Name() StrategyName
	Parse(base string) (*ParsedIdentity, error)
}

// ParserOptions configures the strategy chain
type ParserOptions struct {
	// CustomPattern is an optional regular expression with the named groups
	// patient_id, name_parts, date and accession
	CustomPattern string
	Dates         DateResolver
}

// Parser tries its strategies in order; the first success wins
type Parser struct {
	strategies []Strategy
}

// NewParser builds the chain custom (when configured), structured, legacy.
// An invalid custom pattern is reported here, before any file is read.
func NewParser(opts ParserOptions) (*Parser, error) {
	var strategies []Strategy

	if opts.CustomPattern != "" {
		custom, err := NewCustomStrategy(opts.CustomPattern, opts.Dates)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, custom)
	}

	strategies = append(strategies,
		&StructuredStrategy{Dates: opts.Dates},
		&LegacyStrategy{Dates: opts.Dates},
	)

	return &Parser{strategies: strategies}, nil
}

// Parse parses a file name; any extension is ignored
func (p *Parser) Parse(filename string) (*ParsedIdentity, error) {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	parseErr := &ParseError{Filename: filename}
	for _, s := range p.strategies {
		id, err := s.Parse(base)
		if err == nil {
			id.Strategy = s.Name()
			return id, nil
		}
		parseErr.Attempts = append(parseErr.Attempts, Attempt{Strategy: s.Name(), Reason: err.Error()})
	}

	return nil, errors.Mark(parseErr, errors.ErrParse)
}

func splitTokens(base string) []string {
	raw := strings.Split(base, "_")
	tokens := make([]string, 0, len(raw))
	for _, t := range raw {
		if t = strings.TrimSpace(t); t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// CustomStrategy applies an operator-supplied regular expression
type CustomStrategy struct {
	re    *regexp.Regexp
	dates DateResolver
}

// NewCustomStrategy compiles pattern and checks its named groups
func NewCustomStrategy(pattern string, dates DateResolver) (*CustomStrategy, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.WithHint(errors.Wrap(err, "compile filename pattern"),
			"use Go RE2 syntax with (?P<name>...) groups")
	}

	seen := make(map[string]bool)
	for _, name := range re.SubexpNames() {
		if name == "" {
			continue
		}
		if !knownGroups[name] {
			return nil, errors.Newf("filename pattern uses unknown group %q", name)
		}
		seen[name] = true
	}
	if !seen[GroupNameParts] || !seen[GroupDate] {
		return nil, errors.Newf("filename pattern must define the %q and %q groups", GroupNameParts, GroupDate)
	}

	return &CustomStrategy{re: re, dates: dates}, nil
}

func (s *CustomStrategy) Name() StrategyName { return StrategyCustom }

func (s *CustomStrategy) Parse(base string) (*ParsedIdentity, error) {
	match := s.re.FindStringSubmatch(base)
	if match == nil {
		return nil, errors.New("pattern does not match")
	}

	groups := make(map[string]string)
	for i, name := range s.re.SubexpNames() {
		if name != "" {
			groups[name] = strings.TrimSpace(match[i])
		}
	}

	nameParts := strings.FieldsFunc(groups[GroupNameParts], func(r rune) bool {
		return r == '_' || r == ' ' || r == '\t'
	})
	if len(nameParts) == 0 {
		return nil, errors.New("name_parts group is empty")
	}
	if groups[GroupDate] == "" {
		return nil, errors.New("date group is empty")
	}

	date, err := s.dates.Resolve(groups[GroupDate])
	if err != nil {
		return nil, err
	}

	return &ParsedIdentity{
		PatientID: groups[GroupPatientID],
		NameParts: nameParts,
		StudyDate: date,
		DateToken: groups[GroupDate],
		Accession: groups[GroupAccession],
	}, nil
}

// StructuredStrategy parses PATIENTID_NAME..._DATE_ACCESSION
type StructuredStrategy struct {
	Dates DateResolver
}

func (s *StructuredStrategy) Name() StrategyName { return StrategyStructured }

func (s *StructuredStrategy) Parse(base string) (*ParsedIdentity, error) {
	tokens := splitTokens(base)
	if len(tokens) < 4 {
		return nil, errors.Newf("expected at least 4 tokens, got %d", len(tokens))
	}

	patientID := tokens[0]
	dateToken := tokens[len(tokens)-2]
	accession := tokens[len(tokens)-1]

	if !isDigits(patientID) {
		return nil, errors.Newf("patient id %q is not numeric", patientID)
	}
	if !isDigits(accession) {
		return nil, errors.Newf("accession %q is not numeric", accession)
	}
	if len(dateToken) != 6 && len(dateToken) != 8 {
		return nil, errors.Newf("date token %q must have 6 or 8 digits", dateToken)
	}

	date, err := s.Dates.Resolve(dateToken)
	if err != nil {
		return nil, err
	}

	return &ParsedIdentity{
		PatientID: patientID,
		NameParts: append([]string(nil), tokens[1:len(tokens)-2]...),
		StudyDate: date,
		DateToken: dateToken,
		Accession: accession,
	}, nil
}

// LegacyStrategy takes the last valid date token and treats everything
// before it as the patient name.
type LegacyStrategy struct {
	Dates DateResolver
}

func (s *LegacyStrategy) Name() StrategyName { return StrategyLegacy }

func (s *LegacyStrategy) Parse(base string) (*ParsedIdentity, error) {
	tokens := splitTokens(base)

	for i := len(tokens) - 1; i >= 0; i-- {
		tok := tokens[i]
		if len(tok) != 6 && len(tok) != 8 {
			continue
		}
		date, err := s.Dates.Resolve(tok)
		if err != nil {
			continue
		}
		if i == 0 {
			return nil, errors.New("no name tokens before the date")
		}
		return &ParsedIdentity{
			NameParts: append([]string(nil), tokens[:i]...),
			StudyDate: date,
			DateToken: tok,
		}, nil
	}

	return nil, errors.New("no valid date token")
}
