// Package identity derives patient and study identity from document file
// names and canonicalizes it for registry queries and tagging.
package identity

import (
	"fmt"
	"strings"
	"time"

	"github.com/caio-sobreiro/pdfpacs/errors"
)

// StrategyName identifies the parsing strategy that produced an identity
type StrategyName string

const (
	StrategyCustom     StrategyName = "custom"
	StrategyStructured StrategyName = "structured"
	StrategyLegacy     StrategyName = "legacy"
)

// ParsedIdentity is the raw result of parsing a file name
type ParsedIdentity struct {
	PatientID string
	NameParts []string
	StudyDate time.Time
	DateToken string
	Accession string
	Strategy  StrategyName
}

// CanonicalIdentity is the normalized identity used for duplicate queries
// and document tagging. It is never modified after Validate returns it.
type CanonicalIdentity struct {
	PatientID    string
	NameParts    []string
	RegistryName string
	NaturalName  string
	StudyDate    time.Time
	Accession    string
	Strategy     StrategyName
}

// DICOMDate returns the study date as YYYYMMDD
func (c *CanonicalIdentity) DICOMDate() string {
	return c.StudyDate.Format("20060102")
}

// Attempt records why one strategy did not produce an identity
type Attempt struct {
	Strategy StrategyName
	Reason   string
}

// ParseError is returned when no strategy produced an identity
type ParseError struct {
	Filename string
	Attempts []Attempt
}

func (e *ParseError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %s", a.Strategy, a.Reason))
	}
	return fmt.Sprintf("cannot parse %q (%s)", e.Filename, strings.Join(parts, "; "))
}

// Strategies lists the attempted strategies in order
func (e *ParseError) Strategies() []StrategyName {
	names := make([]StrategyName, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		names = append(names, a.Strategy)
	}
	return names
}

// ValidationError is returned when a parsed identity cannot be canonicalized
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func newValidationError(field, reason string) error {
	return errors.Mark(&ValidationError{Field: field, Reason: reason}, errors.ErrValidation)
}
