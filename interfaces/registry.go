// Package interfaces contains the registry contracts the pipeline depends on
package interfaces

import (
	"context"

	"github.com/caio-sobreiro/pdfpacs/encapsulate"
)

// StudyQuery holds the study-level matching keys of one duplicate criterion.
// Empty fields are not sent.
type StudyQuery struct {
	AccessionNumber string
	PatientID       string
	PatientName     string
	// StudyDate is YYYYMMDD
	StudyDate string
}

// StudyMatch is one study returned by a query
type StudyMatch struct {
	// ID is the registry's identifier for the study
	ID               string
	StudyInstanceUID string
}

// StoredInstance is the registry's answer to a successful store
type StoredInstance struct {
	ID            string
	AlreadyStored bool
}

// StudyFinder answers study-level queries without changing registry state
type StudyFinder interface {
	FindStudies(ctx context.Context, q StudyQuery) ([]StudyMatch, error)
}

// InstanceStore ingests encapsulated documents
type InstanceStore interface {
	StoreInstance(ctx context.Context, doc *encapsulate.Document) (StoredInstance, error)
}

// Pinger checks registry connectivity and returns a short description of
// the remote end
type Pinger interface {
	Ping(ctx context.Context) (string, error)
}

// Registry is everything a pipeline run needs from the remote end
type Registry interface {
	StudyFinder
	InstanceStore
	Pinger
}
