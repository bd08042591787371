// Package errors provides the error taxonomy of the ingestion pipeline.
//
// It re-exports github.com/cockroachdb/errors so callers get stack traces,
// hints and marks from a single import, and defines the sentinel kinds that
// decide where a document ends up:
//
//	// Wrap with context
//	if err := os.Rename(src, dst); err != nil {
//	    return errors.Mark(errors.Wrap(err, "move source"), errors.ErrFilesystem)
//	}
//
//	// Check the kind
//	if errors.Is(err, errors.ErrCorruptedSource) {
//	    // route to the error folder, never retry
//	}
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Pipeline failure kinds. Attach them with Mark so that errors.Is keeps
// working after further wrapping.
var (
	// ErrParse indicates no filename strategy produced an identity
	ErrParse = New("filename not parseable")

	// ErrValidation indicates the parsed identity failed normalization
	ErrValidation = New("identity validation failed")

	// ErrCorruptedSource indicates the source bytes are not a well-formed document
	ErrCorruptedSource = New("corrupted source document")

	// ErrTransient indicates a retryable registry or network failure
	ErrTransient = New("transient registry failure")

	// ErrPermanentUpload indicates the registry refused the object for good
	ErrPermanentUpload = New("permanent upload failure")

	// ErrDuplicateCheck indicates the duplicate query could not be answered
	ErrDuplicateCheck = New("duplicate check unavailable")

	// ErrFilesystem indicates a local move or read failed
	ErrFilesystem = New("filesystem failure")
)

// DICOM upper layer errors
var (
	ErrConnectionClosed    = New("dicom: connection closed")
	ErrAssociationRejected = New("dicom: association rejected")
	ErrInvalidPDU          = New("dicom: invalid PDU")
	ErrNoPresentationCtx   = New("dicom: no suitable presentation context")
	ErrInvalidMessage      = New("dicom: invalid DIMSE message")
)
