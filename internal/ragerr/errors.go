// Package ragerr defines the error taxonomy shared by the ragd pipeline.
//
// Every error returned by the core packages matches a Kind through errors.Is,
// so transport layers can map failures to responses without inspecting
// messages:
//
//	if errors.Is(err, ragerr.ErrValidation) {
//	    // reject request, nothing was written
//	}
//
// Messages never contain document text or identifiers of other tenants.
package ragerr

import (
	"errors"
)

// Kind classifies an error by how callers are expected to react.
type Kind int

const (
	// KindUnknown is an error outside the taxonomy (for example a context cancellation).
	KindUnknown Kind = iota
	// KindConfiguration blocks startup.
	KindConfiguration
	// KindValidation rejects caller input before any side effect.
	KindValidation
	// KindDependencyUnavailable means a collaborator could not be reached.
	KindDependencyUnavailable
	// KindPartialFailure means some units of a batch failed.
	KindPartialFailure
	// KindNotFound means the referenced entity or partition is absent.
	KindNotFound
	// KindUnauthenticated means the caller identity could not be established.
	KindUnauthenticated
)

// String returns the taxonomy name of the kind.
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "ConfigurationError"
	case KindValidation:
		return "ValidationError"
	case KindDependencyUnavailable:
		return "DependencyUnavailable"
	case KindPartialFailure:
		return "PartialFailure"
	case KindNotFound:
		return "NotFound"
	case KindUnauthenticated:
		return "Unauthenticated"
	default:
		return "Unknown"
	}
}

// kindError is the root sentinel of one Kind.
type kindError struct {
	kind Kind
	msg  string
}

func (e *kindError) Error() string { return e.msg }

// Kind sentinels. Match with errors.Is.
var (
	ErrConfiguration         error = &kindError{KindConfiguration, "configuration error"}
	ErrValidation            error = &kindError{KindValidation, "validation error"}
	ErrDependencyUnavailable error = &kindError{KindDependencyUnavailable, "dependency unavailable"}
	ErrPartialFailure        error = &kindError{KindPartialFailure, "partial failure"}
	ErrNotFound              error = &kindError{KindNotFound, "not found"}
	ErrUnauthenticated       error = &kindError{KindUnauthenticated, "unauthenticated"}
)

// sentinel is a specific error that also matches its kind sentinel.
type sentinel struct {
	msg    string
	parent error
}

// New returns a sentinel error that matches parent through errors.Is.
// parent must be one of the kind sentinels.
func New(parent error, msg string) error {
	return &sentinel{msg: msg, parent: parent}
}

func (e *sentinel) Error() string { return e.msg }

func (e *sentinel) Is(target error) bool { return target == e.parent }

// Specific errors.
var (
	ErrTextTooShort         = New(ErrValidation, "text too short")
	ErrQueryTooShort        = New(ErrValidation, "query too short")
	ErrInvalidQueryVector   = New(ErrValidation, "invalid query vector")
	ErrInvalidTenant        = New(ErrValidation, "invalid tenant id")
	ErrInvalidDocumentID    = New(ErrValidation, "invalid document id")
	ErrUnsupportedFormat    = New(ErrValidation, "unsupported document format")
	ErrExtractionFailed     = New(ErrValidation, "document extraction failed")
	ErrNoValidFragments     = New(ErrValidation, "no valid fragments")
	ErrNoFragmentsProduced  = New(ErrValidation, "no fragments produced")
	ErrEmbeddingUnavailable = New(ErrDependencyUnavailable, "embedding backend unavailable")
	ErrStoreUnavailable     = New(ErrDependencyUnavailable, "vector store unavailable")
	ErrGenerationFailed     = New(ErrDependencyUnavailable, "generation backend unavailable")
	ErrDocumentNotFound     = New(ErrNotFound, "document not found")
	ErrInvalidCredentials   = New(ErrUnauthenticated, "invalid credentials")
	ErrMissingCredentials   = New(ErrUnauthenticated, "missing credentials")
)

// kinds is ordered by precedence: an error joining an unavailable
// dependency with a validation failure is reported as unavailable.
var kinds = []*kindError{
	ErrConfiguration.(*kindError),
	ErrDependencyUnavailable.(*kindError),
	ErrUnauthenticated.(*kindError),
	ErrValidation.(*kindError),
	ErrNotFound.(*kindError),
	ErrPartialFailure.(*kindError),
}

// KindOf returns the Kind of err, or KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k.kind
		}
	}
	return KindUnknown
}

// Is reports whether err belongs to kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
