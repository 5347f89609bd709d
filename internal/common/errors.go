package common

import (
	"errors"
	"fmt"
)

// ErrorKind classifies extraction failures. Transport and timeout kinds are
// retriable; everything else is terminal because repeating the identical
// request cannot fix malformed content.
type ErrorKind string

const (
	KindTransport        ErrorKind = "TRANSPORT_ERROR"
	KindTimeout          ErrorKind = "TIMEOUT"
	KindNoContent        ErrorKind = "NO_CONTENT_FOUND"
	KindUnexpectedShape  ErrorKind = "UNEXPECTED_SHAPE"
	KindMalformedContent ErrorKind = "MALFORMED_CONTENT"
	KindValidation       ErrorKind = "VALIDATION_ERROR"
	KindCancelled        ErrorKind = "CANCELLED"
)

// Retriable reports whether repeating the identical request may succeed.
func (k ErrorKind) Retriable() bool {
	return k == KindTransport || k == KindTimeout
}

// Stage names used in ExtractionError.Stage.
const (
	StageDispatch  = "dispatch"
	StageExtract   = "extract"
	StageNormalize = "normalize"
	StageBuild     = "build"
)

// ExtractionError is the single error type crossing the extraction pipeline
// boundary. It carries the originating stage and enough detail (offending
// key, row index, field) to be displayed directly.
type ExtractionError struct {
	Kind   ErrorKind
	Stage  string
	Detail string
	Cause  error
}

func (e *ExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s [%s]: %s: %v", e.Kind, e.Stage, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Stage, e.Detail)
}

func (e *ExtractionError) Unwrap() error {
	return e.Cause
}

// NewExtractionError builds a classified error for the given stage.
func NewExtractionError(kind ErrorKind, stage, detail string, cause error) *ExtractionError {
	return &ExtractionError{Kind: kind, Stage: stage, Detail: detail, Cause: cause}
}

// KindOf extracts the ErrorKind from an error chain. Unclassified errors
// report KindTransport, the most conservative retriable class for anything
// escaping the pipeline unclassified.
func KindOf(err error) ErrorKind {
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return KindTransport
}

// Retriable reports whether the error chain carries a retriable kind.
func Retriable(err error) bool {
	return KindOf(err).Retriable()
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
