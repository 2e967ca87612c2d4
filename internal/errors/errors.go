package errors

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies pipeline and storage failures.
type Kind string

const (
	// User-recoverable: surface with a one-line hint.
	KindNotARepository Kind = "not_a_repository"
	KindNoIndex        Kind = "no_index"
	KindStaleIndex     Kind = "stale_index"

	// Per-file: never abort the run.
	KindUnsupportedLanguage Kind = "unsupported_language"
	KindParseFailure        Kind = "parse_failure"

	// Storage boundary.
	KindStorageLocked      Kind = "storage_locked"
	KindStorageUnavailable Kind = "storage_unavailable"
	KindTimeout            Kind = "timeout"
	KindReadOnly           Kind = "read_only"

	KindCancelled Kind = "cancelled"
	KindInternal  Kind = "internal"
)

// Sentinel errors for errors.Is checks at the CLI boundary.
var (
	ErrNotARepository = &PipelineError{Kind: KindNotARepository, Hint: "run inside a source repository, or pass a path: codeatlas analyze <path>"}
	ErrNoIndex        = &PipelineError{Kind: KindNoIndex, Hint: "no index found; run: codeatlas analyze"}
	ErrStaleIndex     = &PipelineError{Kind: KindStaleIndex, Hint: "index is older than the working tree; re-run: codeatlas analyze"}
	ErrCancelled      = &PipelineError{Kind: KindCancelled}
	ErrReadOnly       = &PipelineError{Kind: KindReadOnly, Hint: "the persisted graph is read-only"}
)

// PipelineError is the typed error for pipeline-level failures.
type PipelineError struct {
	Kind       Kind
	Operation  string
	Path       string
	Hint       string
	Underlying error
	Timestamp  time.Time
}

// NewPipelineError creates a pipeline error with context.
func NewPipelineError(kind Kind, op string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Operation: op, Underlying: err, Timestamp: time.Now()}
}

// WithPath attaches the file or directory the error refers to.
func (e *PipelineError) WithPath(path string) *PipelineError {
	e.Path = path
	return e
}

func (e *PipelineError) Error() string {
	switch {
	case e.Path != "" && e.Underlying != nil:
		return fmt.Sprintf("%s: %s failed for %s: %v", e.Kind, e.Operation, e.Path, e.Underlying)
	case e.Underlying != nil:
		return fmt.Sprintf("%s: %s failed: %v", e.Kind, e.Operation, e.Underlying)
	case e.Path != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Path)
	default:
		return string(e.Kind)
	}
}

func (e *PipelineError) Unwrap() error { return e.Underlying }

// Is matches on Kind so sentinel comparisons work for wrapped instances.
func (e *PipelineError) Is(target error) bool {
	var pe *PipelineError
	if errors.As(target, &pe) {
		return e.Kind == pe.Kind
	}
	return false
}

// UserRecoverable reports whether the error should surface as a one-line
// hint with exit code 1 rather than an unexpected failure.
func (e *PipelineError) UserRecoverable() bool {
	switch e.Kind {
	case KindNotARepository, KindNoIndex, KindStaleIndex:
		return true
	}
	return false
}

// ParseError records a per-file parse failure. The file is logged and
// dropped; the run continues.
type ParseError struct {
	FilePath   string
	Language   string
	Underlying error
	Timestamp  time.Time
}

func NewParseError(path, language string, err error) *ParseError {
	return &ParseError{FilePath: path, Language: language, Underlying: err, Timestamp: time.Now()}
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse failed for %s (%s): %v", e.FilePath, e.Language, e.Underlying)
}

func (e *ParseError) Unwrap() error { return e.Underlying }

// StorageError wraps failures at the storage boundary.
type StorageError struct {
	Kind       Kind
	Operation  string
	Underlying error
	Attempts   int
	Timestamp  time.Time
}

func NewStorageError(kind Kind, op string, err error) *StorageError {
	return &StorageError{Kind: kind, Operation: op, Underlying: err, Timestamp: time.Now()}
}

func (e *StorageError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("storage %s: %s failed after %d attempts: %v", e.Kind, e.Operation, e.Attempts, e.Underlying)
	}
	return fmt.Sprintf("storage %s: %s failed: %v", e.Kind, e.Operation, e.Underlying)
}

func (e *StorageError) Unwrap() error { return e.Underlying }

// Retryable reports whether the operation may be retried (lock
// contention, up to 3 attempts with linear backoff).
func (e *StorageError) Retryable() bool { return e.Kind == KindStorageLocked }

// MultiError aggregates per-file failures collected during a run.
type MultiError struct {
	Errors []error
}

func NewMultiError(errs []error) *MultiError {
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	return &MultiError{Errors: filtered}
}

func (e *MultiError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "no errors"
	case 1:
		return e.Errors[0].Error()
	default:
		return fmt.Sprintf("%d errors: %v", len(e.Errors), e.Errors)
	}
}

func (e *MultiError) Unwrap() []error { return e.Errors }
