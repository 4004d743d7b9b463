package entities

import "fmt"

// ValidationError rejects an upload before any record is created.
// Surfaced to the caller as a 4xx.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// NewValidationError creates a validation error with a formatted reason
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// StorageError indicates an I/O failure writing the audio file.
// Fatal to the request, surfaced as a 5xx.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// TranscriptionError indicates every transcription backend was exhausted.
// Not fatal to the pipeline; the orchestrator degrades and continues.
type TranscriptionError struct {
	Attempts []BackendFailure
}

// BackendFailure records one failed attempt in the fallback chain
type BackendFailure struct {
	Backend string
	Err     error
}

func (e *TranscriptionError) Error() string {
	if len(e.Attempts) == 0 {
		return "transcription failed: no backends configured"
	}
	msg := "transcription failed across all backends:"
	for _, a := range e.Attempts {
		msg += fmt.Sprintf(" [%s: %v]", a.Backend, a.Err)
	}
	return msg
}
