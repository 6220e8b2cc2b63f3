package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidInput matches every *InputError
	ErrInvalidInput = errors.New("invalid multi-source query")

	// ErrSourceNotFound matches every *SourceNotFoundError
	ErrSourceNotFound = errors.New("source not found")
)

// Reason enumerates why a request was rejected
type Reason string

const (
	ReasonEmptyQuestion     Reason = "empty_question"
	ReasonNoSources         Reason = "no_sources"
	ReasonInvalidLimits     Reason = "invalid_limits"
	ReasonNoValidSources    Reason = "no_valid_sources"
	ReasonInvalidSourceName Reason = "invalid_source_name"
)

// InputError is returned synchronously for requests that cannot run
type InputError struct {
	Reason  Reason
	Message string
}

func (e *InputError) Error() string { return e.Message }

func (e *InputError) Is(target error) bool { return target == ErrInvalidInput }

func inputError(reason Reason, format string, args ...any) *InputError {
	return &InputError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// SourceNotFoundError lists every requested knowledge base that does not exist
type SourceNotFoundError struct {
	Missing []string
}

func (e *SourceNotFoundError) Error() string {
	return "Brains not found: " + strings.Join(e.Missing, ", ")
}

func (e *SourceNotFoundError) Is(target error) bool { return target == ErrSourceNotFound }
