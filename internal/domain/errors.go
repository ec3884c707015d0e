package domain

import (
	"errors"
	"fmt"
)

// Error kinds reported to callers. Every failure in the core matches exactly
// one of these via errors.Is, or several when a stage fails because a
// dependency failed.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrModelUnavailable    = errors.New("model unavailable")
	ErrExtractionParse     = errors.New("extraction parse error")
	ErrPlanGeneration      = errors.New("plan generation error")
	ErrStorageUnavailable  = errors.New("storage unavailable")
	ErrMissingPrerequisite = errors.New("missing prerequisite")
)

// Kind names used in responses.
const (
	KindInvalidInput        = "InvalidInput"
	KindModelUnavailable    = "ModelUnavailable"
	KindExtractionParse     = "ExtractionParseError"
	KindPlanGeneration      = "PlanGenerationError"
	KindStorageUnavailable  = "StorageUnavailable"
	KindMissingPrerequisite = "MissingPrerequisite"
	KindInternal            = "Internal"
)

// kindOrder lists the stage-level kinds before the dependency-level ones so
// a plan failure caused by the gateway reports as PlanGenerationError.
var kindOrder = []struct {
	err  error
	name string
}{
	{ErrInvalidInput, KindInvalidInput},
	{ErrMissingPrerequisite, KindMissingPrerequisite},
	{ErrExtractionParse, KindExtractionParse},
	{ErrPlanGeneration, KindPlanGeneration},
	{ErrModelUnavailable, KindModelUnavailable},
	{ErrStorageUnavailable, KindStorageUnavailable},
}

// KindOf returns the taxonomy name for err, or KindInternal when err matches none.
func KindOf(err error) string {
	for _, k := range kindOrder {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return KindInternal
}

// ParseError reports model output that did not contain recoverable JSON.
// Text holds the complete model response for diagnostics.
type ParseError struct {
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return ErrExtractionParse.Error()
	}
	return fmt.Sprintf("%s: %v", ErrExtractionParse, e.Err)
}

// Is makes errors.Is(err, ErrExtractionParse) hold.
func (e *ParseError) Is(target error) bool {
	return target == ErrExtractionParse
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
