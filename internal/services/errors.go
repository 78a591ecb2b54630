package services

import (
	"errors"
	"fmt"
)

var ErrEmptyText = errors.New("text cannot be empty")

// RetrievalError reports a failed embedding or reference lookup. The pipeline
// recovers from it by treating the affected ingredient as having no matches.
type RetrievalError struct {
	Op      string
	Subject string
	Err     error
}

func (e *RetrievalError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s failed for %q: %v", e.Op, e.Subject, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// SynthesisError means no assessment could be produced: the reasoning service
// failed or returned something that is not a usable assessment.
type SynthesisError struct {
	Reason string
	Err    error
}

func (e *SynthesisError) Error() string {
	if e.Err == nil {
		return "assessment synthesis failed: " + e.Reason
	}
	return fmt.Sprintf("assessment synthesis failed: %s: %v", e.Reason, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// scoreValidationError never leaves the package; the synthesizer recovers
// from it with the fallback score.
type scoreValidationError struct {
	raw    string
	reason string
}

func (e *scoreValidationError) Error() string {
	return fmt.Sprintf("invalid risk score %s: %s", e.raw, e.reason)
}
