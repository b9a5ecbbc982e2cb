package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrOracleFailure means the oracle could not produce a judgment after
	// all retries. Callers degrade instead of aborting the run.
	ErrOracleFailure = errors.New("oracle failure")

	// ErrEvidenceToolFailure is recorded when an evidence tool errors. The
	// tool's output is skipped for that iteration.
	ErrEvidenceToolFailure = errors.New("evidence tool failure")

	// ErrParseFailure marks structured oracle output that could not be used.
	ErrParseFailure = errors.New("parse failure")

	// ErrInvariantViolation is fatal for the run that hit it.
	ErrInvariantViolation = errors.New("invariant violation")

	ErrBeliefResolved = errors.New("belief state already resolved")
)

// ErrUnknownFramework is an invariant violation raised for a framework tag
// outside the closed set.
var ErrUnknownFramework = fmt.Errorf("unknown framework: %w", ErrInvariantViolation)

// InvestigationError is returned when a run ends fatally. State holds the
// partial run state at the failing step.
type InvestigationError struct {
	SignalID string
	Step     Step
	Err      error
	State    *RunState
}

func (e *InvestigationError) Error() string {
	return fmt.Sprintf("investigation %s failed at %s: %v", e.SignalID, e.Step, e.Err)
}

func (e *InvestigationError) Unwrap() error {
	return e.Err
}
