package types

import "fmt"

// Outcome enumerates the result of a whole boot handoff attempt. Only the
// non-success variants are ever observed: a successful transfer does not
// return control, so OutcomeSuccess exists for completeness and reporting
// symmetry, never as a returned value.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeImageNotFound
	OutcomeImageCorrupt
	OutcomeUnsupportedFormat
	OutcomeInsufficientMemory
	OutcomeServicesUnavailable
)

// EFI-convention status codes for each outcome. The high bit marks an error
// status, per UEFI Specification 2.10 Appendix D.
const (
	efiErrorBit uint64 = 1 << 63

	statusSuccess        uint64 = 0
	statusLoadError      uint64 = efiErrorBit | 1
	statusUnsupported    uint64 = efiErrorBit | 3
	statusNotReady       uint64 = efiErrorBit | 6
	statusOutOfResources uint64 = efiErrorBit | 9
	statusNotFound       uint64 = efiErrorBit | 14
)

// String returns the canonical name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "Success"
	case OutcomeImageNotFound:
		return "ImageNotFound"
	case OutcomeImageCorrupt:
		return "ImageCorrupt"
	case OutcomeUnsupportedFormat:
		return "UnsupportedFormat"
	case OutcomeInsufficientMemory:
		return "InsufficientMemory"
	case OutcomeServicesUnavailable:
		return "ServicesUnavailable"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// StatusCode returns the platform status code conventionally reported to
// firmware for this outcome.
func (o Outcome) StatusCode() uint64 {
	switch o {
	case OutcomeSuccess:
		return statusSuccess
	case OutcomeImageNotFound:
		return statusNotFound
	case OutcomeImageCorrupt:
		return statusLoadError
	case OutcomeUnsupportedFormat:
		return statusUnsupported
	case OutcomeInsufficientMemory:
		return statusOutOfResources
	case OutcomeServicesUnavailable:
		return statusNotReady
	default:
		return statusLoadError
	}
}

// ExitCode returns the process exit code the CLI uses for this outcome.
// Success maps to zero; every failure gets a distinct small code so boot
// rehearsal scripts can branch on the exact failure.
func (o Outcome) ExitCode() int {
	switch o {
	case OutcomeSuccess:
		return 0
	case OutcomeImageNotFound:
		return 2
	case OutcomeImageCorrupt:
		return 3
	case OutcomeUnsupportedFormat:
		return 4
	case OutcomeInsufficientMemory:
		return 5
	case OutcomeServicesUnavailable:
		return 6
	default:
		return 1
	}
}

// OutcomeError carries a Boot Outcome together with the stage that produced
// it and the underlying cause. It is the error type every pre-commit failure
// in the boot path surfaces as.
type OutcomeError struct {
	Outcome Outcome
	Stage   string
	Err     error
}

// NewOutcomeError wraps err with the given outcome and stage name.
func NewOutcomeError(outcome Outcome, stage string, err error) *OutcomeError {
	return &OutcomeError{Outcome: outcome, Stage: stage, Err: err}
}

// Error implements the error interface.
func (e *OutcomeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Stage, e.Outcome)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Outcome, e.Err)
}

// Unwrap returns the underlying cause.
func (e *OutcomeError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an OutcomeError with the same outcome,
// so errors.Is can match on outcome identity regardless of stage or cause.
func (e *OutcomeError) Is(target error) bool {
	t, ok := target.(*OutcomeError)
	if !ok {
		return false
	}
	return e.Outcome == t.Outcome
}
