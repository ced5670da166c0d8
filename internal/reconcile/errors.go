package reconcile

import (
	"errors"
	"fmt"
	"strings"
)

// maxHeaderSample caps how many headers a FormatError carries.
const maxHeaderSample = 10

var (
	// ErrLedgerUnavailable matches any *LedgerError via errors.Is.
	ErrLedgerUnavailable = errors.New("ledger unavailable")

	// ErrVehicleRequired is returned when a report has no vehicle column and
	// the caller did not select a vehicle.
	ErrVehicleRequired = errors.New("reconcile: report has no vehicle column; select a vehicle")
)

// FormatError reports a structurally unrecognizable input file. Processing
// halts for that file and no partial result is produced.
type FormatError struct {
	Reason  string
	Headers []string // sample of offending headers
	Total   int      // number of offending headers before sampling
}

func newFormatError(reason string, headers []string) *FormatError {
	sample := headers
	if len(sample) > maxHeaderSample {
		sample = sample[:maxHeaderSample]
	}
	return &FormatError{
		Reason:  reason,
		Headers: append([]string(nil), sample...),
		Total:   len(headers),
	}
}

func (e *FormatError) Error() string {
	msg := "format: " + e.Reason
	if len(e.Headers) == 0 {
		return msg
	}
	msg += fmt.Sprintf(" (headers: %s", strings.Join(e.Headers, ", "))
	if e.Total > len(e.Headers) {
		msg += fmt.Sprintf(", +%d more", e.Total-len(e.Headers))
	}
	return msg + ")"
}

// LedgerError wraps a failure reaching the ledger. The engine never retries
// these and never assumes the failed call had no effect.
type LedgerError struct {
	Op  string
	Err error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger unavailable: %s: %v", e.Op, e.Err)
}

func (e *LedgerError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrLedgerUnavailable) true for every LedgerError.
func (e *LedgerError) Is(target error) bool {
	return target == ErrLedgerUnavailable
}

func ledgerErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var le *LedgerError
	if errors.As(err, &le) {
		return err
	}
	return &LedgerError{Op: op, Err: err}
}
