package domain

import (
	"errors"
	"fmt"
	"time"
)

// Error taxonomy shared by signal generation, simulation, and data feeds.
var (
	// ErrInvalidParameters reports malformed or degenerate strategy or run
	// parameters.
	ErrInvalidParameters = errors.New("invalid parameters")

	// ErrInsufficientData reports too few valid rows to simulate.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrDataIntegrity reports non-finite values reaching the return
	// computation. Concrete failures are *DataIntegrityError.
	ErrDataIntegrity = errors.New("data integrity error")

	// ErrEmptyDataset reports that a feed returned no rows for the requested
	// symbol and range.
	ErrEmptyDataset = errors.New("empty dataset")

	// ErrUndefinedMetric reports a ratio whose denominator is zero.
	ErrUndefinedMetric = errors.New("undefined metric")
)

// DataIntegrityError identifies the observation that carried a bad value.
type DataIntegrityError struct {
	Timestamp time.Time
	Field     string
	Value     float64
	Reason    string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity error at %s: %s %s (value %v)",
		e.Timestamp.Format("2006-01-02"), e.Field, e.Reason, e.Value)
}

// Is makes errors.Is(err, ErrDataIntegrity) hold for every *DataIntegrityError.
func (e *DataIntegrityError) Is(target error) bool {
	return target == ErrDataIntegrity
}

// InvalidParamsf wraps ErrInvalidParameters with a formatted reason.
func InvalidParamsf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameters, fmt.Sprintf(format, args...))
}
