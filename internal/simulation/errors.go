package simulation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	obsmetrics "github.com/smallbiznis/plantcare/internal/observability/metrics"
	"gorm.io/gorm"
)

var (
	ErrInvalidConfig = errors.New("invalid_config")
	ErrInvalidState  = errors.New("invalid_simulation_state")
)

// TickError wraps a failed tick with its class.
type TickError struct {
	Class string
	Err   error
}

func (e *TickError) Error() string {
	return fmt.Sprintf("simulation tick (%s): %v", e.Class, e.Err)
}

func (e *TickError) Unwrap() error { return e.Err }

// PanicError is a recovered panic from inside a tick.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// ClassOf returns the class of a tick error, or "" for nil.
func ClassOf(err error) string {
	if err == nil {
		return ""
	}
	var tickErr *TickError
	if errors.As(err, &tickErr) {
		return tickErr.Class
	}
	return classify(err)
}

// classify sorts a failure into storage, programming or cancelled. Unknown errors
// coming out of the store are treated as transient storage failures.
func classify(err error) string {
	var panicErr *PanicError
	switch {
	case errors.As(err, &panicErr), errors.Is(err, ErrInvalidState):
		return obsmetrics.SimulationErrorProgramming
	case errors.Is(err, context.Canceled):
		return obsmetrics.SimulationErrorCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return obsmetrics.SimulationErrorStorage
	case isGormProgrammingErr(err):
		return obsmetrics.SimulationErrorProgramming
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 42 covers syntax errors and undefined tables or columns.
		if strings.HasPrefix(pgErr.Code, "42") {
			return obsmetrics.SimulationErrorProgramming
		}
		return obsmetrics.SimulationErrorStorage
	}
	return obsmetrics.SimulationErrorStorage
}

func isGormProgrammingErr(err error) bool {
	for _, target := range []error{
		gorm.ErrInvalidField,
		gorm.ErrInvalidData,
		gorm.ErrInvalidValue,
		gorm.ErrInvalidValueOfLength,
		gorm.ErrMissingWhereClause,
		gorm.ErrModelValueRequired,
		gorm.ErrPrimaryKeyRequired,
		gorm.ErrUnsupportedRelation,
		gorm.ErrNotImplemented,
		gorm.ErrUnsupportedDriver,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func newTickError(err error) error {
	if err == nil {
		return nil
	}
	var tickErr *TickError
	if errors.As(err, &tickErr) {
		return err
	}
	return &TickError{Class: classify(err), Err: err}
}
