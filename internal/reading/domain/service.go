package domain

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Add(ctx context.Context, subjectID snowflake.ID, req AddRequest) (*Reading, error)
	Latest(ctx context.Context, subjectID snowflake.ID) (*Reading, error)
	List(ctx context.Context, subjectID snowflake.ID, r TimeRange) ([]Reading, error)
	Import(ctx context.Context, subjectID snowflake.ID, src io.Reader) (*ImportResult, error)
	Export(ctx context.Context, subjectID snowflake.ID, r TimeRange, dst io.Writer) (int, error)
}

// AddRequest carries one reading from the API or a device. Pointers mark required fields.
type AddRequest struct {
	Moisture   *float64 `json:"moisture"`
	Temp       *float64 `json:"temp"`
	Light      *float64 `json:"light"`
	Notes      string   `json:"notes"`
	PlantID    *int64   `json:"plant_id"`
	SensorType string   `json:"sensor_type"`
	Timestamp  string   `json:"timestamp"`
	// Source labels metrics and live events; derived from SensorType when empty.
	Source string `json:"-"`
}

type ImportResult struct {
	BatchID  string `json:"batch_id"`
	Imported int    `json:"imported"`
}

var (
	ErrInvalidSubject   = errors.New("invalid_subject")
	ErrInvalidMoisture  = errors.New("invalid_moisture")
	ErrInvalidTemp      = errors.New("invalid_temp")
	ErrInvalidLight     = errors.New("invalid_light")
	ErrInvalidTimestamp = errors.New("invalid_timestamp")
	ErrInvalidPlantID   = errors.New("invalid_plant_id")
	ErrInvalidRange     = errors.New("invalid_range")
	ErrInvalidCSV       = errors.New("invalid_csv")
	ErrNotFound         = errors.New("not_found")
)

// ImportRowError pins an import failure to a 1-based data row.
type ImportRowError struct {
	Row int
	Err error
}

func (e *ImportRowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *ImportRowError) Unwrap() error { return e.Err }
