package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/plantcare/internal/liveevents"
	obscontext "github.com/smallbiznis/plantcare/internal/observability/context"
	obslogger "github.com/smallbiznis/plantcare/internal/observability/logger"
	readingdomain "github.com/smallbiznis/plantcare/internal/reading/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CSVHeader is the column order written by Export and accepted by Import.
var CSVHeader = []string{"timestamp", "moisture", "temp", "light", "notes", "plant_id", "sensor_type"}

var requiredColumns = []string{"timestamp", "moisture", "temp", "light"}

// Import stores every row of src in one transaction; any invalid row rejects the file.
func (s *Service) Import(ctx context.Context, subjectID snowflake.ID, src io.Reader) (*readingdomain.ImportResult, error) {
	if subjectID == 0 {
		return nil, readingdomain.ErrInvalidSubject
	}
	batchID := ulid.Make().String()
	ctx = obscontext.WithRunID(ctx, batchID)
	log := obslogger.WithContext(ctx, s.log)

	r := csv.NewReader(src)
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", readingdomain.ErrInvalidCSV)
		}
		return nil, fmt.Errorf("%w: %v", readingdomain.ErrInvalidCSV, err)
	}
	index, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var readings []*readingdomain.Reading
	for row := 1; ; row++ {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &readingdomain.ImportRowError{Row: row, Err: fmt.Errorf("%w: %v", readingdomain.ErrInvalidCSV, err)}
		}
		if blank(record) {
			continue
		}
		req, err := requestFromRecord(record, index)
		if err != nil {
			return nil, &readingdomain.ImportRowError{Row: row, Err: err}
		}
		reading, err := s.buildReading(subjectID, req)
		if err != nil {
			return nil, &readingdomain.ImportRowError{Row: row, Err: err}
		}
		readings = append(readings, reading)
	}

	if len(readings) > 0 {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.repo.InsertBatch(ctx, tx, readings)
		})
		if err != nil {
			log.Warn("reading import failed", zap.Int("rows", len(readings)), zap.Error(err))
			return nil, err
		}
	}

	s.metrics.RecordReadingsIngested(ctx, liveevents.SourceImport, len(readings))
	for _, reading := range readings {
		s.hub.Publish(subjectID, liveevents.FromReading(*reading, liveevents.SourceImport))
	}
	log.Info("readings imported", zap.Int("rows", len(readings)))

	return &readingdomain.ImportResult{BatchID: batchID, Imported: len(readings)}, nil
}

// Export writes the subject's readings in chronological order and returns the row count.
func (s *Service) Export(ctx context.Context, subjectID snowflake.ID, r readingdomain.TimeRange, dst io.Writer) (int, error) {
	items, err := s.List(ctx, subjectID, r)
	if err != nil {
		return 0, err
	}

	w := csv.NewWriter(dst)
	if err := w.Write(CSVHeader); err != nil {
		return 0, err
	}
	for _, item := range items {
		plantID := ""
		if item.PlantID != nil {
			plantID = strconv.FormatInt(*item.PlantID, 10)
		}
		if err := w.Write([]string{
			item.Timestamp,
			formatFloat(item.Moisture),
			formatFloat(item.Temp),
			formatFloat(item.Light),
			item.Notes,
			plantID,
			item.SensorType,
		}); err != nil {
			return 0, err
		}
	}
	w.Flush()
	return len(items), w.Error()
}

func columnIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		index[name] = i
	}
	for _, name := range requiredColumns {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", readingdomain.ErrInvalidCSV, name)
		}
	}
	return index, nil
}

func requestFromRecord(record []string, index map[string]int) (readingdomain.AddRequest, error) {
	field := func(name string) string {
		i, ok := index[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	timestamp := field("timestamp")
	if timestamp == "" {
		return readingdomain.AddRequest{}, readingdomain.ErrInvalidTimestamp
	}
	moisture, err := parseFloat(field("moisture"), readingdomain.ErrInvalidMoisture)
	if err != nil {
		return readingdomain.AddRequest{}, err
	}
	temp, err := parseFloat(field("temp"), readingdomain.ErrInvalidTemp)
	if err != nil {
		return readingdomain.AddRequest{}, err
	}
	light, err := parseFloat(field("light"), readingdomain.ErrInvalidLight)
	if err != nil {
		return readingdomain.AddRequest{}, err
	}

	req := readingdomain.AddRequest{
		Moisture:   &moisture,
		Temp:       &temp,
		Light:      &light,
		Notes:      field("notes"),
		SensorType: field("sensor_type"),
		Timestamp:  timestamp,
		Source:     liveevents.SourceImport,
	}
	if raw := field("plant_id"); raw != "" {
		plantID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return readingdomain.AddRequest{}, readingdomain.ErrInvalidPlantID
		}
		req.PlantID = &plantID
	}
	return req, nil
}

func parseFloat(raw string, invalid error) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, invalid
	}
	return v, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// parseTimestamp accepts the stored layout and RFC 3339 from devices that send zoned times.
func parseTimestamp(raw string) (time.Time, error) {
	if t, err := readingdomain.ParseTimestamp(raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
