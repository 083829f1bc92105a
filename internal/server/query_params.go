package server

import (
	"errors"
	"strings"
	"time"

	readingdomain "github.com/smallbiznis/plantcare/internal/reading/domain"
)

const dateOnlyLayout = "2006-01-02"

var errInvalidTime = errors.New("invalid_time")

// parseOptionalTime accepts the stored reading layout, RFC3339 or a bare date. A bare
// date is widened to the start or end of that UTC day.
func parseOptionalTime(value string, endOfDay bool) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	if parsed, err := readingdomain.ParseTimestamp(trimmed); err == nil {
		return &parsed, nil
	}
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		parsed = parsed.UTC()
		return &parsed, nil
	}
	if parsed, err := time.Parse(dateOnlyLayout, trimmed); err == nil {
		if endOfDay {
			parsed = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 23, 59, 59, 0, time.UTC)
		} else {
			parsed = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC)
		}
		return &parsed, nil
	}
	return nil, errInvalidTime
}

func parseTimeRange(start, end string) (readingdomain.TimeRange, error) {
	from, err := parseOptionalTime(start, false)
	if err != nil {
		return readingdomain.TimeRange{}, newValidationError("start", "invalid_time", "start must be a timestamp or date")
	}
	to, err := parseOptionalTime(end, true)
	if err != nil {
		return readingdomain.TimeRange{}, newValidationError("end", "invalid_time", "end must be a timestamp or date")
	}
	if from != nil && to != nil && to.Before(*from) {
		return readingdomain.TimeRange{}, readingdomain.ErrInvalidRange
	}
	return readingdomain.TimeRange{Start: from, End: to}, nil
}
