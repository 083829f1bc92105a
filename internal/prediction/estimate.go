// Package prediction estimates when a subject's soil moisture will cross the watering threshold.
package prediction

import (
	"fmt"
	"math"
	"time"

	readingdomain "github.com/smallbiznis/plantcare/internal/reading/domain"
)

const (
	OutcomePredicted         = "predicted"
	OutcomeInsufficientData  = "insufficient_data"
	OutcomeNoDecreasingTrend = "no_decreasing_trend"
	OutcomeCannotPredict     = "cannot_predict"
)

// maxProjectionHours is the longest horizon a time.Duration can carry.
const maxProjectionHours = float64(math.MaxInt64 / int64(time.Hour))

const (
	MessageInsufficientData  = "Not enough data to predict watering time"
	MessageNoDecreasingTrend = "No decreasing trend in moisture, cannot predict watering time"
	MessageCannotPredict     = "Cannot predict watering time"
)

type Config struct {
	Threshold float64
	Lookback  int
}

func DefaultConfig() Config {
	return Config{Threshold: 40, Lookback: 48}
}

// Result is always returned for well-formed input; a nil PredictedTime means no prediction.
type Result struct {
	Outcome          string   `json:"outcome"`
	Message          string   `json:"message,omitempty"`
	PredictedTime    *string  `json:"predicted_time"`
	HoursToThreshold *float64 `json:"hours_to_threshold"`
	CurrentMoisture  *float64 `json:"current_moisture"`
	AvgDropPerHour   *float64 `json:"avg_drop_per_hour"`
	Threshold        float64  `json:"threshold"`
	ReadingsUsed     int      `json:"readings_used"`
}

// Estimate projects the threshold crossing from readings in chronological order.
// Only decreasing consecutive pairs contribute to the rate; increases are watering events.
func Estimate(readings []readingdomain.Reading, cfg Config) (Result, error) {
	result := Result{Threshold: cfg.Threshold, ReadingsUsed: len(readings)}
	if len(readings) < 2 {
		result.Outcome = OutcomeInsufficientData
		result.Message = MessageInsufficientData
		return result, nil
	}

	times := make([]time.Time, len(readings))
	for i, r := range readings {
		t, err := r.Time()
		if err != nil {
			return Result{}, fmt.Errorf("reading %d timestamp %q: %w", r.ID, r.Timestamp, err)
		}
		times[i] = t
	}

	var sum float64
	var observations int
	for i := 1; i < len(readings); i++ {
		delta := readings[i].Moisture - readings[i-1].Moisture
		hours := times[i].Sub(times[i-1]).Hours()
		if delta >= 0 || hours <= 0 {
			continue
		}
		sum += math.Abs(delta) / hours
		observations++
	}

	if observations == 0 {
		result.Outcome = OutcomeNoDecreasingTrend
		result.Message = MessageNoDecreasingTrend
		return result, nil
	}

	rate := sum / float64(observations)
	last := readings[len(readings)-1]
	current := last.Moisture
	result.CurrentMoisture = float64Ptr(round(current, 1))
	result.AvgDropPerHour = float64Ptr(round(rate, 2))

	if current <= cfg.Threshold || rate == 0 {
		result.Outcome = OutcomeCannotPredict
		result.Message = MessageCannotPredict
		return result, nil
	}

	hours := (current - cfg.Threshold) / rate
	if hours >= maxProjectionHours {
		result.Outcome = OutcomeCannotPredict
		result.Message = MessageCannotPredict
		return result, nil
	}
	predicted := readingdomain.FormatTimestamp(times[len(times)-1].Add(time.Duration(hours * float64(time.Hour))))

	result.Outcome = OutcomePredicted
	result.HoursToThreshold = float64Ptr(hours)
	result.PredictedTime = &predicted
	return result, nil
}

func round(v float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}

func float64Ptr(v float64) *float64 { return &v }
