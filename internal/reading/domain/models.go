// Package domain contains the reading time series types shared by the API, the importer,
// the simulation and the predictor.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// TimestampLayout is the persisted, lexically sortable timestamp format.
const TimestampLayout = "2006-01-02 15:04:05"

const (
	SensorTypeManual    = "manual"
	SensorTypeSimulated = "simulated"
	SensorTypeMQTT      = "mqtt"
)

// Reading is one immutable observation owned by a single subject.
type Reading struct {
	ID         int64        `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID     snowflake.ID `gorm:"column:user_id;not null;index:idx_readings_user_ts,priority:1" json:"user_id"`
	Timestamp  string       `gorm:"column:timestamp;type:varchar(19);not null;index:idx_readings_user_ts,priority:2" json:"timestamp"`
	Moisture   float64      `gorm:"column:moisture;not null" json:"moisture"`
	Temp       float64      `gorm:"column:temp;not null" json:"temp"`
	Light      float64      `gorm:"column:light;not null" json:"light"`
	Notes      string       `gorm:"column:notes;type:text" json:"notes"`
	PlantID    *int64       `gorm:"column:plant_id" json:"plant_id"`
	SensorType string       `gorm:"column:sensor_type;type:varchar(64);not null;default:manual;index" json:"sensor_type"`
}

func (Reading) TableName() string { return "plant_readings" }

// Time parses the stored timestamp.
func (r Reading) Time() (time.Time, error) {
	return ParseTimestamp(r.Timestamp)
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func ParseTimestamp(value string) (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, value, time.UTC)
}

// TimeRange bounds a listing; nil ends are open. Both ends are inclusive.
type TimeRange struct {
	Start *time.Time
	End   *time.Time
}
