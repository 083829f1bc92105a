package simulation

import (
	"math"
	"math/rand"
	"time"

	"github.com/smallbiznis/plantcare/internal/config"
)

// Config is the resolved tuning for a single tick.
type Config struct {
	config.SimulationTuning
	Location *time.Location
}

// ConfigFromTuning resolves the timezone of t; unknown zones fall back to UTC.
func ConfigFromTuning(t config.SimulationTuning) Config {
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil || loc == nil {
		loc = time.UTC
	}
	return Config{SimulationTuning: t, Location: loc}
}

// State is the simulated plant one series of readings is drawn from.
type State struct {
	Moisture      float64    `json:"moisture"`
	BaselineTemp  float64    `json:"baseline_temp"`
	BaselineLight float64    `json:"baseline_light"`
	LastWatered   *time.Time `json:"last_watered,omitempty"`
	Ticks         uint64     `json:"ticks"`
}

// Sample is what one advance of a State emits.
type Sample struct {
	Moisture float64
	Temp     float64
	Light    float64
	Watered  bool
}

// NewState draws the per-plant baselines and starting moisture.
func NewState(cfg Config, rng *rand.Rand) State {
	return State{
		Moisture:      uniform(rng, cfg.InitialMoistureMin, cfg.InitialMoistureMax),
		BaselineTemp:  uniform(rng, cfg.TempBaselineMin, cfg.TempBaselineMax),
		BaselineLight: uniform(rng, cfg.LightBaselineMin, cfg.LightBaselineMax),
	}
}

// Advance moves the state forward to now and returns the sample for this tick.
// Random draws happen in a fixed order: depletion, watering, temperature noise, light.
func (s State) Advance(now time.Time, cfg Config, rng *rand.Rand) (State, Sample) {
	next := s
	next.Ticks++

	moisture := next.Moisture - uniform(rng, cfg.DepletionMin, cfg.DepletionMax)
	watered := rng.Float64() < cfg.WateringProbability || moisture < cfg.ForcedWateringBelow
	if watered {
		moisture = uniform(rng, cfg.WateredMin, cfg.WateredMax)
		at := now
		next.LastWatered = &at
	}
	next.Moisture = clamp(moisture, cfg.MoistureMin, cfg.MoistureMax)

	temp := TemperatureAt(now, next.BaselineTemp, cfg) + uniform(rng, -cfg.TempNoise, cfg.TempNoise)
	light := LightAt(now, next.BaselineLight, cfg, rng)

	return next, Sample{
		Moisture: round(next.Moisture, 2),
		Temp:     round(temp, 2),
		Light:    round(light, 2),
		Watered:  watered,
	}
}

// TemperatureAt is the noiseless diurnal temperature: a sine with a 24h period over
// the seconds elapsed since local midnight.
func TemperatureAt(now time.Time, baseline float64, cfg Config) float64 {
	secs := secondsOfDay(now, cfg.Location)
	return baseline + cfg.TempAmplitude*math.Sin(2*math.Pi*secs/86400)
}

// LightAt follows a half sine across the daylight window and drops to a small random
// level outside it. The result is never negative.
func LightAt(now time.Time, baseline float64, cfg Config, rng *rand.Rand) float64 {
	secs := secondsOfDay(now, cfg.Location)
	start := cfg.DaylightStart.Seconds()
	end := cfg.DaylightEnd.Seconds()
	if secs < start || secs >= end {
		return rng.Float64() * cfg.NightLightMax
	}
	phase := (secs - start) / (end - start) * math.Pi
	light := baseline*math.Sin(phase) + uniform(rng, -cfg.LightNoise, cfg.LightNoise)
	return math.Max(0, light)
}

func secondsOfDay(now time.Time, loc *time.Location) float64 {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	return float64(local.Hour()*3600+local.Minute()*60+local.Second()) + float64(local.Nanosecond())/1e9
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + rng.Float64()*(hi-lo)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
