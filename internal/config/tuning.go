package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	SimulationModeShared     = "shared"
	SimulationModePerSubject = "per_subject"
)

// Tuning carries the simulation and prediction constants that can be edited at runtime.
type Tuning struct {
	Simulation SimulationTuning `mapstructure:"simulation"`
	Prediction PredictionTuning `mapstructure:"prediction"`
}

type SimulationTuning struct {
	Mode                 string        `mapstructure:"mode"`
	Interval             time.Duration `mapstructure:"interval"`
	TickTimeout          time.Duration `mapstructure:"tick_timeout"`
	MoistureMin          float64       `mapstructure:"moisture_min"`
	MoistureMax          float64       `mapstructure:"moisture_max"`
	DepletionMin         float64       `mapstructure:"depletion_min"`
	DepletionMax         float64       `mapstructure:"depletion_max"`
	WateringProbability  float64       `mapstructure:"watering_probability"`
	ForcedWateringBelow  float64       `mapstructure:"forced_watering_below"`
	WateredMin           float64       `mapstructure:"watered_min"`
	WateredMax           float64       `mapstructure:"watered_max"`
	TempAmplitude        float64       `mapstructure:"temp_amplitude"`
	TempBaselineMin      float64       `mapstructure:"temp_baseline_min"`
	TempBaselineMax      float64       `mapstructure:"temp_baseline_max"`
	TempNoise            float64       `mapstructure:"temp_noise"`
	DaylightStart        time.Duration `mapstructure:"daylight_start"`
	DaylightEnd          time.Duration `mapstructure:"daylight_end"`
	LightBaselineMin     float64       `mapstructure:"light_baseline_min"`
	LightBaselineMax     float64       `mapstructure:"light_baseline_max"`
	LightNoise           float64       `mapstructure:"light_noise"`
	NightLightMax        float64       `mapstructure:"night_light_max"`
	InitialMoistureMin   float64       `mapstructure:"initial_moisture_min"`
	InitialMoistureMax   float64       `mapstructure:"initial_moisture_max"`
	// Timezone is the IANA zone the diurnal curves follow; "Local" uses the host zone.
	Timezone string `mapstructure:"timezone"`
}

type PredictionTuning struct {
	Threshold float64 `mapstructure:"threshold"`
	Lookback  int     `mapstructure:"lookback"`
}

func DefaultTuning() Tuning {
	return Tuning{
		Simulation: SimulationTuning{
			Mode:                SimulationModePerSubject,
			Interval:            60 * time.Second,
			TickTimeout:         30 * time.Second,
			MoistureMin:         25,
			MoistureMax:         95,
			DepletionMin:        0.2,
			DepletionMax:        0.7,
			WateringProbability: 0.10,
			ForcedWateringBelow: 35,
			WateredMin:          70,
			WateredMax:          90,
			TempAmplitude:       6,
			TempBaselineMin:     18,
			TempBaselineMax:     24,
			TempNoise:           0.5,
			DaylightStart:       6 * time.Hour,
			DaylightEnd:         18 * time.Hour,
			LightBaselineMin:    600,
			LightBaselineMax:    1000,
			LightNoise:          30,
			NightLightMax:       20,
			InitialMoistureMin:  55,
			InitialMoistureMax:  85,
			Timezone:            "Local",
		},
		Prediction: PredictionTuning{
			Threshold: 40,
			Lookback:  48,
		},
	}
}

type TuningHolder struct {
	current atomic.Value // holds Tuning
}

// NewStaticTuningHolder returns a holder that never reloads.
func NewStaticTuningHolder(t Tuning) *TuningHolder {
	holder := &TuningHolder{}
	holder.current.Store(t)
	return holder
}

// NewTuningHolder reads plantcare.yml, applies env overrides and watches the file for edits.
func NewTuningHolder(cfg Config, log *zap.Logger) (*TuningHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.tuning")

	v := viper.New()
	if file := strings.TrimSpace(cfg.TuningFile); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("plantcare")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/plantcare")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("PLANTCARE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setTuningDefaults(v, DefaultTuning())

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read tuning file: %w", err)
		}
		fileLoaded = false
	}

	tuning, err := decodeTuning(v, cfg.Simulation)
	if err != nil {
		return nil, err
	}

	holder := NewStaticTuningHolder(tuning)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeTuning(v, cfg.Simulation)
		if err != nil {
			log.Warn("tuning reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("tuning reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *TuningHolder) Get() Tuning {
	if h == nil {
		return DefaultTuning()
	}
	return h.current.Load().(Tuning)
}

// Set replaces the current tuning after validation.
func (h *TuningHolder) Set(t Tuning) error {
	if err := t.Validate(); err != nil {
		return err
	}
	h.current.Store(t)
	return nil
}

func decodeTuning(v *viper.Viper, overrides SimulationOverrides) (Tuning, error) {
	var t Tuning
	if err := v.Unmarshal(&t); err != nil {
		return Tuning{}, fmt.Errorf("decode tuning: %w", err)
	}
	if overrides.Mode != "" {
		t.Simulation.Mode = overrides.Mode
	}
	if overrides.Interval > 0 {
		t.Simulation.Interval = overrides.Interval
	}
	if err := t.Validate(); err != nil {
		return Tuning{}, err
	}
	return t, nil
}

func setTuningDefaults(v *viper.Viper, t Tuning) {
	s := t.Simulation
	v.SetDefault("simulation.mode", s.Mode)
	v.SetDefault("simulation.interval", s.Interval)
	v.SetDefault("simulation.tick_timeout", s.TickTimeout)
	v.SetDefault("simulation.moisture_min", s.MoistureMin)
	v.SetDefault("simulation.moisture_max", s.MoistureMax)
	v.SetDefault("simulation.depletion_min", s.DepletionMin)
	v.SetDefault("simulation.depletion_max", s.DepletionMax)
	v.SetDefault("simulation.watering_probability", s.WateringProbability)
	v.SetDefault("simulation.forced_watering_below", s.ForcedWateringBelow)
	v.SetDefault("simulation.watered_min", s.WateredMin)
	v.SetDefault("simulation.watered_max", s.WateredMax)
	v.SetDefault("simulation.temp_amplitude", s.TempAmplitude)
	v.SetDefault("simulation.temp_baseline_min", s.TempBaselineMin)
	v.SetDefault("simulation.temp_baseline_max", s.TempBaselineMax)
	v.SetDefault("simulation.temp_noise", s.TempNoise)
	v.SetDefault("simulation.daylight_start", s.DaylightStart)
	v.SetDefault("simulation.daylight_end", s.DaylightEnd)
	v.SetDefault("simulation.light_baseline_min", s.LightBaselineMin)
	v.SetDefault("simulation.light_baseline_max", s.LightBaselineMax)
	v.SetDefault("simulation.light_noise", s.LightNoise)
	v.SetDefault("simulation.night_light_max", s.NightLightMax)
	v.SetDefault("simulation.initial_moisture_min", s.InitialMoistureMin)
	v.SetDefault("simulation.initial_moisture_max", s.InitialMoistureMax)
	v.SetDefault("simulation.timezone", s.Timezone)

	v.SetDefault("prediction.threshold", t.Prediction.Threshold)
	v.SetDefault("prediction.lookback", t.Prediction.Lookback)
}

// Validate rejects tunings the engine or predictor cannot run with.
func (t Tuning) Validate() error {
	s := t.Simulation
	switch s.Mode {
	case SimulationModeShared, SimulationModePerSubject:
	default:
		return fmt.Errorf("simulation.mode %q must be %q or %q", s.Mode, SimulationModeShared, SimulationModePerSubject)
	}
	if s.Interval <= 0 {
		return errors.New("simulation.interval must be positive")
	}
	if s.MoistureMin >= s.MoistureMax {
		return errors.New("simulation.moisture_min must be below moisture_max")
	}
	if s.DepletionMin < 0 || s.DepletionMin > s.DepletionMax {
		return errors.New("simulation.depletion range is invalid")
	}
	if s.WateringProbability < 0 || s.WateringProbability > 1 {
		return errors.New("simulation.watering_probability must be within [0,1]")
	}
	if s.WateredMin > s.WateredMax {
		return errors.New("simulation.watered range is invalid")
	}
	if s.DaylightStart < 0 || s.DaylightEnd > 24*time.Hour || s.DaylightStart >= s.DaylightEnd {
		return errors.New("simulation.daylight window is invalid")
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("simulation.timezone: %w", err)
	}
	if s.NightLightMax < 0 {
		return errors.New("simulation.night_light_max must not be negative")
	}
	if t.Prediction.Lookback < 2 {
		return errors.New("prediction.lookback must be at least 2")
	}
	return nil
}
