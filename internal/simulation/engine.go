// Package simulation generates synthetic sensor readings on a fixed cadence for every
// known subject.
package simulation

import (
	"context"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/plantcare/internal/clock"
	"github.com/smallbiznis/plantcare/internal/config"
	"github.com/smallbiznis/plantcare/internal/liveevents"
	obsmetrics "github.com/smallbiznis/plantcare/internal/observability/metrics"
	readingdomain "github.com/smallbiznis/plantcare/internal/reading/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	PhaseIdle     = "idle"
	PhaseTicking  = "ticking"
	PhaseStopped  = "stopped"
	PhaseDisabled = "disabled"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Repo    readingdomain.Repository
	Clock   clock.Clock
	Tuning  *config.TuningHolder
	Metrics *obsmetrics.SimulationMetrics `optional:"true"`
	Ingest  *obsmetrics.Metrics           `optional:"true"`
	Hub     *liveevents.Hub               `optional:"true"`
	Rand    *rand.Rand                    `optional:"true"`
}

// Engine owns the simulated plants and writes one reading per subject per tick.
type Engine struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    readingdomain.Repository
	clock   clock.Clock
	tuning  *config.TuningHolder
	metrics *obsmetrics.SimulationMetrics
	ingest  *obsmetrics.Metrics
	hub     *liveevents.Hub

	// tickMu serializes ticks and guards rng and ticks.
	tickMu sync.Mutex
	rng    *rand.Rand
	ticks  uint64

	stateMu  sync.RWMutex
	shared   *State
	subjects map[snowflake.ID]State
	status   Status
}

// Status is a point in time view of the engine for operators.
type Status struct {
	Phase          string     `json:"phase"`
	Mode           string     `json:"mode"`
	Interval       string     `json:"interval"`
	Ticks          uint64     `json:"ticks"`
	Subjects       int        `json:"subjects"`
	RowsWritten    uint64     `json:"rows_written"`
	LastRunID      string     `json:"last_run_id,omitempty"`
	LastTickAt     *time.Time `json:"last_tick_at,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
	LastErrorClass string     `json:"last_error_class,omitempty"`
}

// TickReport describes one committed tick.
type TickReport struct {
	RunID     string `json:"run_id"`
	Tick      uint64 `json:"tick"`
	Mode      string `json:"mode"`
	Timestamp string `json:"timestamp"`
	Subjects  int    `json:"subjects"`
	Rows      int    `json:"rows"`
	Watered   int    `json:"watered"`
}

func NewEngine(p Params) (*Engine, error) {
	if p.DB == nil || p.Log == nil || p.Repo == nil || p.Clock == nil || p.Tuning == nil {
		return nil, ErrInvalidConfig
	}
	rng := p.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{
		db:       p.DB,
		log:      p.Log.Named("simulation").With(zap.String("component", "simulation")),
		repo:     p.Repo,
		clock:    p.Clock,
		tuning:   p.Tuning,
		metrics:  p.Metrics,
		ingest:   p.Ingest,
		hub:      p.Hub,
		rng:      rng,
		subjects: make(map[snowflake.ID]State),
		status:   Status{Phase: PhaseIdle},
	}, nil
}

// RunForever ticks immediately and then once per configured interval until ctx is done.
// Storage failures are logged and retried on the next tick.
func (e *Engine) RunForever(ctx context.Context) {
	defer e.setPhase(PhaseStopped)

	next := e.clock.Now()
	for {
		if ctx.Err() != nil {
			return
		}
		if lag := e.clock.Now().Sub(next); lag > 0 {
			e.metrics.ObserveRunLoopLag(lag)
		}
		if err := e.RunOnce(ctx); err != nil {
			if ClassOf(err) == obsmetrics.SimulationErrorCancelled {
				return
			}
			e.log.Error("simulation run failed", zap.Error(err))
		}

		interval := e.tuning.Get().Simulation.Interval
		next = e.clock.Now().Add(interval)
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// RunOnce runs a single tick and swallows storage failures. Programming and
// cancellation errors are returned.
func (e *Engine) RunOnce(ctx context.Context) error {
	_, err := e.Tick(ctx)
	if err == nil || ClassOf(err) == obsmetrics.SimulationErrorStorage {
		return nil
	}
	return err
}

// Tick advances every simulated plant once and commits the resulting readings in a
// single transaction. Plant state only moves forward when the commit succeeds.
func (e *Engine) Tick(ctx context.Context) (report TickReport, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return TickReport{}, newTickError(err)
	}

	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	cfg := ConfigFromTuning(e.tuning.Get().Simulation)
	now := e.clock.Now()
	run := &tickRun{
		runID:     ulid.Make().String(),
		tick:      e.ticks + 1,
		mode:      cfg.Mode,
		startedAt: time.Now(),
	}
	ctx = e.withLogContext(ctx, run.runID)
	e.setPhase(PhaseTicking)
	e.logTickStart(ctx, run)

	defer func() {
		if r := recover(); r != nil {
			err = &TickError{
				Class: obsmetrics.SimulationErrorProgramming,
				Err:   &PanicError{Value: r, Stack: debug.Stack()},
			}
			report = TickReport{}
		}
		e.finishTick(ctx, run, now, err)
	}()

	tickCtx := ctx
	if cfg.TickTimeout > 0 {
		var cancel context.CancelFunc
		tickCtx, cancel = context.WithTimeout(ctx, cfg.TickTimeout)
		defer cancel()
	}

	rows, err := e.runTick(tickCtx, cfg, now, run)
	if err != nil {
		return TickReport{}, newTickError(err)
	}
	e.ticks++
	e.publish(ctx, rows)

	return TickReport{
		RunID:     run.runID,
		Tick:      run.tick,
		Mode:      cfg.Mode,
		Timestamp: readingdomain.FormatTimestamp(now),
		Subjects:  run.subjects,
		Rows:      run.rows,
		Watered:   run.watered,
	}, nil
}

func (e *Engine) runTick(ctx context.Context, cfg Config, now time.Time, run *tickRun) ([]*readingdomain.Reading, error) {
	var (
		rows   []*readingdomain.Reading
		commit func()
	)
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subjects, err := e.repo.ListSubjectIDs(ctx, tx)
		if err != nil {
			return err
		}
		run.subjects = len(subjects)

		rows, commit, err = e.plan(cfg, now, subjects, run)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return e.repo.InsertBatch(ctx, tx, rows)
	})
	if err != nil {
		return nil, err
	}
	run.rows = len(rows)
	commit()
	return rows, nil
}

// plan computes the next state for every subject without touching the live state.
// The returned commit func swaps the new state in.
func (e *Engine) plan(cfg Config, now time.Time, subjects []snowflake.ID, run *tickRun) ([]*readingdomain.Reading, func(), error) {
	ts := readingdomain.FormatTimestamp(now)
	rows := make([]*readingdomain.Reading, 0, len(subjects))

	switch cfg.Mode {
	case config.SimulationModeShared:
		e.stateMu.RLock()
		current := e.shared
		e.stateMu.RUnlock()
		if current == nil {
			initial := NewState(cfg, e.rng)
			current = &initial
		}

		next, sample := current.Advance(now, cfg, e.rng)
		if sample.Watered {
			run.watered++
		}
		for _, id := range subjects {
			if id == 0 {
				return nil, nil, fmt.Errorf("%w: zero subject id", ErrInvalidState)
			}
			rows = append(rows, newReading(id, ts, sample))
		}
		return rows, func() {
			e.stateMu.Lock()
			e.shared = &next
			e.stateMu.Unlock()
		}, nil

	case config.SimulationModePerSubject:
		e.stateMu.RLock()
		previous := e.subjects
		e.stateMu.RUnlock()

		states := make(map[snowflake.ID]State, len(subjects))
		for _, id := range subjects {
			if id == 0 {
				return nil, nil, fmt.Errorf("%w: zero subject id", ErrInvalidState)
			}
			current, ok := previous[id]
			if !ok {
				current = NewState(cfg, e.rng)
			}
			next, sample := current.Advance(now, cfg, e.rng)
			if sample.Watered {
				run.watered++
			}
			states[id] = next
			rows = append(rows, newReading(id, ts, sample))
		}
		return rows, func() {
			e.stateMu.Lock()
			e.subjects = states
			e.stateMu.Unlock()
		}, nil
	}

	return nil, nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidState, cfg.Mode)
}

func newReading(subject snowflake.ID, ts string, sample Sample) *readingdomain.Reading {
	return &readingdomain.Reading{
		UserID:     subject,
		Timestamp:  ts,
		Moisture:   sample.Moisture,
		Temp:       sample.Temp,
		Light:      sample.Light,
		SensorType: readingdomain.SensorTypeSimulated,
	}
}

func (e *Engine) publish(ctx context.Context, rows []*readingdomain.Reading) {
	if len(rows) == 0 {
		return
	}
	e.ingest.RecordReadingsIngested(ctx, liveevents.SourceSimulation, len(rows))
	if e.hub == nil {
		return
	}
	for _, row := range rows {
		e.hub.Publish(row.UserID, liveevents.FromReading(*row, liveevents.SourceSimulation))
	}
}

func (e *Engine) finishTick(ctx context.Context, run *tickRun, now time.Time, err error) {
	class := ClassOf(err)
	e.metrics.ObserveTick(time.Since(run.startedAt), class)
	if err == nil {
		e.metrics.SetSubjects(run.subjects)
		e.metrics.AddRowsWritten(run.rows)
		e.metrics.AddWateringEvents(run.watered)
	}

	e.stateMu.Lock()
	if e.status.Phase == PhaseTicking {
		e.status.Phase = PhaseIdle
	}
	e.status.Mode = run.mode
	e.status.LastRunID = run.runID
	if err == nil {
		at := now
		e.status.Ticks++
		e.status.Subjects = run.subjects
		e.status.RowsWritten += uint64(run.rows)
		e.status.LastTickAt = &at
		e.status.LastError = ""
		e.status.LastErrorClass = ""
	} else {
		e.status.LastError = err.Error()
		e.status.LastErrorClass = class
	}
	e.stateMu.Unlock()

	e.logTickFinish(ctx, run, err)
}

func (e *Engine) setPhase(phase string) {
	e.stateMu.Lock()
	e.status.Phase = phase
	e.stateMu.Unlock()
}

// Status returns a copy of the engine status.
func (e *Engine) Status() Status {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	status := e.status
	if status.Mode == "" {
		status.Mode = e.tuning.Get().Simulation.Mode
	}
	status.Interval = e.tuning.Get().Simulation.Interval.String()
	return status
}

// StateFor returns the plant state that drives subject's readings in the current mode.
func (e *Engine) StateFor(subject snowflake.ID) (State, bool) {
	mode := e.tuning.Get().Simulation.Mode
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	if mode == config.SimulationModeShared {
		if e.shared == nil {
			return State{}, false
		}
		return *e.shared, true
	}
	state, ok := e.subjects[subject]
	return state, ok
}
