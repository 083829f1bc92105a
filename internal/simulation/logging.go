package simulation

import (
	"context"
	"errors"
	"time"

	obscontext "github.com/smallbiznis/plantcare/internal/observability/context"
	obslogger "github.com/smallbiznis/plantcare/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/plantcare/internal/observability/metrics"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type tickRun struct {
	runID     string
	tick      uint64
	mode      string
	startedAt time.Time
	subjects  int
	rows      int
	watered   int
}

func (e *Engine) withLogContext(ctx context.Context, runID string) context.Context {
	ctx = obscontext.WithActor(ctx, obscontext.ActorSimulator, "sensor-simulation")
	return obscontext.WithRunID(ctx, runID)
}

func (e *Engine) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, e.log)
}

func (e *Engine) logTickStart(ctx context.Context, run *tickRun) {
	if run == nil {
		return
	}
	e.logger(ctx).Debug("simulation.tick.start",
		zap.Uint64("tick", run.tick),
		zap.String("mode", run.mode),
	)
}

func (e *Engine) logTickFinish(ctx context.Context, run *tickRun, err error) {
	if run == nil {
		return
	}
	fields := []zap.Field{
		zap.Uint64("tick", run.tick),
		zap.String("mode", run.mode),
		zap.Int("subjects", run.subjects),
		zap.Int("rows", run.rows),
		zap.Int("watered", run.watered),
		zap.Int64("duration_ms", time.Since(run.startedAt).Milliseconds()),
	}
	level := zapcore.InfoLevel
	if err != nil {
		class := ClassOf(err)
		fields = append(fields, zap.String("error_class", class), zap.Error(err))
		switch class {
		case obsmetrics.SimulationErrorProgramming:
			level = zapcore.ErrorLevel
			var panicErr *PanicError
			if errors.As(err, &panicErr) {
				fields = append(fields, zap.ByteString("stack", panicErr.Stack))
			}
		case obsmetrics.SimulationErrorCancelled:
			level = zapcore.DebugLevel
		default:
			level = zapcore.WarnLevel
		}
	}
	if ce := e.logger(ctx).Check(level, "simulation.tick.finish"); ce != nil {
		ce.Write(fields...)
	}
}
