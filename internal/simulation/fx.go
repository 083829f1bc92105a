package simulation

import (
	"context"

	"github.com/smallbiznis/plantcare/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("simulation",
	fx.Provide(NewEngine),
	fx.Invoke(Run),
)

// Run starts the tick loop after storage is up and stops it before the database closes.
func Run(lc fx.Lifecycle, cfg config.Config, engine *Engine, log *zap.Logger) {
	if !cfg.Simulation.Enabled {
		engine.setPhase(PhaseDisabled)
		log.Info("sensor simulation disabled")
		return
	}

	var (
		cancel context.CancelFunc
		done   chan struct{}
	)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			done = make(chan struct{})

			go func() {
				defer close(done)
				engine.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel == nil {
				return nil
			}
			cancel()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}
