package main

import (
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/plantcare/internal/auth"
	"github.com/smallbiznis/plantcare/internal/authorization"
	"github.com/smallbiznis/plantcare/internal/clock"
	"github.com/smallbiznis/plantcare/internal/config"
	"github.com/smallbiznis/plantcare/internal/ingest"
	"github.com/smallbiznis/plantcare/internal/liveevents"
	"github.com/smallbiznis/plantcare/internal/migration"
	"github.com/smallbiznis/plantcare/internal/observability"
	"github.com/smallbiznis/plantcare/internal/plant"
	"github.com/smallbiznis/plantcare/internal/prediction"
	"github.com/smallbiznis/plantcare/internal/ratelimit"
	"github.com/smallbiznis/plantcare/internal/reading"
	"github.com/smallbiznis/plantcare/internal/report"
	"github.com/smallbiznis/plantcare/internal/server"
	"github.com/smallbiznis/plantcare/internal/simulation"
	"github.com/smallbiznis/plantcare/internal/weather"
	"github.com/smallbiznis/plantcare/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),

		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		liveevents.Module,

		// Functional Domains
		auth.Module,
		authorization.Module,
		ratelimit.Module,
		reading.Module,
		prediction.Module,
		plant.Module,
		weather.Module,
		report.Module,

		// Background workers
		simulation.Module,
		ingest.Module,

		server.Module,
	)
	app.Run()
}

// RegisterSnowflake uses SNOWFLAKE_NODE so replicas mint disjoint ids.
func RegisterSnowflake() (*snowflake.Node, error) {
	nodeID := int64(1)
	if raw := os.Getenv("SNOWFLAKE_NODE"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, err
		}
		nodeID = parsed
	}
	return snowflake.NewNode(nodeID)
}
