package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	authdomain "github.com/smallbiznis/plantcare/internal/auth/domain"
	"github.com/smallbiznis/plantcare/internal/auth/session"
	"github.com/smallbiznis/plantcare/internal/authorization"
	"github.com/smallbiznis/plantcare/internal/config"
	"github.com/smallbiznis/plantcare/internal/liveevents"
	"github.com/smallbiznis/plantcare/internal/observability"
	obsmiddleware "github.com/smallbiznis/plantcare/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/plantcare/internal/observability/metrics"
	obstracing "github.com/smallbiznis/plantcare/internal/observability/tracing"
	plantdomain "github.com/smallbiznis/plantcare/internal/plant/domain"
	"github.com/smallbiznis/plantcare/internal/prediction"
	"github.com/smallbiznis/plantcare/internal/ratelimit"
	readingdomain "github.com/smallbiznis/plantcare/internal/reading/domain"
	"github.com/smallbiznis/plantcare/internal/report"
	"github.com/smallbiznis/plantcare/internal/simulation"
	"github.com/smallbiznis/plantcare/internal/weather"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

const shutdownTimeout = 10 * time.Second

const (
	routeHealth  = "/health"
	routeMetrics = "/metrics"
	routeStream  = "/api/readings/stream"
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
		QuietRoutes:     []string{routeHealth, routeMetrics, routeStream},
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET(routeHealth, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET(routeMetrics, gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	log = log.Named("http.server")
	srv := newHTTPServer(cfg.HTTPAddr, r)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("http server listening", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

// newHTTPServer derives request contexts from a base context that Shutdown cancels,
// so open event streams end instead of holding shutdown until its timeout.
func newHTTPServer(addr string, handler http.Handler) *http.Server {
	base, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
	srv.RegisterOnShutdown(cancel)
	return srv
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	authsvc    authdomain.Service
	sessions   *session.Manager
	authzSvc   authorization.Service
	readingSvc readingdomain.Service
	predictor  *prediction.Service
	plantSvc   plantdomain.Service
	weather    *weather.Client
	reports    *report.Service
	simulator  *simulation.Engine
	tuning     *config.TuningHolder
	hub        *liveevents.Hub
	limiter    *ratelimit.ReadingsLimiter
	obsMetrics *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	Authsvc    authdomain.Service
	Sessions   *session.Manager
	AuthzSvc   authorization.Service
	ReadingSvc readingdomain.Service
	Predictor  *prediction.Service
	PlantSvc   plantdomain.Service
	Weather    *weather.Client
	Reports    *report.Service
	Simulator  *simulation.Engine         `optional:"true"`
	Tuning     *config.TuningHolder
	Hub        *liveevents.Hub            `optional:"true"`
	Limiter    *ratelimit.ReadingsLimiter `optional:"true"`
	ObsMetrics *obsmetrics.Metrics        `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("http.server"),
		authsvc:    p.Authsvc,
		sessions:   p.Sessions,
		authzSvc:   p.AuthzSvc,
		readingSvc: p.ReadingSvc,
		predictor:  p.Predictor,
		plantSvc:   p.PlantSvc,
		weather:    p.Weather,
		reports:    p.Reports,
		simulator:  p.Simulator,
		tuning:     p.Tuning,
		hub:        p.Hub,
		limiter:    p.Limiter,
		obsMetrics: p.ObsMetrics,
	}

	svc.registerAuthRoutes()
	svc.registerReadingRoutes()
	svc.registerPlantRoutes()
	svc.registerSimulationRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	api := s.engine.Group("/api")

	api.POST("/register", s.Register)
	api.POST("/login", s.Login)
	api.POST("/logout", s.Logout)
	api.GET("/me", s.AuthRequired(), s.Me)
	api.POST("/set_location", s.AuthRequired(), s.SetLocation)
	api.GET("/weather", s.AuthRequired(), s.Weather)
}

func (s *Server) registerReadingRoutes() {
	api := s.engine.Group("/api", s.AuthRequired())

	api.POST("/add_reading", s.ReadingsRateLimit(), s.AddReading)
	api.GET("/latest_reading", s.LatestReading)
	api.GET("/readings", s.ListReadings)
	api.POST("/import_readings", s.ImportReadings)
	api.GET("/export_readings", s.ExportReadings)
	api.GET("/readings/stream", s.StreamReadings)
	api.GET("/readings/report", s.ReadingsReport)
	api.GET("/predict_watering", s.PredictWatering)
}

func (s *Server) registerPlantRoutes() {
	api := s.engine.Group("/api/plants", s.AuthRequired())

	api.GET("", s.ListPlants)
	api.POST("", s.CreatePlant)
	api.GET("/:id", s.GetPlant)
}

func (s *Server) registerSimulationRoutes() {
	api := s.engine.Group("/api/simulation", s.AuthRequired())

	api.GET("/status", s.authorize(authorization.ObjectSimulation, authorization.ActionSimulationRead), s.SimulationStatus)
	api.POST("/tick", s.authorize(authorization.ObjectSimulation, authorization.ActionSimulationTrigger), s.SimulationTick)
	api.GET("/tuning", s.authorize(authorization.ObjectTuning, authorization.ActionTuningRead), s.SimulationTuning)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
