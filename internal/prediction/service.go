package prediction

import (
	"context"
	"errors"
	"slices"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/plantcare/internal/config"
	obslogger "github.com/smallbiznis/plantcare/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/plantcare/internal/observability/metrics"
	readingdomain "github.com/smallbiznis/plantcare/internal/reading/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("prediction",
	fx.Provide(NewService),
)

var ErrInvalidSubject = errors.New("invalid_subject")

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Repo    readingdomain.Repository
	Tuning  *config.TuningHolder
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    readingdomain.Repository
	tuning  *config.TuningHolder
	metrics *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("prediction"),
		repo:    p.Repo,
		tuning:  p.Tuning,
		metrics: p.Metrics,
	}
}

// Config returns the thresholds currently in force.
func (s *Service) Config() Config {
	t := s.tuning.Get().Prediction
	return Config{Threshold: t.Threshold, Lookback: t.Lookback}
}

// Predict reads the subject's most recent readings once and estimates the next watering time.
func (s *Service) Predict(ctx context.Context, subjectID snowflake.ID) (*Result, error) {
	if subjectID == 0 {
		return nil, ErrInvalidSubject
	}
	cfg := s.Config()

	recent, err := s.repo.ListRecent(ctx, s.db, subjectID, cfg.Lookback)
	if err != nil {
		return nil, err
	}
	slices.Reverse(recent)

	result, err := Estimate(recent, cfg)
	if err != nil {
		obslogger.WithContext(ctx, s.log).Error("prediction failed on stored data", zap.Error(err))
		return nil, err
	}
	s.metrics.RecordPrediction(ctx, result.Outcome)
	return &result, nil
}
