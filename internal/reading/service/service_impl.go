package service

import (
	"context"
	"math"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/plantcare/internal/clock"
	"github.com/smallbiznis/plantcare/internal/liveevents"
	obslogger "github.com/smallbiznis/plantcare/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/plantcare/internal/observability/metrics"
	readingdomain "github.com/smallbiznis/plantcare/internal/reading/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Repo    readingdomain.Repository
	Clock   clock.Clock
	Hub     *liveevents.Hub     `optional:"true"`
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    readingdomain.Repository
	clock   clock.Clock
	hub     *liveevents.Hub
	metrics *obsmetrics.Metrics
}

func New(p Params) readingdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("reading.service"),
		repo:    p.Repo,
		clock:   p.Clock,
		hub:     p.Hub,
		metrics: p.Metrics,
	}
}

func (s *Service) Add(ctx context.Context, subjectID snowflake.ID, req readingdomain.AddRequest) (*readingdomain.Reading, error) {
	if subjectID == 0 {
		return nil, readingdomain.ErrInvalidSubject
	}
	reading, err := s.buildReading(subjectID, req)
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.Insert(ctx, s.db, reading); err != nil {
		return nil, err
	}

	source := req.Source
	if source == "" {
		source = sourceFor(reading.SensorType)
	}
	s.metrics.RecordReadingsIngested(ctx, source, 1)
	s.hub.Publish(subjectID, liveevents.FromReading(*reading, source))
	obslogger.WithContext(ctx, s.log).Debug("reading stored",
		zap.Int64("reading_id", reading.ID),
		zap.String("sensor_type", reading.SensorType),
	)
	return reading, nil
}

func (s *Service) Latest(ctx context.Context, subjectID snowflake.ID) (*readingdomain.Reading, error) {
	if subjectID == 0 {
		return nil, readingdomain.ErrInvalidSubject
	}
	reading, err := s.repo.Latest(ctx, s.db, subjectID)
	if err != nil {
		return nil, err
	}
	if reading == nil {
		return nil, readingdomain.ErrNotFound
	}
	return reading, nil
}

func (s *Service) List(ctx context.Context, subjectID snowflake.ID, r readingdomain.TimeRange) ([]readingdomain.Reading, error) {
	if subjectID == 0 {
		return nil, readingdomain.ErrInvalidSubject
	}
	if r.Start != nil && r.End != nil && r.End.Before(*r.Start) {
		return nil, readingdomain.ErrInvalidRange
	}
	items, err := s.repo.List(ctx, s.db, subjectID, r)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []readingdomain.Reading{}
	}
	return items, nil
}

func (s *Service) buildReading(subjectID snowflake.ID, req readingdomain.AddRequest) (*readingdomain.Reading, error) {
	if !finite(req.Moisture) || *req.Moisture < 0 || *req.Moisture > 100 {
		return nil, readingdomain.ErrInvalidMoisture
	}
	if !finite(req.Temp) {
		return nil, readingdomain.ErrInvalidTemp
	}
	if !finite(req.Light) || *req.Light < 0 {
		return nil, readingdomain.ErrInvalidLight
	}

	timestamp := readingdomain.FormatTimestamp(s.clock.Now())
	if raw := strings.TrimSpace(req.Timestamp); raw != "" {
		parsed, err := parseTimestamp(raw)
		if err != nil {
			return nil, readingdomain.ErrInvalidTimestamp
		}
		timestamp = readingdomain.FormatTimestamp(parsed)
	}

	sensorType := strings.TrimSpace(req.SensorType)
	if sensorType == "" {
		sensorType = readingdomain.SensorTypeManual
	}

	return &readingdomain.Reading{
		UserID:     subjectID,
		Timestamp:  timestamp,
		Moisture:   *req.Moisture,
		Temp:       *req.Temp,
		Light:      *req.Light,
		Notes:      strings.TrimSpace(req.Notes),
		PlantID:    req.PlantID,
		SensorType: sensorType,
	}, nil
}

func finite(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}

func sourceFor(sensorType string) string {
	switch sensorType {
	case readingdomain.SensorTypeSimulated:
		return liveevents.SourceSimulation
	case readingdomain.SensorTypeMQTT:
		return liveevents.SourceMQTT
	default:
		return liveevents.SourceAPI
	}
}
