// Package report renders a subject's readings and watering outlook as a PDF.
package report

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/plantcare/internal/auth/domain"
	"github.com/smallbiznis/plantcare/internal/clock"
	"github.com/smallbiznis/plantcare/internal/prediction"
	readingdomain "github.com/smallbiznis/plantcare/internal/reading/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("report",
	fx.Provide(NewService),
)

// MaxRows caps the table; the newest readings in range are kept.
const MaxRows = 200

type Params struct {
	fx.In

	Log        *zap.Logger
	Readings   readingdomain.Service
	Prediction *prediction.Service
	Users      authdomain.Service
	Clock      clock.Clock
}

type Service struct {
	log        *zap.Logger
	readings   readingdomain.Service
	prediction *prediction.Service
	users      authdomain.Service
	clock      clock.Clock
}

func NewService(p Params) *Service {
	return &Service{
		log:        p.Log.Named("report"),
		readings:   p.Readings,
		prediction: p.Prediction,
		users:      p.Users,
		clock:      p.Clock,
	}
}

// Readings renders the report for subject over r.
func (s *Service) Readings(ctx context.Context, subject snowflake.ID, r readingdomain.TimeRange) ([]byte, error) {
	user, err := s.users.Get(ctx, subject)
	if err != nil {
		return nil, err
	}
	items, err := s.readings.List(ctx, subject, r)
	if err != nil {
		return nil, err
	}

	data := Data{
		Username:     user.Username,
		Location:     user.Location,
		GeneratedAt:  "Generated " + s.clock.Now().UTC().Format(readingdomain.TimestampLayout) + " UTC",
		RangeLabel:   rangeLabel(r),
		TotalInRange: len(items),
		Readings:     items,
	}
	if len(items) > MaxRows {
		data.Readings = items[len(items)-MaxRows:]
	}

	result, err := s.prediction.Predict(ctx, subject)
	switch {
	case err == nil:
		data.Prediction = result
	case errors.Is(err, context.Canceled):
		return nil, err
	default:
		s.log.Warn("report rendered without prediction", zap.Error(err))
	}

	return Render(data)
}

func rangeLabel(r readingdomain.TimeRange) string {
	format := func(t *time.Time, open string) string {
		if t == nil {
			return open
		}
		return readingdomain.FormatTimestamp(*t)
	}
	return format(r.Start, "beginning") + " to " + format(r.End, "now")
}
