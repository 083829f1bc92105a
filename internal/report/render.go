package report

import (
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/smallbiznis/plantcare/internal/prediction"
	readingdomain "github.com/smallbiznis/plantcare/internal/reading/domain"
)

// Data is everything one readings report shows.
type Data struct {
	Username     string
	Location     string
	GeneratedAt  string
	RangeLabel   string
	TotalInRange int
	Readings     []readingdomain.Reading
	Prediction   *prediction.Result
}

var (
	headerText = props.Text{Style: fontstyle.Bold, Size: 9}
	cellText   = props.Text{Size: 8}
	numberText = props.Text{Size: 8, Align: align.Right}
	numberHead = props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}
)

// Render lays the report out and returns the PDF bytes.
func Render(data Data) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(8, "Plant readings report", props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, data.GeneratedAt, props.Text{Size: 8, Align: align.Right, Top: 4}),
	)
	m.AddRow(14,
		col.New(6).Add(
			text.New("Owner: "+data.Username, props.Text{Size: 9}),
			text.New("Location: "+orDash(data.Location), props.Text{Size: 9, Top: 5}),
		),
		col.New(6).Add(
			text.New("Range: "+data.RangeLabel, props.Text{Size: 9, Align: align.Right}),
			text.New(fmt.Sprintf("Readings: %d shown of %d", len(data.Readings), data.TotalInRange), props.Text{Size: 9, Align: align.Right, Top: 5}),
		),
	)

	m.AddRow(16, text.NewCol(12, predictionSummary(data.Prediction), props.Text{
		Size:  11,
		Style: fontstyle.Bold,
		Top:   4,
	}))

	m.AddRow(8,
		text.NewCol(4, "Timestamp (UTC)", headerText),
		text.NewCol(2, "Moisture %", numberHead),
		text.NewCol(2, "Temp °C", numberHead),
		text.NewCol(2, "Light lx", numberHead),
		text.NewCol(2, "Sensor", headerText),
	)
	for _, r := range data.Readings {
		m.AddRow(6,
			text.NewCol(4, r.Timestamp, cellText),
			text.NewCol(2, fmt.Sprintf("%.1f", r.Moisture), numberText),
			text.NewCol(2, fmt.Sprintf("%.1f", r.Temp), numberText),
			text.NewCol(2, fmt.Sprintf("%.0f", r.Light), numberText),
			text.NewCol(2, r.SensorType, cellText),
		)
	}
	if len(data.Readings) == 0 {
		m.AddRow(8, text.NewCol(12, "No readings in this range.", cellText))
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}

func predictionSummary(result *prediction.Result) string {
	if result == nil {
		return "Next watering: unavailable"
	}
	if result.PredictedTime == nil {
		return "Next watering: " + result.Message
	}
	summary := "Next watering: " + *result.PredictedTime
	if result.HoursToThreshold != nil {
		summary += fmt.Sprintf(" (in %.1f h, threshold %.0f%%)", *result.HoursToThreshold, result.Threshold)
	}
	return summary
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
