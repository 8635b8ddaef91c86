// Package charts projects record history into chart points and renders PNG
// reports from them.
package charts

import (
	"bytes"
	"fmt"
	"time"

	"github.com/wcharczuk/go-chart/v2"

	"finova/internal/core"
)

// Point is one chart datum: a record's date and amount.
type Point struct {
	Label  string
	Date   time.Time
	Amount float64
}

// Points projects records to chart points, preserving the input order
// (newest first, as the mirror stores them). No aggregation: one record,
// one point, even when dates repeat.
func Points(records []core.Record) []Point {
	points := make([]Point, 0, len(records))
	for _, rec := range records {
		points = append(points, Point{
			Label:  shortDate(rec.Date),
			Date:   rec.Date,
			Amount: rec.Amount.Float64(),
		})
	}
	return points
}

// shortDate formats a date the way the history views label their axes,
// e.g. "3/7/2026".
func shortDate(t time.Time) string {
	return fmt.Sprintf("%d/%d/%d", int(t.Month()), t.Day(), t.Year())
}

// Renderer draws record history charts.
type Renderer struct {
	Width  int
	Height int
}

// NewRenderer returns a renderer with the default report dimensions.
func NewRenderer() *Renderer {
	return &Renderer{Width: 1200, Height: 600}
}

// Render draws one kind's points as a PNG time series. Points arrive newest
// first; the series is drawn oldest to newest. Returns nil bytes when there
// is nothing to draw.
func (r *Renderer) Render(kind core.Kind, points []Point) ([]byte, error) {
	if len(points) == 0 {
		return nil, nil
	}

	xValues := make([]time.Time, len(points))
	yValues := make([]float64, len(points))
	for i, p := range points {
		// Reverse into chronological order.
		j := len(points) - 1 - i
		xValues[j] = p.Date
		yValues[j] = p.Amount
	}

	graph := chart.Chart{
		Title:  string(kind) + " history",
		Width:  r.Width,
		Height: r.Height,
		Background: chart.Style{
			Padding: chart.Box{
				Top:    50,
				Left:   50,
				Right:  50,
				Bottom: 50,
			},
			FillColor: chart.ColorWhite,
		},
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatterWithFormat("1/2/2006"),
			Style: chart.Style{
				FontSize:  12,
				FontColor: chart.ColorBlack,
			},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				return fmt.Sprintf("%.2f", v.(float64))
			},
			Style: chart.Style{
				FontSize:  12,
				FontColor: chart.ColorBlack,
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    string(kind),
				XValues: xValues,
				YValues: yValues,
				Style: chart.Style{
					StrokeColor: chart.ColorBlue,
					StrokeWidth: 2,
				},
			},
		},
	}

	graph.Elements = []chart.Renderable{
		chart.Legend(&graph, chart.Style{
			FontSize:  12,
			FontColor: chart.ColorBlack,
		}),
	}

	var buffer bytes.Buffer
	if err := graph.Render(chart.PNG, &buffer); err != nil {
		return nil, fmt.Errorf("render %s chart: %w", kind, err)
	}
	return buffer.Bytes(), nil
}
