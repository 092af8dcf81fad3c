// Package chart renders closing-price series as PNG line charts and CSV.
package chart

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	gochart "github.com/wcharczuk/go-chart/v2"

	"coin-alarm-bot/internal/market"
)

// ErrTooFewPoints is returned when a series cannot be drawn.
var ErrTooFewPoints = errors.New("chart: need at least two points")

// Ranges offered by /chart, mapped to a kline interval and candle count.
var Ranges = map[string]struct {
	Interval string
	Limit    int
}{
	"1h": {Interval: "1m", Limit: 60},
	"4h": {Interval: "5m", Limit: 48},
	"1d": {Interval: "15m", Limit: 96},
	"7d": {Interval: "1h", Limit: 168},
}

// Downsample keeps at most max points, evenly spaced and always including both ends.
func Downsample(points []market.PricePoint, max int) []market.PricePoint {
	if max <= 1 || len(points) <= max {
		return points
	}

	result := make([]market.PricePoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

// WriteCSV writes one row per point: time (RFC3339, UTC), coin and close.
func WriteCSV(w io.Writer, coin string, points []market.PricePoint) error {
	writer := csv.NewWriter(w)

	if err := writer.Write([]string{"time", "coin", "close"}); err != nil {
		return err
	}
	for _, p := range points {
		record := []string{
			p.Time.UTC().Format(time.RFC3339),
			coin,
			strconv.FormatFloat(p.Price, 'f', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// RenderPNG draws the series as a line chart.
func RenderPNG(w io.Writer, coin, currency string, points []market.PricePoint) error {
	if len(points) < 2 {
		return ErrTooFewPoints
	}

	x := make([]time.Time, len(points))
	y := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.Time
		y[i] = p.Price
	}

	priceFormatter := func(v interface{}) string {
		return gochart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	change := market.PercentChange(points)

	graph := gochart.Chart{
		Title:  fmt.Sprintf("%s/%s  %+.2f%%", coin, currency, change),
		Width:  1024,
		Height: 576,
		XAxis: gochart.XAxis{
			ValueFormatter: gochart.TimeValueFormatter,
		},
		YAxis: gochart.YAxis{
			Name:           "Price (" + currency + ")",
			ValueFormatter: priceFormatter,
		},
		Series: []gochart.Series{
			gochart.TimeSeries{
				Name:    coin,
				XValues: x,
				YValues: y,
			},
		},
	}
	graph.Elements = []gochart.Renderable{gochart.Legend(&graph)}

	return graph.Render(gochart.PNG, w)
}
