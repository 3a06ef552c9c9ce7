package sim

import (
	"fmt"
	"image/color"
	"math"
	"path/filepath"
	"time"

	"github.com/milosgajdos/go-soc/fusion"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// NewSOCPlot creates plot of SOC estimates and, if present, SOC labels over time.
// It returns error if the result is nil or its series do not match its timestamps.
func NewSOCPlot(res *fusion.Result) (*plot.Plot, error) {
	if res == nil || len(res.SOC) == 0 || len(res.SOC) != len(res.Time) {
		return nil, fmt.Errorf("invalid result supplied")
	}

	p := plot.New()
	p.Title.Text = "SOC"
	p.X.Label.Text = "time [s]"
	p.Y.Label.Text = "SOC [%]"
	p.Legend.Top = true

	est, err := plotter.NewLine(makePoints(res.Time, res.SOC, 100))
	if err != nil {
		return nil, err
	}
	est.LineStyle.Color = color.RGBA{R: 255, B: 128, A: 255}
	est.LineStyle.Width = vg.Points(1.5)

	p.Add(est)
	p.Legend.Add("estimate", est)

	if len(res.Labels) == len(res.Time) {
		labels, err := plotter.NewScatter(makePoints(res.Time, res.Labels, 100))
		if err != nil {
			return nil, fmt.Errorf("failed to create scatter: %v", err)
		}
		labels.GlyphStyle.Color = color.RGBA{R: 169, G: 169, B: 169, A: 255}
		labels.Shape = draw.CrossGlyph{}
		labels.GlyphStyle.Radius = vg.Points(1)

		p.Add(labels)
		p.Legend.Add("label", labels)
	}

	return p, nil
}

// NewVoltagePlot creates plot of actual and predicted terminal voltage over time.
func NewVoltagePlot(res *fusion.Result) (*plot.Plot, error) {
	if res == nil || len(res.Time) < 2 || len(res.VoltageActual) != len(res.Time)-1 {
		return nil, fmt.Errorf("invalid result supplied")
	}

	steps := res.Time[1:]

	p := plot.New()
	p.Title.Text = "Terminal Voltage"
	p.X.Label.Text = "time [s]"
	p.Y.Label.Text = "voltage [V]"
	p.Legend.Top = true

	actual, err := plotter.NewScatter(makePoints(steps, res.VoltageActual, 1))
	if err != nil {
		return nil, err
	}
	actual.GlyphStyle.Color = color.RGBA{G: 255, A: 128}
	actual.GlyphStyle.Radius = vg.Points(1)

	p.Add(actual)
	p.Legend.Add("measurement", actual)

	pred, err := plotter.NewLine(makePoints(steps, res.VoltagePredicted, 1))
	if err != nil {
		return nil, err
	}
	pred.LineStyle.Color = color.RGBA{R: 255, B: 128, A: 255}

	p.Add(pred)
	p.Legend.Add("predicted", pred)

	return p, nil
}

// SavePlots saves SOC and voltage plots of res as PNG files into dir and returns their paths.
func SavePlots(res *fusion.Result, dir string) ([]string, error) {
	var paths []string

	socPlot, err := NewSOCPlot(res)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "soc.png")
	if err := socPlot.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return nil, fmt.Errorf("failed to save plot: %w", err)
	}
	paths = append(paths, path)

	// a single sample has no voltage steps to plot
	if len(res.Time) < 2 {
		return paths, nil
	}

	voltPlot, err := NewVoltagePlot(res)
	if err != nil {
		return nil, err
	}
	path = filepath.Join(dir, "voltage.png")
	if err := voltPlot.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return nil, fmt.Errorf("failed to save plot: %w", err)
	}
	paths = append(paths, path)

	return paths, nil
}

// makePoints returns points of ys scaled by scale against seconds elapsed since ts[0].
// NaN values are skipped.
func makePoints(ts []time.Time, ys []float64, scale float64) plotter.XYs {
	pts := make(plotter.XYs, 0, len(ys))
	for i, y := range ys {
		if math.IsNaN(y) {
			continue
		}
		pts = append(pts, plotter.XY{
			X: ts[i].Sub(ts[0]).Seconds(),
			Y: y * scale,
		})
	}

	return pts
}
