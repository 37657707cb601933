// Package visualization produces diagnostic views of ring detection:
// profile plots of the two estimator cuts and overlays of fitted rings.
package visualization

import (
	"fmt"
	"image/color"
	"os"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"fpringfit/pkg/peaks"
)

// Profile is one 1D cut through the frame with its detected intervals
type Profile struct {
	Title     string
	Values    []float64
	Intervals []peaks.Interval
}

var (
	lineColor     = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	intervalColor = color.RGBA{R: 255, G: 127, B: 14, A: 96}
)

// NewProfilePlot builds a line plot of prof with each peak interval shaded
func NewProfilePlot(prof Profile) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = prof.Title
	p.X.Label.Text = "pixel"
	p.Y.Label.Text = "intensity"

	if len(prof.Values) == 0 {
		return p, nil
	}

	pts := make(plotter.XYs, len(prof.Values))
	for i, v := range prof.Values {
		pts[i] = plotter.XY{X: float64(i), Y: v}
	}

	top := floats.Max(prof.Values)
	bottom := floats.Min(prof.Values)
	for _, iv := range prof.Intervals {
		x0 := float64(iv.Start) - 0.5
		x1 := float64(iv.End) + 0.5
		poly, err := plotter.NewPolygon(plotter.XYs{
			{X: x0, Y: bottom}, {X: x1, Y: bottom}, {X: x1, Y: top}, {X: x0, Y: top},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create interval polygon: %w", err)
		}
		poly.Color = intervalColor
		poly.LineStyle.Width = 0
		p.Add(poly)
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile line: %w", err)
	}
	line.Color = lineColor
	line.Width = vg.Points(1)
	p.Add(line)

	return p, nil
}

// SaveProfilePlot stacks one plot per profile vertically and writes them
// to a single PNG file
func SaveProfilePlot(path string, profiles []Profile) error {
	if len(profiles) == 0 {
		return fmt.Errorf("no profiles to plot")
	}

	plots := make([][]*plot.Plot, len(profiles))
	for i, prof := range profiles {
		p, err := NewProfilePlot(prof)
		if err != nil {
			return err
		}
		plots[i] = []*plot.Plot{p}
	}

	width := 12 * vg.Inch
	height := vg.Length(len(profiles)) * 4 * vg.Inch
	img := vgimg.New(width, height)
	dc := draw.New(img)

	tiles := draw.Tiles{
		Rows: len(profiles),
		Cols: 1,
		PadX: vg.Millimeter,
		PadY: vg.Millimeter,
	}
	canvases := plot.Align(plots, tiles, dc)
	for i := range plots {
		plots[i][0].Draw(canvases[i][0])
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create plot file: %w", err)
	}
	defer file.Close()

	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(file); err != nil {
		return fmt.Errorf("failed to write plot: %w", err)
	}
	return nil
}
