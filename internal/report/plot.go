package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"factorlab/internal/domain"
)

// ErrNothingToPlot is returned by PlotEquity for an empty table.
var ErrNothingToPlot = errors.New("no rows to plot")

// DefaultPlotTitle is the chart title used by the demo run.
const DefaultPlotTitle = "Coca Cola Price Strategy Portfolio Value"

// PlotEquity renders the Total column of rows as a line chart and writes it
// to path. The image format follows the file extension (.png, .svg, .pdf).
func PlotEquity(rows []domain.PositionRow, title, path string) error {
	if len(rows) == 0 {
		return ErrNothingToPlot
	}

	pts := make(plotter.XYs, len(rows))
	for i, r := range rows {
		pts[i].X = float64(r.Timestamp.Unix())
		pts[i].Y = r.Total
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Date"
	p.Y.Label.Text = "Portfolio Value"
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02"}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("building equity line: %w", err)
	}
	p.Add(plotter.NewGrid(), line)
	p.Legend.Add("Portfolio Value", line)
	p.Legend.Top = true

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := p.Save(12*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("saving plot %s: %w", path, err)
	}
	return nil
}
