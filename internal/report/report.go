package report

import (
	"errors"
	"fmt"
	"math"

	"github.com/sbinet/npyio/npz"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ErrEmptySeries is returned when there is nothing to plot.
var ErrEmptySeries = errors.New("empty series")

// Archive array names.
const (
	archiveAP    = "APS"
	archiveSteps = "check_numbel"
)

// #region series
// Series is the AP trend in evaluation order.
type Series struct {
	Steps []float64
	AP    []float64
}

// Append adds one evaluated checkpoint.
func (s *Series) Append(step, ap float64) {
	s.Steps = append(s.Steps, step)
	s.AP = append(s.AP, ap)
}

// Len returns the number of points.
func (s Series) Len() int {
	return len(s.Steps)
}

// Best returns the index of the highest finite AP, or -1 when there is none.
func (s Series) Best() int {
	best := -1
	for i, v := range s.AP {
		if !Finite(v) {
			continue
		}
		if best < 0 || v > s.AP[best] {
			best = i
		}
	}
	return best
}

// Finite reports whether v is neither NaN nor infinite.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// #endregion series

// #region plot
// WritePlot renders AP against step as a PNG line chart.
// The image format follows the path extension.
func WritePlot(path string, s Series) error {
	if s.Len() == 0 {
		return ErrEmptySeries
	}
	if len(s.Steps) != len(s.AP) {
		return fmt.Errorf("plot: %d steps but %d AP values", len(s.Steps), len(s.AP))
	}

	p := plot.New()
	p.Title.Text = "AP by checkpoint"
	p.X.Label.Text = "step"
	p.Y.Label.Text = "AP"

	// non-finite points stay in the archive but are left off the chart
	pts := make(plotter.XYs, 0, s.Len())
	for i := range s.Steps {
		if !Finite(s.Steps[i]) || !Finite(s.AP[i]) {
			continue
		}
		pts = append(pts, plotter.XY{X: s.Steps[i], Y: s.AP[i]})
	}
	if len(pts) > 0 {
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("plot line: %w", err)
		}
		line.LineStyle.Width = vg.Points(2)
		p.Add(line)
		p.Legend.Add("plot figure", line)
	}

	if err := p.Save(4*vg.Inch, 3*vg.Inch, path); err != nil {
		return fmt.Errorf("save plot %s: %w", path, err)
	}
	return nil
}

// #endregion plot

// #region archive
// WriteArchive stores the series as an .npz with arrays APS and check_numbel.
func WriteArchive(path string, s Series) error {
	w, err := npz.Create(path)
	if err != nil {
		return fmt.Errorf("create archive %s: %w", path, err)
	}
	if err := w.Write(archiveAP, s.AP); err != nil {
		w.Close()
		return fmt.Errorf("write %s: %w", archiveAP, err)
	}
	if err := w.Write(archiveSteps, s.Steps); err != nil {
		w.Close()
		return fmt.Errorf("write %s: %w", archiveSteps, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close archive %s: %w", path, err)
	}
	return nil
}

// ReadArchive loads a series written by WriteArchive.
func ReadArchive(path string) (Series, error) {
	r, err := npz.Open(path)
	if err != nil {
		return Series{}, fmt.Errorf("open archive %s: %w", path, err)
	}
	defer r.Close()

	var s Series
	if err := r.Read(archiveAP, &s.AP); err != nil {
		return Series{}, fmt.Errorf("read %s: %w", archiveAP, err)
	}
	if err := r.Read(archiveSteps, &s.Steps); err != nil {
		return Series{}, fmt.Errorf("read %s: %w", archiveSteps, err)
	}
	return s, nil
}

// #endregion archive

// #region write-all
// WriteAll rewrites the chart and the archive for the same series.
// The two files are independent and are written concurrently.
func WriteAll(plotPath, archivePath string, s Series) error {
	var g errgroup.Group
	g.Go(func() error {
		return WritePlot(plotPath, s)
	})
	g.Go(func() error {
		return WriteArchive(archivePath, s)
	})
	return g.Wait()
}

// #endregion write-all
