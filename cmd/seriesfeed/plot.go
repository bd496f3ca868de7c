package main

import (
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// plotPredictions draws one epoch of labels and model predictions against
// the row index of each window.
func plotPredictions(outDir string, labels, preds plotter.XYs) error {
	p := plot.New()
	p.Title.Text = "Labels (grey) vs predictions (blue)"
	p.X.Label.Text = "first row of window"
	p.Y.Label.Text = "label"

	lb, err := plotter.NewScatter(labels)
	if err != nil {
		return err
	}
	lb.GlyphStyle.Color = color.RGBA{R: 120, G: 120, B: 120, A: 180}
	lb.GlyphStyle.Radius = vg.Points(1.8)
	p.Add(lb)
	p.Legend.Add("labels", lb)

	pr, err := plotter.NewScatter(preds)
	if err != nil {
		return err
	}
	pr.GlyphStyle.Color = color.RGBA{R: 20, G: 80, B: 200, A: 220}
	pr.GlyphStyle.Radius = vg.Points(2.2)
	p.Add(pr)
	p.Legend.Add("model", pr)

	p.Add(plotter.NewGrid())
	all := make(plotter.XYs, 0, len(labels)+len(preds))
	all = append(append(all, labels...), preds...)
	p.X.Min, p.X.Max, p.Y.Min, p.Y.Max = autoRange(all)

	return savePlot(p, outDir, "labels_vs_predictions.png")
}

// plotLoss draws the per-step training loss.
func plotLoss(outDir string, losses []float64) error {
	p := plot.New()
	p.Title.Text = "Training loss"
	p.X.Label.Text = "step"
	p.Y.Label.Text = "mse"

	xys := make(plotter.XYs, len(losses))
	for i, l := range losses {
		xys[i] = plotter.XY{X: float64(i + 1), Y: l}
	}
	line, err := plotter.NewLine(xys)
	if err != nil {
		return err
	}
	line.Color = color.RGBA{R: 200, G: 30, B: 30, A: 255}
	line.Width = vg.Points(1)
	p.Add(line, plotter.NewGrid())
	p.X.Min, p.X.Max, p.Y.Min, p.Y.Max = autoRange(xys)

	return savePlot(p, outDir, "loss.png")
}

func savePlot(p *plot.Plot, outDir, name string) error {
	if err := ensureDir(outDir); err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 6*vg.Inch, filepath.Join(outDir, name))
}

// autoRange computes padded min/max for X and Y for a set of points.
func autoRange(xs plotter.XYs) (xmin, xmax, ymin, ymax float64) {
	if len(xs) == 0 {
		return -1, 1, -1, 1
	}
	xmin, xmax = math.Inf(1), math.Inf(-1)
	ymin, ymax = math.Inf(1), math.Inf(-1)
	for _, p := range xs {
		xmin, xmax = min(xmin, p.X), max(xmax, p.X)
		ymin, ymax = min(ymin, p.Y), max(ymax, p.Y)
	}
	padx := (xmax - xmin) * 0.06
	pady := (ymax - ymin) * 0.06
	if padx == 0 {
		padx = 1.0
	}
	if pady == 0 {
		pady = 1.0
	}
	return xmin - padx, xmax + padx, ymin - pady, ymax + pady
}

func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0755)
}
