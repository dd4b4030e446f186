package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// palette gives each series a distinct line color.
var palette = []color.Color{
	color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
	color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
	color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
	color.RGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff},
	color.RGBA{R: 0x94, G: 0x67, B: 0xbd, A: 0xff},
	color.RGBA{R: 0x8c, G: 0x56, B: 0x4b, A: 0xff},
	color.RGBA{R: 0xe3, G: 0x77, B: 0xc2, A: 0xff},
	color.RGBA{R: 0x7f, G: 0x7f, B: 0x7f, A: 0xff},
}

// SavePlots renders static PNG charts for the run into outputDir and
// returns the files written. One chart for telemetry (temperature and
// CPU), one for per-stream throughput.
func (r *RunReport) SavePlots(outputDir string) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	var files []string

	if len(r.telemetry) > 0 {
		file, err := r.saveTelemetryPlot(outputDir)
		if err != nil {
			return files, err
		}
		files = append(files, file)
	}
	if len(r.rates) > 0 {
		file, err := r.saveThroughputPlot(outputDir)
		if err != nil {
			return files, err
		}
		files = append(files, file)
	}
	return files, nil
}

func (r *RunReport) saveTelemetryPlot(outputDir string) (string, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Run %s - Telemetry", r.Run.RunID)
	p.X.Label.Text = "Seconds"
	p.Y.Label.Text = "Temp (C) / CPU (%)"

	start := r.Run.StartedNanos
	tempPts := make(plotter.XYs, 0, len(r.telemetry))
	cssPts := make(plotter.XYs, 0, len(r.telemetry))
	mssPts := make(plotter.XYs, 0, len(r.telemetry))
	for _, t := range r.telemetry {
		x := float64(t.TakenNanos-start) / 1e9
		tempPts = append(tempPts, plotter.XY{X: x, Y: t.ChipTempC})
		cssPts = append(cssPts, plotter.XY{X: x, Y: t.CssCpu})
		mssPts = append(mssPts, plotter.XY{X: x, Y: t.MssCpu})
	}

	for i, series := range []struct {
		label string
		pts   plotter.XYs
	}{
		{"chip temp", tempPts},
		{"css cpu", cssPts},
		{"mss cpu", mssPts},
	} {
		line, err := plotter.NewLine(series.pts)
		if err != nil {
			return "", fmt.Errorf("plot %s: %w", series.label, err)
		}
		line.Width = vg.Points(1)
		line.Color = palette[i%len(palette)]
		p.Add(line)
		p.Legend.Add(series.label, line)
	}
	p.Legend.Top = true

	file := filepath.Join(outputDir, "telemetry.png")
	if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
		return "", fmt.Errorf("save telemetry plot: %w", err)
	}
	return file, nil
}

func (r *RunReport) saveThroughputPlot(outputDir string) (string, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Run %s - Stream Throughput", r.Run.RunID)
	p.X.Label.Text = "Seconds"
	p.Y.Label.Text = "Frames/sec"

	start := r.Run.StartedNanos
	byStream := make(map[string]plotter.XYs)
	for _, row := range r.rates {
		x := float64(row.TakenNanos-start) / 1e9
		byStream[row.Stream] = append(byStream[row.Stream], plotter.XY{X: x, Y: row.FramesPerSec})
	}

	// Streams slice is already sorted by name.
	for i, s := range r.Streams {
		line, err := plotter.NewLine(byStream[s.Stream])
		if err != nil {
			return "", fmt.Errorf("plot %s: %w", s.Stream, err)
		}
		line.Width = vg.Points(1)
		line.Color = palette[i%len(palette)]
		p.Add(line)
		p.Legend.Add(s.Stream, line)
	}
	p.Legend.Top = true

	file := filepath.Join(outputDir, "throughput.png")
	if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
		return "", fmt.Errorf("save throughput plot: %w", err)
	}
	return file, nil
}
