// Package report builds post-run reports from recorded stress runs.
// It summarises telemetry and stream throughput with gonum and renders
// interactive HTML charts (go-echarts) or static PNG plots (gonum/plot).
package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/oakstress/internal/db"
)

// SeriesStats summarises one numeric time series.
type SeriesStats struct {
	Count  int
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
	P95    float64
}

// Summarize computes descriptive statistics for a series.
// Returns the zero value when the series is empty.
func Summarize(values []float64) SeriesStats {
	if len(values) == 0 {
		return SeriesStats{}
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	s := SeriesStats{
		Count: len(values),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Mean:  stat.Mean(sorted, nil),
		P95:   stat.Quantile(0.95, stat.Empirical, sorted, nil),
	}
	if len(sorted) > 1 {
		s.StdDev = stat.StdDev(sorted, nil)
	}
	return s
}

// StreamSummary summarises the throughput of one output stream.
type StreamSummary struct {
	Stream      string
	FPS         SeriesStats
	MBPerSec    SeriesStats
	TotalFrames int64
}

// RunReport is everything known about a finished (or live) run.
type RunReport struct {
	Run       db.Run
	ChipTempC SeriesStats
	CssCpu    SeriesStats
	MssCpu    SeriesStats
	DdrUsed   SeriesStats // MiB
	Streams   []StreamSummary
	Events    []db.EventRow

	telemetry []db.TelemetryRow
	rates     []db.RateRow
}

// Build loads a run and computes its report.
func Build(d *db.DB, runID string) (*RunReport, error) {
	run, err := d.GetRun(runID)
	if err != nil {
		return nil, err
	}
	telemetry, err := d.TelemetryForRun(runID)
	if err != nil {
		return nil, fmt.Errorf("load telemetry: %w", err)
	}
	rates, err := d.RatesForRun(runID, "")
	if err != nil {
		return nil, fmt.Errorf("load rates: %w", err)
	}
	events, err := d.EventsForRun(runID)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}

	r := &RunReport{
		Run:       *run,
		Events:    events,
		telemetry: telemetry,
		rates:     rates,
	}

	temps := make([]float64, 0, len(telemetry))
	css := make([]float64, 0, len(telemetry))
	mss := make([]float64, 0, len(telemetry))
	ddr := make([]float64, 0, len(telemetry))
	for _, t := range telemetry {
		temps = append(temps, t.ChipTempC)
		css = append(css, t.CssCpu)
		mss = append(mss, t.MssCpu)
		ddr = append(ddr, float64(t.DdrUsedBytes)/(1024*1024))
	}
	r.ChipTempC = Summarize(temps)
	r.CssCpu = Summarize(css)
	r.MssCpu = Summarize(mss)
	r.DdrUsed = Summarize(ddr)

	byStream := make(map[string][]db.RateRow)
	for _, rr := range rates {
		byStream[rr.Stream] = append(byStream[rr.Stream], rr)
	}
	names := make([]string, 0, len(byStream))
	for name := range byStream {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rows := byStream[name]
		fps := make([]float64, 0, len(rows))
		mbps := make([]float64, 0, len(rows))
		var total int64
		for _, row := range rows {
			fps = append(fps, row.FramesPerSec)
			mbps = append(mbps, row.MBPerSec)
			if row.TotalFrames > total {
				total = row.TotalFrames
			}
		}
		r.Streams = append(r.Streams, StreamSummary{
			Stream:      name,
			FPS:         Summarize(fps),
			MBPerSec:    Summarize(mbps),
			TotalFrames: total,
		})
	}

	return r, nil
}

// WriteText writes a plain-text summary suitable for the terminal.
func (r *RunReport) WriteText(w io.Writer) error {
	duration := r.Run.Duration()
	fmt.Fprintf(w, "Run %s\n", r.Run.RunID)
	fmt.Fprintf(w, "  Device:   %s (%s) mxid=%s usb=%s\n", r.Run.BoardName, r.Run.ProductName, r.Run.MxID, r.Run.UsbSpeed)
	fmt.Fprintf(w, "  Started:  %s\n", r.Run.Started().Format(time.RFC3339))
	if duration > 0 {
		fmt.Fprintf(w, "  Duration: %s\n", duration.Round(time.Second))
	} else {
		fmt.Fprintf(w, "  Duration: still running\n")
	}
	fmt.Fprintln(w)

	if r.ChipTempC.Count > 0 {
		fmt.Fprintln(w, "Telemetry:")
		writeStatLine(w, "chip temp (C)", r.ChipTempC)
		writeStatLine(w, "css cpu (%)", r.CssCpu)
		writeStatLine(w, "mss cpu (%)", r.MssCpu)
		writeStatLine(w, "ddr used (MiB)", r.DdrUsed)
		fmt.Fprintln(w)
	}

	if len(r.Streams) > 0 {
		fmt.Fprintln(w, "Streams:")
		for _, s := range r.Streams {
			fmt.Fprintf(w, "  %-24s %8.1f fps avg (min %.1f, max %.1f, p95 %.1f)  %.2f MB/s avg  %d frames\n",
				s.Stream, s.FPS.Mean, s.FPS.Min, s.FPS.Max, s.FPS.P95, s.MBPerSec.Mean, s.TotalFrames)
		}
		fmt.Fprintln(w)
	}

	if len(r.Events) > 0 {
		fmt.Fprintln(w, "Events:")
		for _, e := range r.Events {
			fmt.Fprintf(w, "  %s  %-8s %s\n", e.Taken().Format("15:04:05"), e.Kind, e.Detail)
		}
	}
	return nil
}

func writeStatLine(w io.Writer, label string, s SeriesStats) {
	fmt.Fprintf(w, "  %-16s mean %8.2f  stddev %7.2f  min %8.2f  max %8.2f  p95 %8.2f  (n=%d)\n",
		label, s.Mean, s.StdDev, s.Min, s.Max, s.P95, s.Count)
}
