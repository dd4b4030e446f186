package report

import (
	"fmt"
	"io"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// RenderHTML writes an interactive HTML report with line charts for
// chip temperature, CPU load, memory, and per-stream throughput.
func (r *RunReport) RenderHTML(w io.Writer) error {
	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("Stress run %s", r.Run.RunID)

	if len(r.telemetry) > 0 {
		page.AddCharts(r.temperatureChart(), r.cpuChart(), r.memoryChart())
	}
	if len(r.rates) > 0 {
		page.AddCharts(r.throughputChart())
	}
	return page.Render(w)
}

func (r *RunReport) telemetryAxis() []string {
	x := make([]string, 0, len(r.telemetry))
	for _, t := range r.telemetry {
		x = append(x, t.Taken().Format("15:04:05"))
	}
	return x
}

func newTimeLine(title, subtitle, yName string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: yName}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	return line
}

func (r *RunReport) temperatureChart() *charts.Line {
	data := make([]opts.LineData, 0, len(r.telemetry))
	for _, t := range r.telemetry {
		data = append(data, opts.LineData{Value: t.ChipTempC})
	}
	line := newTimeLine("Chip Temperature",
		fmt.Sprintf("mean %.1fC max %.1fC", r.ChipTempC.Mean, r.ChipTempC.Max), "C")
	line.SetXAxis(r.telemetryAxis()).AddSeries("chip temp", data)
	return line
}

func (r *RunReport) cpuChart() *charts.Line {
	css := make([]opts.LineData, 0, len(r.telemetry))
	mss := make([]opts.LineData, 0, len(r.telemetry))
	for _, t := range r.telemetry {
		css = append(css, opts.LineData{Value: t.CssCpu})
		mss = append(mss, opts.LineData{Value: t.MssCpu})
	}
	line := newTimeLine("CPU Usage", "", "%")
	line.SetXAxis(r.telemetryAxis()).
		AddSeries("Leon CSS", css).
		AddSeries("Leon MSS", mss)
	return line
}

func (r *RunReport) memoryChart() *charts.Line {
	ddr := make([]opts.LineData, 0, len(r.telemetry))
	cmx := make([]opts.LineData, 0, len(r.telemetry))
	for _, t := range r.telemetry {
		ddr = append(ddr, opts.LineData{Value: float64(t.DdrUsedBytes) / (1024 * 1024)})
		cmx = append(cmx, opts.LineData{Value: float64(t.CmxUsedBytes) / (1024 * 1024)})
	}
	line := newTimeLine("Memory Usage", "", "MiB")
	line.SetXAxis(r.telemetryAxis()).
		AddSeries("DDR used", ddr).
		AddSeries("CMX used", cmx)
	return line
}

// throughputChart plots frames/sec for every stream on a shared time
// axis. Samples arrive batched per tick, so the axis is derived from
// the distinct sample times.
func (r *RunReport) throughputChart() *charts.Line {
	var ticks []int64
	seen := make(map[int64]int)
	for _, row := range r.rates {
		if _, ok := seen[row.TakenNanos]; !ok {
			seen[row.TakenNanos] = len(ticks)
			ticks = append(ticks, row.TakenNanos)
		}
	}

	x := make([]string, len(ticks))
	for i, n := range ticks {
		x[i] = time.Unix(0, n).Format("15:04:05")
	}

	series := make(map[string][]opts.LineData)
	for _, s := range r.Streams {
		series[s.Stream] = make([]opts.LineData, len(ticks))
	}
	for _, row := range r.rates {
		series[row.Stream][seen[row.TakenNanos]] = opts.LineData{Value: row.FramesPerSec}
	}

	line := newTimeLine("Stream Throughput", "", "frames/sec")
	line.SetXAxis(x)
	for _, s := range r.Streams {
		line.AddSeries(s.Stream, series[s.Stream])
	}
	return line
}
