package report

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/oakstress/internal/db"
)

func TestSummarize(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   SeriesStats
	}{
		{
			name:   "empty",
			values: nil,
			want:   SeriesStats{},
		},
		{
			name:   "single",
			values: []float64{42},
			want:   SeriesStats{Count: 1, Min: 42, Max: 42, Mean: 42, P95: 42},
		},
		{
			name:   "spread",
			values: []float64{1, 2, 3, 4, 5},
			want:   SeriesStats{Count: 5, Min: 1, Max: 5, Mean: 3, P95: 5},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Summarize(tt.values)
			if got.Count != tt.want.Count || got.Min != tt.want.Min ||
				got.Max != tt.want.Max || got.Mean != tt.want.Mean || got.P95 != tt.want.P95 {
				t.Errorf("Summarize(%v) = %+v, want %+v", tt.values, got, tt.want)
			}
		})
	}
}

func TestSummarizeStdDev(t *testing.T) {
	got := Summarize([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if math.Abs(got.StdDev-2.138) > 0.01 {
		t.Errorf("StdDev = %.3f, want about 2.138", got.StdDev)
	}
}

// seedRun writes a short run with telemetry, rates, and events and
// returns its report.
func seedRun(t *testing.T) *RunReport {
	t.Helper()
	d, err := db.NewDB(filepath.Join(t.TempDir(), "report_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	start := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	run := db.Run{
		RunID:        "run-1",
		MxID:         "14442C10C1A1B2D200",
		BoardName:    "OAK-D",
		ProductName:  "OAK-D",
		UsbSpeed:     "SUPER",
		StartedNanos: start.UnixNano(),
	}
	require.NoError(t, d.CreateRun(run))

	var telemetry []db.TelemetryRow
	var rates []db.RateRow
	for i := 0; i < 10; i++ {
		at := start.Add(time.Duration(i) * time.Second)
		telemetry = append(telemetry, db.TelemetryRow{
			RunID:         "run-1",
			TakenNanos:    at.UnixNano(),
			ChipTempC:     40 + float64(i),
			CssCpu:        20 + float64(i),
			MssCpu:        10,
			DdrUsedBytes:  int64(i) * 1024 * 1024,
			DdrTotalBytes: 512 * 1024 * 1024,
		})
		for _, stream := range []string{"preview_CAM_A", "depth"} {
			rates = append(rates, db.RateRow{
				RunID:        "run-1",
				TakenNanos:   at.UnixNano(),
				Stream:       stream,
				FramesPerSec: 20,
				MBPerSec:     1.5,
				TotalFrames:  int64((i + 1) * 20),
			})
		}
	}
	require.NoError(t, d.InsertTelemetry(telemetry))
	require.NoError(t, d.InsertRates(rates))
	require.NoError(t, d.InsertEvent(db.EventRow{
		RunID: "run-1", TakenNanos: start.UnixNano(), Kind: "start", Detail: "pipeline started",
	}))
	require.NoError(t, d.FinishRun("run-1", start.Add(10*time.Second)))

	r, err := Build(d, "run-1")
	require.NoError(t, err)
	return r
}

func TestBuildReport(t *testing.T) {
	r := seedRun(t)

	require.Equal(t, "run-1", r.Run.RunID)
	require.Equal(t, 10, r.ChipTempC.Count)
	require.InDelta(t, 44.5, r.ChipTempC.Mean, 0.001)
	require.Equal(t, 49.0, r.ChipTempC.Max)

	require.Len(t, r.Streams, 2)
	// Sorted by stream name.
	require.Equal(t, "depth", r.Streams[0].Stream)
	require.Equal(t, "preview_CAM_A", r.Streams[1].Stream)
	require.Equal(t, 20.0, r.Streams[0].FPS.Mean)
	require.Equal(t, int64(200), r.Streams[0].TotalFrames)

	require.Len(t, r.Events, 1)
	require.Equal(t, "start", r.Events[0].Kind)
}

func TestBuildReportUnknownRun(t *testing.T) {
	d, err := db.NewDB(filepath.Join(t.TempDir(), "report_test.db"))
	require.NoError(t, err)
	defer d.Close()

	_, err = Build(d, "no-such-run")
	require.Error(t, err)
}

func TestWriteText(t *testing.T) {
	r := seedRun(t)

	var buf bytes.Buffer
	if err := r.WriteText(&buf); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Run run-1",
		"OAK-D",
		"usb=SUPER",
		"chip temp (C)",
		"preview_CAM_A",
		"pipeline started",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("text report missing %q:\n%s", want, out)
		}
	}
}

func TestRenderHTML(t *testing.T) {
	r := seedRun(t)

	var buf bytes.Buffer
	if err := r.RenderHTML(&buf); err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Chip Temperature", "Stream Throughput", "preview_CAM_A", "Leon CSS"} {
		if !strings.Contains(out, want) {
			t.Errorf("HTML report missing %q", want)
		}
	}
}

func TestSavePlots(t *testing.T) {
	r := seedRun(t)

	dir := t.TempDir()
	files, err := r.SavePlots(dir)
	if err != nil {
		t.Fatalf("SavePlots: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d plot files, want 2", len(files))
	}
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			t.Fatalf("read %s: %v", file, err)
		}
		if !bytes.HasPrefix(data, []byte("\x89PNG")) {
			t.Errorf("%s is not a PNG", file)
		}
	}
}
