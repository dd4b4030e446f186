package db

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/oakstress/internal/monitoring"
	"github.com/banshee-data/oakstress/internal/stress"
	"github.com/banshee-data/oakstress/internal/timeutil"
)

// flushBatchSize forces a write once this many rows accumulate, even
// between flush ticks.
const flushBatchSize = 256

// Recorder buffers run measurements and writes them to the database in
// batches. It implements stress.Recorder.
type Recorder struct {
	db    *DB
	clock timeutil.Clock
	runID string

	mu        sync.Mutex
	telemetry []TelemetryRow
	rates     []RateRow
}

// RecorderConfig identifies the device a recorded run talks to.
type RecorderConfig struct {
	MxID        string
	BoardName   string
	ProductName string
	UsbSpeed    string
	// PipelineJSON is the schema uploaded to the device, stored with the
	// run row.
	PipelineJSON string
	Clock        timeutil.Clock // nil means the real clock
}

// NewRecorder creates the run row and returns a recorder feeding it.
func NewRecorder(db *DB, cfg RecorderConfig) (*Recorder, error) {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	r := &Recorder{
		db:    db,
		clock: clock,
		runID: uuid.NewString(),
	}
	err := db.CreateRun(Run{
		RunID:        r.runID,
		MxID:         cfg.MxID,
		BoardName:    cfg.BoardName,
		ProductName:  cfg.ProductName,
		UsbSpeed:     cfg.UsbSpeed,
		StartedNanos: clock.Now().UnixNano(),
		PipelineJSON: cfg.PipelineJSON,
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// RunID returns the id of the run being recorded.
func (r *Recorder) RunID() string { return r.runID }

// RecordTelemetry buffers one device health sample.
func (r *Recorder) RecordTelemetry(t stress.Telemetry) {
	row := TelemetryRow{
		RunID:             r.runID,
		TakenNanos:        t.At.UnixNano(),
		ChipTempC:         t.Info.ChipTemperature.Average,
		TempCss:           t.Info.ChipTemperature.Css,
		TempMss:           t.Info.ChipTemperature.Mss,
		TempUpa:           t.Info.ChipTemperature.Upa,
		TempDss:           t.Info.ChipTemperature.Dss,
		CssCpu:            t.Info.LeonCssCpuUsage.Average,
		MssCpu:            t.Info.LeonMssCpuUsage.Average,
		DdrUsedBytes:      t.Info.DdrMemoryUsage.Used,
		DdrTotalBytes:     t.Info.DdrMemoryUsage.Total,
		CmxUsedBytes:      t.Info.CmxMemoryUsage.Used,
		CmxTotalBytes:     t.Info.CmxMemoryUsage.Total,
		CssHeapUsedBytes:  t.Info.LeonCssMemoryUsage.Used,
		CssHeapTotalBytes: t.Info.LeonCssMemoryUsage.Total,
		MssHeapUsedBytes:  t.Info.LeonMssMemoryUsage.Used,
		MssHeapTotalBytes: t.Info.LeonMssMemoryUsage.Total,
	}

	r.mu.Lock()
	r.telemetry = append(r.telemetry, row)
	full := len(r.telemetry) >= flushBatchSize
	r.mu.Unlock()
	if full {
		r.Flush()
	}
}

// RecordRates buffers one interval's throughput snapshots.
func (r *Recorder) RecordRates(snapshots []stress.StreamSnapshot) {
	rows := make([]RateRow, 0, len(snapshots))
	for _, s := range snapshots {
		rows = append(rows, RateRow{
			RunID:        r.runID,
			TakenNanos:   s.Timestamp.UnixNano(),
			Stream:       s.Stream,
			FramesPerSec: s.FramesPerSec,
			MBPerSec:     s.MBPerSec,
			TotalFrames:  s.TotalFrames,
		})
	}

	r.mu.Lock()
	r.rates = append(r.rates, rows...)
	full := len(r.rates) >= flushBatchSize
	r.mu.Unlock()
	if full {
		r.Flush()
	}
}

// RecordEvent writes one event immediately; events are rare and order
// against telemetry matters for the report.
func (r *Recorder) RecordEvent(kind, detail string) {
	err := r.db.InsertEvent(EventRow{
		RunID:      r.runID,
		TakenNanos: r.clock.Now().UnixNano(),
		Kind:       kind,
		Detail:     detail,
	})
	if err != nil {
		monitoring.Logf("Recording %s event: %v", kind, err)
	}
}

// Flush writes buffered rows to the database.
func (r *Recorder) Flush() {
	r.mu.Lock()
	telemetry := r.telemetry
	rates := r.rates
	r.telemetry = nil
	r.rates = nil
	r.mu.Unlock()

	if err := r.db.InsertTelemetry(telemetry); err != nil {
		monitoring.Logf("Flushing %d telemetry rows: %v", len(telemetry), err)
	}
	if err := r.db.InsertRates(rates); err != nil {
		monitoring.Logf("Flushing %d rate rows: %v", len(rates), err)
	}
}

// Run flushes buffered rows every interval until the context is
// cancelled. It is meant to be run in its own goroutine.
func (r *Recorder) Run(done <-chan struct{}, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := r.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			r.Flush()
			return
		case <-ticker.C():
			r.Flush()
		}
	}
}

// RecordSummary stores the end-of-run summary with the run row.
func (r *Recorder) RecordSummary(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		monitoring.Logf("Marshaling run summary: %v", err)
		return
	}
	if err := r.db.SetRunSummary(r.runID, string(data)); err != nil {
		monitoring.Logf("Recording run summary: %v", err)
	}
}

// Close flushes everything and stamps the run's end time.
func (r *Recorder) Close() error {
	r.Flush()
	return r.db.FinishRun(r.runID, r.clock.Now())
}
