package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/oakstress/internal/oak/message"
	"github.com/banshee-data/oakstress/internal/stress"
	"github.com/banshee-data/oakstress/internal/timeutil"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "stress.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrationsApplyOnOpen(t *testing.T) {
	db := newTestDB(t)

	version, dirty, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion: %v", err)
	}
	if version == 0 || dirty {
		t.Errorf("version = %d dirty = %v, want applied clean schema", version, dirty)
	}

	for _, table := range []string{"runs", "telemetry", "stream_rates", "events"} {
		var n int
		err := db.QueryRow(
			`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n)
		if err != nil || n != 1 {
			t.Errorf("table %s missing (n=%d, err=%v)", table, n, err)
		}
	}
}

func TestRunLifecycle(t *testing.T) {
	db := newTestDB(t)
	started := time.Now().Add(-time.Minute)

	run := Run{
		RunID:        "run-1",
		MxID:         "14442C10D13EABCE00",
		BoardName:    "DM9098",
		ProductName:  "OAK-D S2",
		UsbSpeed:     "SUPER",
		StartedNanos: started.UnixNano(),
		PipelineJSON: `{"nodes":[]}`,
	}
	if err := db.CreateRun(run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	got, err := db.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.FinishedNanos != 0 {
		t.Errorf("live run has finished time %d", got.FinishedNanos)
	}
	if got.PipelineJSON != run.PipelineJSON {
		t.Errorf("pipeline json = %q, want %q", got.PipelineJSON, run.PipelineJSON)
	}

	if err := db.SetRunSummary("run-1", `{"frames":1200}`); err != nil {
		t.Fatalf("SetRunSummary: %v", err)
	}
	if err := db.SetRunSummary("no-such-run", "{}"); err == nil {
		t.Error("SetRunSummary accepted unknown run id")
	}

	if err := db.FinishRun("run-1", started.Add(time.Minute)); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	got, err = db.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Duration() != time.Minute {
		t.Errorf("duration = %s, want 1m", got.Duration())
	}
	if got.SummaryJSON != `{"frames":1200}` {
		t.Errorf("summary json = %q", got.SummaryJSON)
	}

	if err := db.FinishRun("no-such-run", time.Now()); err == nil {
		t.Error("FinishRun accepted unknown run id")
	}

	runs, err := db.Runs(10)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "run-1" {
		t.Errorf("runs = %+v", runs)
	}
}

func TestTelemetryAndRates(t *testing.T) {
	db := newTestDB(t)
	if err := db.CreateRun(Run{RunID: "run-1", MxID: "x", StartedNanos: 1}); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	rows := []TelemetryRow{
		{RunID: "run-1", TakenNanos: 100, ChipTempC: 41.5, CssCpu: 0.35, MssCpu: 0.20},
		{RunID: "run-1", TakenNanos: 200, ChipTempC: 43.0, CssCpu: 0.40, MssCpu: 0.22},
	}
	if err := db.InsertTelemetry(rows); err != nil {
		t.Fatalf("InsertTelemetry: %v", err)
	}
	got, err := db.TelemetryForRun("run-1")
	if err != nil {
		t.Fatalf("TelemetryForRun: %v", err)
	}
	if len(got) != 2 || got[0].ChipTempC != 41.5 || got[1].TakenNanos != 200 {
		t.Errorf("telemetry = %+v", got)
	}

	rates := []RateRow{
		{RunID: "run-1", TakenNanos: 100, Stream: "preview_CAM_A", FramesPerSec: 19.8, MBPerSec: 9.9, TotalFrames: 99},
		{RunID: "run-1", TakenNanos: 100, Stream: "depth", FramesPerSec: 20.1, MBPerSec: 11.2, TotalFrames: 100},
		{RunID: "run-1", TakenNanos: 200, Stream: "depth", FramesPerSec: 19.9, MBPerSec: 11.1, TotalFrames: 200},
	}
	if err := db.InsertRates(rates); err != nil {
		t.Fatalf("InsertRates: %v", err)
	}
	depth, err := db.RatesForRun("run-1", "depth")
	if err != nil {
		t.Fatalf("RatesForRun: %v", err)
	}
	if len(depth) != 2 || depth[1].TotalFrames != 200 {
		t.Errorf("depth rates = %+v", depth)
	}
	all, err := db.RatesForRun("run-1", "")
	if err != nil {
		t.Fatalf("RatesForRun: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("got %d rate rows, want 3", len(all))
	}
}

func TestEvents(t *testing.T) {
	db := newTestDB(t)
	if err := db.CreateRun(Run{RunID: "run-1", MxID: "x", StartedNanos: 1}); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := db.InsertEvent(EventRow{RunID: "run-1", TakenNanos: 50, Kind: "start", Detail: "dot=500mA"}); err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}
	events, err := db.EventsForRun("run-1")
	if err != nil {
		t.Fatalf("EventsForRun: %v", err)
	}
	if len(events) != 1 || events[0].Kind != "start" {
		t.Errorf("events = %+v", events)
	}
}

func TestRecorderBatchesAndFinishes(t *testing.T) {
	db := newTestDB(t)
	clock := timeutil.NewMockClock(time.Unix(1000, 0))

	rec, err := NewRecorder(db, RecorderConfig{
		MxID:      "14442C10D13EABCE00",
		BoardName: "DM9098",
		UsbSpeed:  "SUPER",
		Clock:     clock,
	})
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	info := message.SystemInformation{}
	info.ChipTemperature.Average = 40
	rec.RecordTelemetry(stress.Telemetry{Info: info, At: clock.Now()})
	rec.RecordRates([]stress.StreamSnapshot{
		{Stream: "sys_log", FramesPerSec: 0.2, Timestamp: clock.Now()},
	})
	rec.RecordEvent("tuning", "dot=600mA flood=500mA iso=800 exposure=20000us")

	// Telemetry and rates are buffered until a flush.
	if rows, _ := db.TelemetryForRun(rec.RunID()); len(rows) != 0 {
		t.Errorf("telemetry written before flush: %+v", rows)
	}
	rec.Flush()
	if rows, _ := db.TelemetryForRun(rec.RunID()); len(rows) != 1 {
		t.Errorf("telemetry after flush = %+v", rows)
	}
	if rows, _ := db.RatesForRun(rec.RunID(), ""); len(rows) != 1 {
		t.Errorf("rates after flush = %+v", rows)
	}
	// Events bypass the buffer.
	if events, _ := db.EventsForRun(rec.RunID()); len(events) != 1 {
		t.Errorf("events = %+v", events)
	}

	clock.Advance(time.Minute)
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	run, err := db.GetRun(rec.RunID())
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Duration() != time.Minute {
		t.Errorf("run duration = %s, want 1m", run.Duration())
	}
}

func TestMigrateDown(t *testing.T) {
	db := newTestDB(t)
	if err := db.MigrateDown(); err != nil {
		t.Fatalf("MigrateDown: %v", err)
	}
	var n int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='runs'`).Scan(&n)
	if err != nil || n != 0 {
		t.Errorf("runs table still present after down migration (n=%d, err=%v)", n, err)
	}
}
