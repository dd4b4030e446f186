package stress_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/oakstress/internal/display"
	"github.com/banshee-data/oakstress/internal/oak"
	"github.com/banshee-data/oakstress/internal/oak/device"
	"github.com/banshee-data/oakstress/internal/oak/oaksim"
	"github.com/banshee-data/oakstress/internal/stress"
)

// memRecorder captures recorded measurements for assertions.
type memRecorder struct {
	mu        sync.Mutex
	telemetry []stress.Telemetry
	rates     [][]stress.StreamSnapshot
	events    []string
}

func (r *memRecorder) RecordTelemetry(t stress.Telemetry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.telemetry = append(r.telemetry, t)
}

func (r *memRecorder) RecordRates(s []stress.StreamSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rates = append(r.rates, s)
}

func (r *memRecorder) RecordEvent(kind, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kind)
}

func startRun(t *testing.T, profileName string, keys <-chan rune, duration time.Duration) (*stress.Runner, *memRecorder, *display.FrameStore, *oaksim.Sim, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	sim, err := oaksim.New(ctx, oaksim.Profiles[profileName])
	if err != nil {
		t.Fatalf("start simulator: %v", err)
	}
	t.Cleanup(func() { sim.Close() })

	dev, err := device.ConnectInfo(ctx, sim.Info())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { dev.Close() })
	go dev.Monitor(ctx)

	calib, err := dev.ReadCalibration(ctx)
	if err != nil {
		t.Fatalf("ReadCalibration: %v", err)
	}
	features, err := dev.ConnectedCameraFeatures(ctx)
	if err != nil {
		t.Fatalf("ConnectedCameraFeatures: %v", err)
	}
	build, err := stress.BuildPipeline(features, calib, "yolo.blob")
	if err != nil {
		t.Fatalf("BuildPipeline: %v", err)
	}

	rec := &memRecorder{}
	store := display.NewFrameStore()
	runner, err := stress.NewRunner(stress.RunConfig{
		Device:      dev,
		Build:       build,
		Tuning:      stress.DefaultTuning(),
		Sink:        store,
		Keys:        keys,
		Rec:         rec,
		UsbSpeed:    oak.UsbSuper,
		Duration:    duration,
		LogInterval: 200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	if err := dev.StartPipeline(ctx, build.Pipeline); err != nil {
		t.Fatalf("StartPipeline: %v", err)
	}
	return runner, rec, store, sim, ctx
}

func TestRunnerDrainsAndRecords(t *testing.T) {
	runner, rec, store, _, ctx := startRun(t, "oak-d", nil, 0)

	runCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	summary, err := runner.Run(runCtx)
	if err != context.DeadlineExceeded {
		t.Fatalf("Run returned %v, want deadline", err)
	}

	preview := stress.PreviewStream(oak.SocketCamA)
	if summary.Streams[preview].Frames == 0 {
		t.Errorf("no frames counted on %s: %+v", preview, summary.Streams)
	}
	if summary.Streams[stress.DepthStream].Frames == 0 {
		t.Errorf("no depth frames counted: %+v", summary.Streams)
	}
	if _, _, ok := store.Latest(preview); !ok {
		t.Errorf("no frame stored for %s", preview)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.rates) == 0 {
		t.Error("no rate snapshots recorded")
	}
	if len(rec.events) < 2 || rec.events[0] != "start" {
		t.Errorf("events = %v, want start/.../stop", rec.events)
	}
}

func TestRunnerQuitKey(t *testing.T) {
	keys := make(chan rune, 1)
	runner, _, _, _, ctx := startRun(t, "oak-1", keys, 0)

	keys <- 'q'
	runCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	summary, err := runner.Run(runCtx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Uptime <= 0 {
		t.Error("summary has no uptime")
	}
}

func TestRunnerDurationLimit(t *testing.T) {
	runner, _, _, _, ctx := startRun(t, "oak-1", nil, 300*time.Millisecond)

	runCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	start := time.Now()
	if _, err := runner.Run(runCtx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("run took %s, want ~300ms", elapsed)
	}
}

func TestRunnerAppliesIrDefaults(t *testing.T) {
	runner, _, _, sim, ctx := startRun(t, "oak-d", nil, 200*time.Millisecond)

	runCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := runner.Run(runCtx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The emitters must be driven to the configured levels without any
	// key press.
	dot, flood := sim.IrBrightness()
	def := stress.DefaultTuning()
	if dot != def.DotMa || flood != def.FloodMa {
		t.Errorf("device ir = %d/%d mA, want defaults %d/%d mA",
			dot, flood, def.DotMa, def.FloodMa)
	}
}

func TestRunnerTuningKeys(t *testing.T) {
	keys := make(chan rune, 4)
	runner, _, _, _, ctx := startRun(t, "oak-d", keys, 0)

	for _, k := range []byte{'d', 'w', 'l'} {
		if _, err := runner.ApplyKey(ctx, k); err != nil {
			t.Fatalf("ApplyKey(%q): %v", k, err)
		}
	}
	tu := runner.Tuning()
	if tu.DotMa != 600 || tu.FloodMa != 600 || tu.ISO != 850 {
		t.Errorf("tuning = %+v", tu)
	}
}
