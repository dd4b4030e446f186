package stress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/oakstress/internal/display"
	"github.com/banshee-data/oakstress/internal/monitoring"
	"github.com/banshee-data/oakstress/internal/oak"
	"github.com/banshee-data/oakstress/internal/oak/device"
	"github.com/banshee-data/oakstress/internal/oak/message"
)

// pollInterval paces the non-blocking drain loop. Queues buffer several
// frames, so 5ms keeps up with every stream at camera rate without
// spinning.
const pollInterval = 5 * time.Millisecond

// Telemetry is one device health report with its arrival time.
type Telemetry struct {
	Info message.SystemInformation
	At   time.Time
}

// Recorder receives run measurements as they happen. The db package
// provides a persistent implementation; a nil Recorder is valid and
// discards everything.
type Recorder interface {
	RecordTelemetry(t Telemetry)
	RecordRates(snapshots []StreamSnapshot)
	RecordEvent(kind, detail string)
}

// RunConfig configures a stress run against a connected device.
type RunConfig struct {
	Device *device.Device
	Build  *BuildResult
	Tuning Tuning
	Sink   display.Sink // nil disables frame display
	Keys   <-chan rune  // nil disables interactive tuning
	Rec    Recorder     // nil disables recording

	// UsbSpeed is the negotiated link speed, echoed in telemetry log
	// headers.
	UsbSpeed oak.UsbSpeed

	// Duration bounds the run; zero means run until cancelled.
	Duration time.Duration

	// LogInterval paces periodic rate logging. Zero means 5s.
	LogInterval time.Duration
}

// Summary reports what a finished run saw.
type Summary struct {
	Uptime       time.Duration
	Streams      map[string]struct{ Frames, Bytes int64 }
	DecodeErrors uint64
	Telemetry    []Telemetry
	FinalTuning  Tuning
}

// Runner drains all pipeline output streams, displays what can be
// displayed, applies operator tuning and collects statistics until the
// run ends.
type Runner struct {
	cfg   RunConfig
	stats *RunStats

	// mu guards tuning and telemetry, which the web monitor reads while
	// the run loop writes.
	mu        sync.Mutex
	tuning    Tuning
	telemetry []Telemetry

	queues     []*device.OutQueue
	camControl *device.InQueue
}

// NewRunner prepares a run: it opens an output queue per pipeline
// stream and the camera control input queue. Call it before
// StartPipeline so no early frames are dropped.
func NewRunner(cfg RunConfig) (*Runner, error) {
	if cfg.LogInterval <= 0 {
		cfg.LogInterval = 5 * time.Second
	}
	r := &Runner{cfg: cfg, stats: NewRunStats(), tuning: cfg.Tuning}

	for _, spec := range cfg.Build.Streams {
		q, err := cfg.Device.OutputQueue(spec.Name, spec.QueueSize, spec.Blocking)
		if err != nil {
			return nil, fmt.Errorf("opening queue for %s: %w", spec.Name, err)
		}
		r.queues = append(r.queues, q)
	}

	camControl, err := cfg.Device.InputQueue(CamControlStream)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", CamControlStream, err)
	}
	r.camControl = camControl

	if cfg.Build.HasToF {
		// Opening the stream is enough; the initial ToF config travels
		// in the pipeline schema and no runtime retuning is exposed.
		if _, err := cfg.Device.InputQueue(ToFConfigStream); err != nil {
			return nil, fmt.Errorf("opening %s: %w", ToFConfigStream, err)
		}
	}
	return r, nil
}

// Stats exposes the live throughput counters, for the web monitor.
func (r *Runner) Stats() *RunStats { return r.stats }

// ApplyKey applies one tuning key press to the device. It is exported
// so the web monitor's control endpoint can share the key map with the
// terminal. ChangeQuit is returned to the caller; ending the run is the
// caller's decision.
func (r *Runner) ApplyKey(ctx context.Context, key byte) (Change, error) {
	r.mu.Lock()
	change := r.tuning.HandleKey(key)
	tu := r.tuning
	r.mu.Unlock()

	switch change {
	case ChangeDot:
		if err := r.cfg.Device.SetIrLaserDotProjectorBrightness(ctx, tu.DotMa); err != nil {
			return change, err
		}
		monitoring.Logf("IR dot projector set to %d mA", tu.DotMa)
	case ChangeFlood:
		if err := r.cfg.Device.SetIrFloodLightBrightness(ctx, tu.FloodMa); err != nil {
			return change, err
		}
		monitoring.Logf("IR flood light set to %d mA", tu.FloodMa)
	case ChangeExposure:
		ctl := &message.CameraControl{}
		ctl.SetManualExposure(tu.ExposureUs, tu.ISO)
		if err := r.camControl.Send(ctl); err != nil {
			return change, err
		}
		monitoring.Logf("Camera exposure set to %dus iso %d", tu.ExposureUs, tu.ISO)
	}
	if change != ChangeNone && r.cfg.Rec != nil {
		r.cfg.Rec.RecordEvent("tuning", tu.String())
	}
	return change, nil
}

// SendCameraControl sends a raw control message down the cam_control
// stream, bypassing the tuning key map. The monitor's debug surface
// uses it.
func (r *Runner) SendCameraControl(ctl *message.CameraControl) error {
	return r.camControl.Send(ctl)
}

// Tuning returns the current tuning values.
func (r *Runner) Tuning() Tuning {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tuning
}

// Run drains frames until the context is cancelled, the duration
// elapses or the operator quits. It always returns a summary of what
// it saw, even on early exit.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	// The emitters boot dark; drive them to the configured levels so
	// the run starts under IR load.
	tu := r.Tuning()
	monitoring.Logf("Setting default dot intensity to %d mA", tu.DotMa)
	if err := r.cfg.Device.SetIrLaserDotProjectorBrightness(ctx, tu.DotMa); err != nil {
		return r.summary(), fmt.Errorf("set dot projector: %w", err)
	}
	monitoring.Logf("Setting default flood intensity to %d mA", tu.FloodMa)
	if err := r.cfg.Device.SetIrFloodLightBrightness(ctx, tu.FloodMa); err != nil {
		return r.summary(), fmt.Errorf("set flood light: %w", err)
	}

	var deadline <-chan time.Time
	if r.cfg.Duration > 0 {
		timer := time.NewTimer(r.cfg.Duration)
		defer timer.Stop()
		deadline = timer.C
	}

	poll := time.NewTicker(pollInterval)
	defer poll.Stop()
	logTick := time.NewTicker(r.cfg.LogInterval)
	defer logTick.Stop()

	if r.cfg.Rec != nil {
		r.cfg.Rec.RecordEvent("start", r.tuning.String())
	}

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
			break loop
		case <-deadline:
			monitoring.Logf("Run duration %s elapsed, stopping", r.cfg.Duration)
			break loop
		case <-logTick.C:
			snapshots := r.stats.LogStats()
			if r.cfg.Rec != nil {
				r.cfg.Rec.RecordRates(snapshots)
			}
		case key, ok := <-r.cfg.Keys:
			if !ok {
				r.cfg.Keys = nil
				continue
			}
			change, err := r.ApplyKey(ctx, byte(key))
			if err != nil {
				monitoring.Logf("Applying key %q: %v", key, err)
			}
			if change == ChangeQuit {
				monitoring.Logf("Quit requested")
				break loop
			}
		case <-poll.C:
			r.drainOnce()
		}
	}

	// One final flush so short runs still report rates.
	snapshots := r.stats.LogStats()
	if r.cfg.Rec != nil {
		r.cfg.Rec.RecordRates(snapshots)
		r.cfg.Rec.RecordEvent("stop", r.tuning.String())
	}
	return r.summary(), runErr
}

// drainOnce empties every queue of whatever has arrived.
func (r *Runner) drainOnce() {
	for _, q := range r.queues {
		for {
			msg, ok := q.TryGet()
			if !ok {
				break
			}
			r.handle(q.Name(), msg)
		}
	}
}

func (r *Runner) handle(stream string, msg message.Message) {
	switch m := msg.(type) {
	case *message.ImgFrame:
		r.stats.AddFrame(stream, len(m.Data))
		if m.Type == message.FrameBitstream || r.cfg.Sink == nil {
			return
		}
		img, err := display.ToBGR(m)
		if err != nil {
			monitoring.Logf("Frame on %s not displayable: %v", stream, err)
			return
		}
		if err := r.cfg.Sink.Show(stream, img); err != nil {
			monitoring.Logf("Displaying %s: %v", stream, err)
		}

	case *message.SystemInformation:
		r.stats.AddFrame(stream, 0)
		t := Telemetry{Info: *m, At: time.Now()}
		r.mu.Lock()
		r.telemetry = append(r.telemetry, t)
		r.mu.Unlock()
		if r.cfg.Rec != nil {
			r.cfg.Rec.RecordTelemetry(t)
		}
		r.logTelemetry(m)

	case *message.ImgDetections:
		r.stats.AddFrame(stream, 0)
	case *message.SpatialImgDetections:
		r.stats.AddFrame(stream, 0)
	default:
		r.stats.AddFrame(stream, 0)
	}
}

func (r *Runner) summary() *Summary {
	var decodeErrs uint64
	for _, q := range r.queues {
		decodeErrs += q.DecodeErrors()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return &Summary{
		Uptime:       r.stats.GetUptime(),
		Streams:      r.stats.Totals(),
		DecodeErrors: decodeErrs,
		Telemetry:    r.telemetry,
		FinalTuning:  r.tuning,
	}
}

// Telemetry returns the health reports collected so far.
func (r *Runner) Telemetry() []Telemetry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Telemetry, len(r.telemetry))
	copy(out, r.telemetry)
	return out
}

// logTelemetry prints one device health block, headed by the elapsed
// run time and the link speed.
func (r *Runner) logTelemetry(m *message.SystemInformation) {
	monitoring.Logf("----------------------------------------")
	monitoring.Logf("[%ds] Usb speed %s", int(r.stats.GetUptime().Seconds()), r.cfg.UsbSpeed)
	monitoring.Logf("----------------------------------------")
	monitoring.Logf("Ddr used / total - %.2f / %.2f MiB",
		m.DdrMemoryUsage.UsedMiB(), m.DdrMemoryUsage.TotalMiB())
	monitoring.Logf("Cmx used / total - %.2f / %.2f MiB",
		m.CmxMemoryUsage.UsedMiB(), m.CmxMemoryUsage.TotalMiB())
	monitoring.Logf("LeonCss heap used / total - %.2f / %.2f MiB",
		m.LeonCssMemoryUsage.UsedMiB(), m.LeonCssMemoryUsage.TotalMiB())
	monitoring.Logf("LeonMss heap used / total - %.2f / %.2f MiB",
		m.LeonMssMemoryUsage.UsedMiB(), m.LeonMssMemoryUsage.TotalMiB())
	monitoring.Logf("Chip temperature - average: %.2f, css: %.2f, mss: %.2f, upa: %.2f, dss: %.2f",
		m.ChipTemperature.Average, m.ChipTemperature.Css, m.ChipTemperature.Mss,
		m.ChipTemperature.Upa, m.ChipTemperature.Dss)
	monitoring.Logf("Cpu usage - Leon CSS: %.2f%%, Leon MSS: %.2f%%",
		m.LeonCssCpuUsage.Average*100, m.LeonMssCpuUsage.Average*100)
}
