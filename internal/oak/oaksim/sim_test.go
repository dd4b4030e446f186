package oaksim

import (
	"testing"
	"time"

	"github.com/banshee-data/oakstress/internal/oak"
	"github.com/banshee-data/oakstress/internal/oak/pipeline"
)

func TestLookupProfile(t *testing.T) {
	for _, name := range []string{"oak-d", "oak-1", "oak-d-tof", "no-cameras"} {
		p, err := LookupProfile(name)
		if err != nil {
			t.Errorf("LookupProfile(%q): %v", name, err)
			continue
		}
		if p.Name != name {
			t.Errorf("profile %q reports name %q", name, p.Name)
		}
	}
	if _, err := LookupProfile("oak-z"); err == nil {
		t.Error("expected unknown profile to fail")
	}
}

func TestGeneratorsForSchema(t *testing.T) {
	p := pipeline.New()
	cam := p.CreateColorCamera()
	cam.Resolution = oak.Res1080P
	cam.FPS = 20
	cam.SetPreviewSize(416, 416)
	preview := p.CreateXLinkOut()
	preview.SetStreamName("preview_CAM_A")
	if err := p.Link(cam.Preview(), preview.Input()); err != nil {
		t.Fatalf("link: %v", err)
	}

	logger := p.CreateSystemLogger()
	logger.SetRate(0.2)
	sysOut := p.CreateXLinkOut()
	sysOut.SetStreamName("sys_log")
	if err := p.Link(logger.Out(), sysOut.Input()); err != nil {
		t.Fatalf("link: %v", err)
	}

	data, err := p.MarshalSchema()
	if err != nil {
		t.Fatalf("MarshalSchema: %v", err)
	}
	doc, err := pipeline.ParseSchema(data)
	if err != nil {
		t.Fatalf("ParseSchema: %v", err)
	}

	gens, err := generatorsForSchema(doc)
	if err != nil {
		t.Fatalf("generatorsForSchema: %v", err)
	}
	if len(gens) != 2 {
		t.Fatalf("got %d generators, want 2", len(gens))
	}

	byStream := make(map[string]*generator)
	for _, g := range gens {
		byStream[g.stream] = g
	}
	if g := byStream["preview_CAM_A"]; g == nil {
		t.Error("no generator for preview stream")
	} else if g.interval.Seconds() < 0.04 || g.interval.Seconds() > 0.06 {
		t.Errorf("preview interval %v, want ~50ms for 20 fps", g.interval)
	}
	if g := byStream["sys_log"]; g == nil {
		t.Error("no generator for telemetry stream")
	} else if g.interval.Seconds() < 4.9 || g.interval.Seconds() > 5.1 {
		t.Errorf("telemetry interval %v, want ~5s for 0.2 Hz", g.interval)
	}
}

func TestGeneratorsRejectOrphanStream(t *testing.T) {
	p := pipeline.New()
	out := p.CreateXLinkOut()
	out.SetStreamName("dangling")

	data, err := p.MarshalSchema()
	if err != nil {
		t.Fatalf("MarshalSchema: %v", err)
	}
	doc, err := pipeline.ParseSchema(data)
	if err != nil {
		t.Fatalf("ParseSchema: %v", err)
	}
	if _, err := generatorsForSchema(doc); err == nil {
		t.Fatal("expected unproduced stream to be rejected")
	}
}

func TestTelemetryWarmsUpWithLoad(t *testing.T) {
	cold := telemetry(0, 10)
	hot := telemetry(10*time.Minute, 10)

	if hot.ChipTemperature.Average <= cold.ChipTemperature.Average {
		t.Errorf("temperature did not rise: cold %.1f hot %.1f",
			cold.ChipTemperature.Average, hot.ChipTemperature.Average)
	}
	if hot.ChipTemperature.Average > 70 {
		t.Errorf("temperature %0.1f exceeds the model's ceiling", hot.ChipTemperature.Average)
	}
}
