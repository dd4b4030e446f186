package stress

import "testing"

func TestHandleKeySteps(t *testing.T) {
	tests := []struct {
		key        byte
		wantChange Change
		check      func(Tuning) bool
		desc       string
	}{
		{'d', ChangeDot, func(tu Tuning) bool { return tu.DotMa == 600 }, "dot up"},
		{'a', ChangeDot, func(tu Tuning) bool { return tu.DotMa == 400 }, "dot down"},
		{'w', ChangeFlood, func(tu Tuning) bool { return tu.FloodMa == 600 }, "flood up"},
		{'s', ChangeFlood, func(tu Tuning) bool { return tu.FloodMa == 400 }, "flood down"},
		{'l', ChangeExposure, func(tu Tuning) bool { return tu.ISO == 850 }, "iso up"},
		{'k', ChangeExposure, func(tu Tuning) bool { return tu.ISO == 750 }, "iso down"},
		{'o', ChangeExposure, func(tu Tuning) bool { return tu.ExposureUs == 20500 }, "exposure up"},
		{'i', ChangeExposure, func(tu Tuning) bool { return tu.ExposureUs == 19500 }, "exposure down"},
		{'q', ChangeQuit, func(tu Tuning) bool { return tu == DefaultTuning() }, "quit"},
		{'x', ChangeNone, func(tu Tuning) bool { return tu == DefaultTuning() }, "unknown key"},
	}
	for _, tt := range tests {
		tu := DefaultTuning()
		if got := tu.HandleKey(tt.key); got != tt.wantChange {
			t.Errorf("%s: change = %v, want %v", tt.desc, got, tt.wantChange)
		}
		if !tt.check(tu) {
			t.Errorf("%s: tuning = %+v", tt.desc, tu)
		}
	}
}

func TestHandleKeyClampsAtLimits(t *testing.T) {
	tu := Tuning{DotMa: 1200, FloodMa: 0, ISO: 1600, ExposureUs: 0}

	tu.HandleKey('d')
	if tu.DotMa != 1200 {
		t.Errorf("DotMa = %d, want clamped at 1200", tu.DotMa)
	}
	tu.HandleKey('s')
	if tu.FloodMa != 0 {
		t.Errorf("FloodMa = %d, want clamped at 0", tu.FloodMa)
	}
	tu.HandleKey('l')
	if tu.ISO != 1600 {
		t.Errorf("ISO = %d, want clamped at 1600", tu.ISO)
	}
	tu.HandleKey('i')
	if tu.ExposureUs != 0 {
		t.Errorf("ExposureUs = %d, want clamped at 0", tu.ExposureUs)
	}
}

func TestFormatWithCommas(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
	}
	for _, tt := range tests {
		if got := FormatWithCommas(tt.n); got != tt.want {
			t.Errorf("FormatWithCommas(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestRunStats(t *testing.T) {
	rs := NewRunStats()
	rs.AddFrame("preview_CAM_A", 100)
	rs.AddFrame("preview_CAM_A", 100)
	rs.AddFrame("depth", 512000)

	snaps := rs.GetAndReset()
	if len(snaps) != 2 {
		t.Fatalf("got %d snapshots, want 2", len(snaps))
	}
	// Sorted by stream name.
	if snaps[0].Stream != "depth" || snaps[1].Stream != "preview_CAM_A" {
		t.Errorf("snapshot order = %s, %s", snaps[0].Stream, snaps[1].Stream)
	}
	if snaps[1].TotalFrames != 2 {
		t.Errorf("TotalFrames = %d, want 2", snaps[1].TotalFrames)
	}

	// Interval counters reset, totals persist.
	snaps = rs.GetAndReset()
	if snaps[1].FramesPerSec != 0 {
		t.Errorf("FramesPerSec = %f after reset, want 0", snaps[1].FramesPerSec)
	}
	totals := rs.Totals()
	if totals["preview_CAM_A"].Frames != 2 || totals["depth"].Bytes != 512000 {
		t.Errorf("totals = %+v", totals)
	}
}
