package stress

import (
	"fmt"
	"strings"
	"testing"

	"github.com/banshee-data/oakstress/internal/monitoring"
	"github.com/banshee-data/oakstress/internal/oak"
	"github.com/banshee-data/oakstress/internal/oak/message"
)

func TestTelemetryLogHeader(t *testing.T) {
	var lines []string
	old := monitoring.Logf
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	t.Cleanup(func() { monitoring.SetLogger(old) })

	r := &Runner{cfg: RunConfig{UsbSpeed: oak.UsbSuper}, stats: NewRunStats()}
	r.logTelemetry(&message.SystemInformation{
		ChipTemperature: message.ChipTemperature{Average: 42},
	})

	if len(lines) < 3 {
		t.Fatalf("got %d log lines, want a header plus stat lines", len(lines))
	}
	sep := strings.Repeat("-", 40)
	if lines[0] != sep || lines[2] != sep {
		t.Errorf("header separators missing: %q", lines[:3])
	}
	if !strings.HasPrefix(lines[1], "[") || !strings.Contains(lines[1], "s] Usb speed SUPER") {
		t.Errorf("header line = %q, want elapsed seconds and link speed", lines[1])
	}
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "Chip temperature - average: 42.00") {
		t.Errorf("stat lines missing from:\n%s", joined)
	}
}
