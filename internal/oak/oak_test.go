package oak

import (
	"encoding/json"
	"testing"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		name      string
		v, lo, hi int
		want      int
	}{
		{"below range", -100, 0, 1200, 0},
		{"at lower bound", 0, 0, 1200, 0},
		{"inside range", 500, 0, 1200, 500},
		{"at upper bound", 1200, 0, 1200, 1200},
		{"above range", 1300, 0, 1200, 1200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clamp(tt.v, tt.lo, tt.hi); got != tt.want {
				t.Errorf("Clamp(%d, %d, %d) = %d, want %d", tt.v, tt.lo, tt.hi, got, tt.want)
			}
		})
	}
}

func TestSocketStringRoundTrip(t *testing.T) {
	sockets := []CameraBoardSocket{SocketAuto, SocketCamA, SocketCamB, SocketCamC, SocketCamD}
	for _, s := range sockets {
		parsed, err := ParseSocket(s.String())
		if err != nil {
			t.Fatalf("ParseSocket(%q): %v", s.String(), err)
		}
		if parsed != s {
			t.Errorf("ParseSocket(%q) = %v, want %v", s.String(), parsed, s)
		}
	}

	if _, err := ParseSocket("CAM_Z"); err == nil {
		t.Error("ParseSocket accepted an unknown socket name")
	}
}

func TestSocketJSON(t *testing.T) {
	data, err := json.Marshal(SocketCamB)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"CAM_B"` {
		t.Errorf("marshalled socket = %s, want %q", data, "CAM_B")
	}

	var s CameraBoardSocket
	if err := json.Unmarshal([]byte(`"CAM_C"`), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s != SocketCamC {
		t.Errorf("unmarshalled socket = %v, want CAM_C", s)
	}
}

func TestCameraFeaturesMaxSensorSize(t *testing.T) {
	feat := CameraFeatures{
		Socket: SocketCamA,
		Configs: []SensorConfig{
			{Width: 1280, Height: 720, Type: SensorColor},
			{Width: 1920, Height: 1080, Type: SensorColor},
			{Width: 3840, Height: 2160, Type: SensorColor},
		},
	}
	w, h := feat.MaxSensorSize()
	if w != 3840 || h != 2160 {
		t.Errorf("MaxSensorSize() = %dx%d, want 3840x2160", w, h)
	}

	var empty CameraFeatures
	if w, h := empty.MaxSensorSize(); w != 0 || h != 0 {
		t.Errorf("MaxSensorSize() on empty features = %dx%d, want 0x0", w, h)
	}
}

func TestCameraFeaturesKind(t *testing.T) {
	feat := CameraFeatures{SupportedTypes: []CameraSensorType{SensorColor, SensorMono}}
	if got := feat.Kind(); got != SensorColor {
		t.Errorf("Kind() = %v, want COLOR", got)
	}
}
