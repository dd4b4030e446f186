package oak

import "testing"

func TestLookupColorResolution(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		want          ColorResolution
		ok            bool
	}{
		{"12mp sensor", 4056, 3040, Res12MP, true},
		{"4k sensor", 3840, 2160, Res4K, true},
		{"1080p sensor", 1920, 1080, Res1080P, true},
		{"ov9782", 1280, 800, Res800P, true},
		{"imx582 cropped", 5312, 6000, Res5312x6000, true},
		{"unknown sensor", 1234, 5678, 0, false},
		{"swapped dimensions", 3040, 4056, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := LookupColorResolution(tt.width, tt.height)
			if ok != tt.ok {
				t.Fatalf("LookupColorResolution(%d, %d) ok = %v, want %v", tt.width, tt.height, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("LookupColorResolution(%d, %d) = %v, want %v", tt.width, tt.height, got, tt.want)
			}
		})
	}
}

// Every entry in the resolution table must report the same dimensions it
// was keyed with, otherwise pipeline validation and the simulator disagree
// about frame sizes.
func TestColorResolutionSizesMatchTable(t *testing.T) {
	for key, res := range colorResolutions {
		w, h := res.Size()
		if w != key[0] || h != key[1] {
			t.Errorf("%v.Size() = %dx%d, table key %dx%d", res, w, h, key[0], key[1])
		}
	}
}

func TestMonoResolutionSize(t *testing.T) {
	if w, h := Mono400P.Size(); w != 640 || h != 400 {
		t.Errorf("Mono400P.Size() = %dx%d, want 640x400", w, h)
	}
	if w, h := Mono800P.Size(); w != 1280 || h != 800 {
		t.Errorf("Mono800P.Size() = %dx%d, want 1280x800", w, h)
	}
}

func TestColorResolutionJSONRoundTrip(t *testing.T) {
	for res, name := range colorResolutionNames {
		data, err := res.MarshalJSON()
		if err != nil {
			t.Fatalf("marshal %v: %v", res, err)
		}
		var back ColorResolution
		if err := back.UnmarshalJSON(data); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if back != res {
			t.Errorf("round trip %s: got %v, want %v", name, back, res)
		}
	}
}
