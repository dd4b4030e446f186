package oak

import (
	"encoding/json"
	"fmt"
)

// ColorResolution names a color sensor operating resolution.
type ColorResolution int

const (
	Res720P ColorResolution = iota
	Res800P
	Res1080P
	Res1200P
	Res1440x1080
	Res4K
	Res5MP
	Res12MP
	Res13MP
	Res4000x3000
	Res5312x6000
)

var colorResolutionNames = map[ColorResolution]string{
	Res720P:      "720P",
	Res800P:      "800P",
	Res1080P:     "1080P",
	Res1200P:     "1200P",
	Res1440x1080: "1440X1080",
	Res4K:        "4K",
	Res5MP:       "5MP",
	Res12MP:      "12MP",
	Res13MP:      "13MP",
	Res4000x3000: "4000X3000",
	Res5312x6000: "5312X6000",
}

func (r ColorResolution) String() string {
	if name, ok := colorResolutionNames[r]; ok {
		return name
	}
	return fmt.Sprintf("RES_%d", int(r))
}

func (r ColorResolution) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *ColorResolution) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for res, n := range colorResolutionNames {
		if n == name {
			*r = res
			return nil
		}
	}
	return fmt.Errorf("unknown color resolution %q", name)
}

// Size returns the frame dimensions of the resolution.
func (r ColorResolution) Size() (width, height int) {
	switch r {
	case Res720P:
		return 1280, 720
	case Res800P:
		return 1280, 800
	case Res1080P:
		return 1920, 1080
	case Res1200P:
		return 1920, 1200
	case Res1440x1080:
		return 1440, 1080
	case Res4K:
		return 3840, 2160
	case Res5MP:
		return 2592, 1944
	case Res12MP:
		return 4056, 3040
	case Res13MP:
		return 4208, 3120
	case Res4000x3000:
		return 4000, 3000
	case Res5312x6000:
		return 5312, 6000
	default:
		return 0, 0
	}
}

// colorResolutions maps full sensor sizes to the resolution the sensor
// should be driven at. Keyed by (width, height) of the sensor's largest
// advertised mode; sensors missing from the table cannot be configured.
var colorResolutions = map[[2]int]ColorResolution{
	{5312, 6000}: Res5312x6000, // IMX582 cropped
	{4208, 3120}: Res13MP,      // AR214
	{4056, 3040}: Res12MP,      // IMX378, IMX477, IMX577
	{4000, 3000}: Res4000x3000, // IMX582 with binning enabled
	{3840, 2160}: Res4K,
	{1920, 1200}: Res1200P, // AR0234
	{1920, 1080}: Res1080P,
	{1440, 1080}: Res1440x1080,
	{2592, 1944}: Res5MP,  // OV5645
	{1280, 800}:  Res800P, // OV9782
	{1280, 720}:  Res720P,
}

// LookupColorResolution finds the named resolution for a sensor's maximum
// frame size. The second return is false for sensors the table does not
// cover; callers are expected to skip those cameras.
func LookupColorResolution(width, height int) (ColorResolution, bool) {
	res, ok := colorResolutions[[2]int{width, height}]
	return res, ok
}

// MonoResolution names a mono sensor operating resolution.
type MonoResolution int

const (
	Mono400P MonoResolution = iota
	Mono480P
	Mono720P
	Mono800P
)

func (r MonoResolution) String() string {
	switch r {
	case Mono400P:
		return "400P"
	case Mono480P:
		return "480P"
	case Mono720P:
		return "720P"
	case Mono800P:
		return "800P"
	default:
		return fmt.Sprintf("MONO_RES_%d", int(r))
	}
}

func (r MonoResolution) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *MonoResolution) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "400P":
		*r = Mono400P
	case "480P":
		*r = Mono480P
	case "720P":
		*r = Mono720P
	case "800P":
		*r = Mono800P
	default:
		return fmt.Errorf("unknown mono resolution %q", name)
	}
	return nil
}

// Size returns the frame dimensions of the resolution.
func (r MonoResolution) Size() (width, height int) {
	switch r {
	case Mono400P:
		return 640, 400
	case Mono480P:
		return 640, 480
	case Mono720P:
		return 1280, 720
	case Mono800P:
		return 1280, 800
	default:
		return 0, 0
	}
}
