package stress

import (
	"fmt"

	"github.com/banshee-data/oakstress/internal/oak"
	"github.com/banshee-data/oakstress/internal/oak/device"
)

// Tuning operating ranges and step sizes.
const (
	dotStep   = 100
	floodStep = 100

	minISO  = 0
	maxISO  = 1600
	isoStep = 50

	minExposureUs  = 0
	maxExposureUs  = 33000
	exposureStep   = 500
	defaultDotMa   = 500
	defaultFloodMa = 500
)

// Tuning holds the operator-adjustable camera and illumination settings.
// All values stay clamped to their hardware ranges.
type Tuning struct {
	DotMa      int
	FloodMa    int
	ISO        int
	ExposureUs int
}

// DefaultTuning returns the settings a run starts with.
func DefaultTuning() Tuning {
	return Tuning{
		DotMa:      defaultDotMa,
		FloodMa:    defaultFloodMa,
		ISO:        800,
		ExposureUs: 20000,
	}
}

// Change reports which device-side setting a key press touched, so the
// run loop knows whether to send an IR command or a camera control.
type Change int

const (
	ChangeNone Change = iota
	ChangeDot
	ChangeFlood
	ChangeExposure
	ChangeQuit
)

// HandleKey adjusts the tuning for one key press and reports what
// changed. Unrecognized keys leave the tuning alone.
//
//	q        quit
//	a / d    IR dot projector down / up
//	s / w    IR flood light down / up
//	k / l    sensor ISO down / up
//	i / o    exposure time down / up
func (t *Tuning) HandleKey(key byte) Change {
	switch key {
	case 'q':
		return ChangeQuit
	case 'a':
		t.DotMa = oak.Clamp(t.DotMa-dotStep, 0, device.MaxDotProjectorMa)
		return ChangeDot
	case 'd':
		t.DotMa = oak.Clamp(t.DotMa+dotStep, 0, device.MaxDotProjectorMa)
		return ChangeDot
	case 's':
		t.FloodMa = oak.Clamp(t.FloodMa-floodStep, 0, device.MaxFloodLightMa)
		return ChangeFlood
	case 'w':
		t.FloodMa = oak.Clamp(t.FloodMa+floodStep, 0, device.MaxFloodLightMa)
		return ChangeFlood
	case 'k':
		t.ISO = oak.Clamp(t.ISO-isoStep, minISO, maxISO)
		return ChangeExposure
	case 'l':
		t.ISO = oak.Clamp(t.ISO+isoStep, minISO, maxISO)
		return ChangeExposure
	case 'i':
		t.ExposureUs = oak.Clamp(t.ExposureUs-exposureStep, minExposureUs, maxExposureUs)
		return ChangeExposure
	case 'o':
		t.ExposureUs = oak.Clamp(t.ExposureUs+exposureStep, minExposureUs, maxExposureUs)
		return ChangeExposure
	}
	return ChangeNone
}

func (t Tuning) String() string {
	return fmt.Sprintf("dot=%dmA flood=%dmA iso=%d exposure=%dus",
		t.DotMa, t.FloodMa, t.ISO, t.ExposureUs)
}
