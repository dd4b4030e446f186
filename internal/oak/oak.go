// Package oak models the host-visible surface of an OAK camera device:
// board sockets, sensor capabilities, link speed and calibration data.
// It carries no transport logic; see the xlink and device packages.
package oak

import (
	"encoding/json"
	"fmt"
)

// CameraBoardSocket identifies a physical camera connector on the board.
// CAM_A is conventionally the RGB/center socket, CAM_B the left and CAM_C
// the right socket of a stereo pair.
type CameraBoardSocket int

const (
	SocketAuto CameraBoardSocket = iota - 1
	SocketCamA
	SocketCamB
	SocketCamC
	SocketCamD
)

var socketNames = map[CameraBoardSocket]string{
	SocketAuto: "AUTO",
	SocketCamA: "CAM_A",
	SocketCamB: "CAM_B",
	SocketCamC: "CAM_C",
	SocketCamD: "CAM_D",
}

func (s CameraBoardSocket) String() string {
	if name, ok := socketNames[s]; ok {
		return name
	}
	return fmt.Sprintf("CAM_%d", int(s))
}

// ParseSocket converts a socket name such as "CAM_A" back to its constant.
func ParseSocket(name string) (CameraBoardSocket, error) {
	for s, n := range socketNames {
		if n == name {
			return s, nil
		}
	}
	return SocketAuto, fmt.Errorf("unknown camera board socket %q", name)
}

// MarshalJSON encodes the socket by name so pipeline schemas and
// calibration blobs stay readable.
func (s CameraBoardSocket) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *CameraBoardSocket) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseSocket(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// CameraSensorType classifies what a sensor on a given socket produces.
type CameraSensorType int

const (
	SensorColor CameraSensorType = iota
	SensorMono
	SensorToF
	SensorThermal
)

var sensorTypeNames = map[CameraSensorType]string{
	SensorColor:   "COLOR",
	SensorMono:    "MONO",
	SensorToF:     "TOF",
	SensorThermal: "THERMAL",
}

func (t CameraSensorType) String() string {
	if name, ok := sensorTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("SENSOR_%d", int(t))
}

func (t CameraSensorType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *CameraSensorType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for st, n := range sensorTypeNames {
		if n == name {
			*t = st
			return nil
		}
	}
	return fmt.Errorf("unknown camera sensor type %q", name)
}

// UsbSpeed reports the negotiated link speed. PoE devices report UNKNOWN.
type UsbSpeed int

const (
	UsbUnknown UsbSpeed = iota
	UsbLow
	UsbFull
	UsbHigh
	UsbSuper
	UsbSuperPlus
)

func (u UsbSpeed) String() string {
	switch u {
	case UsbLow:
		return "LOW"
	case UsbFull:
		return "FULL"
	case UsbHigh:
		return "HIGH"
	case UsbSuper:
		return "SUPER"
	case UsbSuperPlus:
		return "SUPER_PLUS"
	default:
		return "UNKNOWN"
	}
}

// SensorConfig is one advertised operating mode of a camera sensor.
type SensorConfig struct {
	Width  int              `json:"width"`
	Height int              `json:"height"`
	MinFPS float64          `json:"minFps"`
	MaxFPS float64          `json:"maxFps"`
	Type   CameraSensorType `json:"type"`
}

// CameraFeatures describes one connected camera sensor as enumerated by
// the device. Configs are ordered smallest to largest frame size, so the
// last entry is the full sensor resolution.
type CameraFeatures struct {
	Socket         CameraBoardSocket  `json:"socket"`
	SensorName     string             `json:"sensorName"`
	SupportedTypes []CameraSensorType `json:"supportedTypes"`
	Configs        []SensorConfig     `json:"configs"`
}

// MaxSensorSize returns the largest advertised sensor mode.
func (f CameraFeatures) MaxSensorSize() (width, height int) {
	if len(f.Configs) == 0 {
		return 0, 0
	}
	last := f.Configs[len(f.Configs)-1]
	return last.Width, last.Height
}

// Kind returns the primary sensor type, which decides how the sensor is
// driven (mono pipeline, color pipeline or time-of-flight decode).
func (f CameraFeatures) Kind() CameraSensorType {
	if len(f.SupportedTypes) == 0 {
		return SensorMono
	}
	return f.SupportedTypes[0]
}

// Clamp bounds v to the inclusive range [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
