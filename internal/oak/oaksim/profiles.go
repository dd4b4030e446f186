// Package oaksim is an in-process fake camera device speaking the same
// TCP/UDP protocol as real hardware. It backs the -dev mode of the
// stress tool and the protocol-level tests when no camera is plugged
// in.
package oaksim

import (
	"fmt"

	"github.com/banshee-data/oakstress/internal/oak"
)

// Profile describes the hardware a simulated device reports: which
// sensors sit on which sockets and what the calibration EEPROM says.
type Profile struct {
	Name        string
	BoardName   string
	ProductName string
	Cameras     []oak.CameraFeatures
	Calibration oak.CalibrationData

	// FailCalibration makes calibration reads return an EEPROM error,
	// for exercising the fatal path on the host.
	FailCalibration bool
}

func colorFeature(socket oak.CameraBoardSocket, sensor string, w, h int) oak.CameraFeatures {
	return oak.CameraFeatures{
		Socket:         socket,
		SensorName:     sensor,
		SupportedTypes: []oak.CameraSensorType{oak.SensorColor},
		Configs: []oak.SensorConfig{
			{Width: 1280, Height: 720, MinFPS: 2, MaxFPS: 60, Type: oak.SensorColor},
			{Width: w, Height: h, MinFPS: 2, MaxFPS: 30, Type: oak.SensorColor},
		},
	}
}

func monoFeature(socket oak.CameraBoardSocket) oak.CameraFeatures {
	return oak.CameraFeatures{
		Socket:         socket,
		SensorName:     "OV9282",
		SupportedTypes: []oak.CameraSensorType{oak.SensorMono},
		Configs: []oak.SensorConfig{
			{Width: 640, Height: 400, MinFPS: 2, MaxFPS: 120, Type: oak.SensorMono},
			{Width: 1280, Height: 800, MinFPS: 2, MaxFPS: 60, Type: oak.SensorMono},
		},
	}
}

func tofFeature(socket oak.CameraBoardSocket) oak.CameraFeatures {
	return oak.CameraFeatures{
		Socket:         socket,
		SensorName:     "MTP006",
		SupportedTypes: []oak.CameraSensorType{oak.SensorToF},
		Configs: []oak.SensorConfig{
			{Width: 640, Height: 480, MinFPS: 2, MaxFPS: 30, Type: oak.SensorToF},
		},
	}
}

func stereoCalib(board, product string) oak.CalibrationData {
	return oak.CalibrationData{
		BoardName:   board,
		ProductName: product,
		BoardRev:    "R3M2E3",
		BatchTime:   1735689600,
		StereoRectification: oak.StereoRectification{
			LeftSocket:  oak.SocketCamB,
			RightSocket: oak.SocketCamC,
		},
	}
}

// Profiles are the simulated hardware configurations selectable with
// -dev-profile.
var Profiles = map[string]Profile{
	"oak-d": {
		Name:        "oak-d",
		BoardName:   "DM9098",
		ProductName: "OAK-D S2",
		Cameras: []oak.CameraFeatures{
			colorFeature(oak.SocketCamA, "IMX378", 4056, 3040),
			monoFeature(oak.SocketCamB),
			monoFeature(oak.SocketCamC),
		},
		Calibration: stereoCalib("DM9098", "OAK-D S2"),
	},
	"oak-1": {
		Name:        "oak-1",
		BoardName:   "NG9097",
		ProductName: "OAK-1",
		Cameras: []oak.CameraFeatures{
			colorFeature(oak.SocketCamA, "IMX378", 4056, 3040),
		},
		Calibration: oak.CalibrationData{
			BoardName:   "NG9097",
			ProductName: "OAK-1",
			BoardRev:    "R2M1E2",
			BatchTime:   1735689600,
			// Single-camera boards still carry the socket defaults in
			// the EEPROM even though no stereo pair exists.
			StereoRectification: oak.StereoRectification{
				LeftSocket:  oak.SocketCamB,
				RightSocket: oak.SocketCamC,
			},
		},
	},
	"oak-d-tof": {
		Name:        "oak-d-tof",
		BoardName:   "DM9098TOF",
		ProductName: "OAK-D SR PoE ToF",
		Cameras: []oak.CameraFeatures{
			tofFeature(oak.SocketCamA),
			monoFeature(oak.SocketCamB),
			monoFeature(oak.SocketCamC),
		},
		Calibration: stereoCalib("DM9098TOF", "OAK-D SR PoE ToF"),
	},
	"no-cameras": {
		Name:        "no-cameras",
		BoardName:   "BARE",
		ProductName: "bare board",
		Calibration: stereoCalib("BARE", "bare board"),
	},
}

// LookupProfile resolves a -dev-profile flag value.
func LookupProfile(name string) (Profile, error) {
	p, ok := Profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown device profile %q", name)
	}
	return p, nil
}
