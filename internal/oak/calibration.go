package oak

import (
	"encoding/json"
	"fmt"
)

// StereoRectification records which sockets the factory calibration used
// for the stereo pair. These drive which cameras feed the depth node.
type StereoRectification struct {
	LeftSocket  CameraBoardSocket `json:"leftCameraSocket"`
	RightSocket CameraBoardSocket `json:"rightCameraSocket"`
}

// CalibrationData is the subset of the device EEPROM the host needs:
// board identification plus the stereo rectification socket assignment.
type CalibrationData struct {
	BoardName           string              `json:"boardName"`
	ProductName         string              `json:"productName"`
	BoardRev            string              `json:"boardRev"`
	BatchTime           int64               `json:"batchTime"`
	StereoRectification StereoRectification `json:"stereoRectificationData"`
}

// ParseCalibration decodes the calibration JSON read from the device.
func ParseCalibration(data []byte) (*CalibrationData, error) {
	var calib CalibrationData
	if err := json.Unmarshal(data, &calib); err != nil {
		return nil, fmt.Errorf("parse calibration data: %w", err)
	}
	return &calib, nil
}

func (c *CalibrationData) String() string {
	return fmt.Sprintf("%s (%s) stereo left=%s right=%s",
		c.BoardName, c.ProductName,
		c.StereoRectification.LeftSocket, c.StereoRectification.RightSocket)
}
