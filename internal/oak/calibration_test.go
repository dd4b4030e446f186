package oak

import (
	"strings"
	"testing"
)

func TestParseCalibration(t *testing.T) {
	data := []byte(`{
		"boardName": "OAK-D-PRO",
		"productName": "OAK-D Pro",
		"boardRev": "R3M2E3",
		"batchTime": 1656342355,
		"stereoRectificationData": {
			"leftCameraSocket": "CAM_B",
			"rightCameraSocket": "CAM_C"
		}
	}`)

	calib, err := ParseCalibration(data)
	if err != nil {
		t.Fatalf("ParseCalibration: %v", err)
	}
	if calib.BoardName != "OAK-D-PRO" {
		t.Errorf("BoardName = %q, want OAK-D-PRO", calib.BoardName)
	}
	if calib.StereoRectification.LeftSocket != SocketCamB {
		t.Errorf("LeftSocket = %v, want CAM_B", calib.StereoRectification.LeftSocket)
	}
	if calib.StereoRectification.RightSocket != SocketCamC {
		t.Errorf("RightSocket = %v, want CAM_C", calib.StereoRectification.RightSocket)
	}
	if !strings.Contains(calib.String(), "OAK-D-PRO") {
		t.Errorf("String() = %q, missing board name", calib.String())
	}
}

func TestParseCalibrationInvalid(t *testing.T) {
	if _, err := ParseCalibration([]byte("not json")); err == nil {
		t.Error("ParseCalibration accepted malformed data")
	}
	if _, err := ParseCalibration([]byte(`{"stereoRectificationData":{"leftCameraSocket":"CAM_Q"}}`)); err == nil {
		t.Error("ParseCalibration accepted an unknown socket name")
	}
}
