package stress

import (
	"fmt"

	"github.com/banshee-data/oakstress/internal/oak"
)

// Fixed stream names. At most one ToF sensor and one stereo pair are
// driven per device, so these need no socket suffix.
const (
	SysLogStream     = "sys_log"
	CamControlStream = "cam_control"
	ToFStream        = "tof"
	ToFConfigStream  = "tof_config"
	DepthStream      = "depth"
	YoloStream       = "yolo"
)

// PreviewStream names the color preview stream for a socket, for
// example "preview_CAM_A".
func PreviewStream(socket oak.CameraBoardSocket) string {
	return fmt.Sprintf("preview_%s", socket)
}

// EncoderStream names the encoded bitstream output for a socket.
func EncoderStream(socket oak.CameraBoardSocket) string {
	return fmt.Sprintf("%s.ve_out", socket)
}

// EdgeStream names the edge detector output for a socket.
func EdgeStream(socket oak.CameraBoardSocket) string {
	return fmt.Sprintf("%s.edge_detector", socket)
}
