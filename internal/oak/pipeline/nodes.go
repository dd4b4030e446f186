package pipeline

import (
	"github.com/banshee-data/oakstress/internal/oak"
	"github.com/banshee-data/oakstress/internal/oak/message"
)

// Node kind names as they appear in the serialized schema. The device
// firmware instantiates processing blocks by these names.
const (
	KindColorCamera          = "ColorCamera"
	KindMonoCamera           = "MonoCamera"
	KindToF                  = "ToF"
	KindStereoDepth          = "StereoDepth"
	KindVideoEncoder         = "VideoEncoder"
	KindEdgeDetector         = "EdgeDetector"
	KindYoloDetectionNetwork = "YoloDetectionNetwork"
	KindYoloSpatialNetwork   = "YoloSpatialDetectionNetwork"
	KindSystemLogger         = "SystemLogger"
	KindXLinkIn              = "XLinkIn"
	KindXLinkOut             = "XLinkOut"
)

// nodeOutputs and nodeInputs list the valid port names per node kind.
// Link validates against these so a typo'd port fails at build time on the
// host instead of an opaque error from the device.
var nodeOutputs = map[string][]string{
	KindColorCamera:          {"preview", "video", "isp", "raw"},
	KindMonoCamera:           {"out", "raw"},
	KindToF:                  {"depth"},
	KindStereoDepth:          {"depth", "disparity", "syncedLeft", "syncedRight"},
	KindVideoEncoder:         {"bitstream"},
	KindEdgeDetector:         {"outputImage"},
	KindYoloDetectionNetwork: {"out", "passthrough"},
	KindYoloSpatialNetwork:   {"out", "passthrough", "passthroughDepth", "boundingBoxMapping"},
	KindSystemLogger:         {"out"},
	KindXLinkIn:              {"out"},
}

var nodeInputs = map[string][]string{
	KindColorCamera:          {"inputControl", "inputConfig"},
	KindMonoCamera:           {"inputControl"},
	KindToF:                  {"input", "inputConfig"},
	KindStereoDepth:          {"left", "right", "inputConfig"},
	KindVideoEncoder:         {"input"},
	KindEdgeDetector:         {"inputImage", "inputConfig"},
	KindYoloDetectionNetwork: {"input"},
	KindYoloSpatialNetwork:   {"input", "inputDepth"},
	KindXLinkOut:             {"input"},
}

// ColorCamera drives a color sensor. Raw output is only consumed by the
// ToF decoder; regular color branches use preview, video or isp.
type ColorCamera struct {
	id int

	Socket      oak.CameraBoardSocket `json:"boardSocket"`
	Resolution  oak.ColorResolution   `json:"resolution"`
	FPS         float64               `json:"fps"`
	PreviewW    int                   `json:"previewWidth,omitempty"`
	PreviewH    int                   `json:"previewHeight,omitempty"`
	Interleaved bool                  `json:"interleaved"`
	ColorOrder  string                `json:"colorOrder,omitempty"`
	IspScaleNum int                   `json:"ispScaleNum,omitempty"`
	IspScaleDen int                   `json:"ispScaleDen,omitempty"`
}

func (n *ColorCamera) nodeID() int { return n.id }
func (n *ColorCamera) Kind() string { return KindColorCamera }
func (n *ColorCamera) props() any { return n }
func (n *ColorCamera) Preview() Output {
	return Output{NodeID: n.id, Port: "preview", kind: n.Kind()}
}
func (n *ColorCamera) Video() Output { return Output{NodeID: n.id, Port: "video", kind: n.Kind()} }
func (n *ColorCamera) Isp() Output { return Output{NodeID: n.id, Port: "isp", kind: n.Kind()} }
func (n *ColorCamera) Raw() Output { return Output{NodeID: n.id, Port: "raw", kind: n.Kind()} }
func (n *ColorCamera) InputControl() Input {
	return Input{NodeID: n.id, Port: "inputControl", kind: n.Kind()}
}

// SetPreviewSize sets the preview output dimensions.
func (n *ColorCamera) SetPreviewSize(w, h int) {
	n.PreviewW = w
	n.PreviewH = h
}

// SetIspScale downscales the ISP output by num/den.
func (n *ColorCamera) SetIspScale(num, den int) {
	n.IspScaleNum = num
	n.IspScaleDen = den
}

// Width returns the configured sensor resolution width.
func (n *ColorCamera) Width() int {
	w, _ := n.Resolution.Size()
	return w
}

// Height returns the configured sensor resolution height.
func (n *ColorCamera) Height() int {
	_, h := n.Resolution.Size()
	return h
}

// MonoCamera drives a grayscale sensor.
type MonoCamera struct {
	id int

	Socket     oak.CameraBoardSocket `json:"boardSocket"`
	Resolution oak.MonoResolution    `json:"resolution"`
	FPS        float64               `json:"fps"`
}

func (n *MonoCamera) nodeID() int { return n.id }
func (n *MonoCamera) Kind() string { return KindMonoCamera }
func (n *MonoCamera) props() any { return n }
func (n *MonoCamera) Out() Output { return Output{NodeID: n.id, Port: "out", kind: n.Kind()} }
func (n *MonoCamera) InputControl() Input {
	return Input{NodeID: n.id, Port: "inputControl", kind: n.Kind()}
}

// Width returns the configured sensor resolution width.
func (n *MonoCamera) Width() int {
	w, _ := n.Resolution.Size()
	return w
}

// Height returns the configured sensor resolution height.
func (n *MonoCamera) Height() int {
	_, h := n.Resolution.Size()
	return h
}

// ToF decodes raw modulated-light captures into depth frames.
type ToF struct {
	id int

	InitialConfig message.ToFConfig `json:"initialConfig"`
}

func (n *ToF) nodeID() int { return n.id }
func (n *ToF) Kind() string { return KindToF }
func (n *ToF) props() any { return n }
func (n *ToF) Depth() Output { return Output{NodeID: n.id, Port: "depth", kind: n.Kind()} }
func (n *ToF) Input() Input { return Input{NodeID: n.id, Port: "input", kind: n.Kind()} }
func (n *ToF) InputConfig() Input {
	return Input{NodeID: n.id, Port: "inputConfig", kind: n.Kind()}
}

// StereoDepth computes depth from a rectified stereo pair.
type StereoDepth struct {
	id int

	Preset         string                `json:"preset"`
	LeftRightCheck bool                  `json:"leftRightCheck"`
	Subpixel       bool                  `json:"subpixel"`
	OutputWidth    int                   `json:"outputWidth,omitempty"`
	OutputHeight   int                   `json:"outputHeight,omitempty"`
	DepthAlign     oak.CameraBoardSocket `json:"depthAlign"`
}

// PresetHighDensity favors coverage over accuracy, the right trade for a
// load test.
const PresetHighDensity = "HIGH_DENSITY"

func (n *StereoDepth) nodeID() int { return n.id }
func (n *StereoDepth) Kind() string { return KindStereoDepth }
func (n *StereoDepth) props() any { return n }
func (n *StereoDepth) Left() Input { return Input{NodeID: n.id, Port: "left", kind: n.Kind()} }
func (n *StereoDepth) Right() Input { return Input{NodeID: n.id, Port: "right", kind: n.Kind()} }
func (n *StereoDepth) Depth() Output { return Output{NodeID: n.id, Port: "depth", kind: n.Kind()} }

// SetOutputSize fixes the depth output dimensions.
func (n *StereoDepth) SetOutputSize(w, h int) {
	n.OutputWidth = w
	n.OutputHeight = h
}

// VideoEncoder compresses a camera stream on device.
type VideoEncoder struct {
	id int

	Profile string  `json:"profile"`
	FPS     float64 `json:"fps"`
}

// ProfileH264Main is the encoder profile used for stress streams.
const ProfileH264Main = "H264_MAIN"

func (n *VideoEncoder) nodeID() int { return n.id }
func (n *VideoEncoder) Kind() string { return KindVideoEncoder }
func (n *VideoEncoder) props() any { return n }
func (n *VideoEncoder) Input() Input { return Input{NodeID: n.id, Port: "input", kind: n.Kind()} }
func (n *VideoEncoder) Bitstream() Output {
	return Output{NodeID: n.id, Port: "bitstream", kind: n.Kind()}
}

// SetDefaultProfilePreset configures the encoder the way the firmware
// defaults do for the given fps and profile.
func (n *VideoEncoder) SetDefaultProfilePreset(fps float64, profile string) {
	n.FPS = fps
	n.Profile = profile
}

// EdgeDetector runs a Sobel filter over a camera stream.
type EdgeDetector struct {
	id int

	MaxOutputFrameSize int `json:"maxOutputFrameSize,omitempty"`
}

func (n *EdgeDetector) nodeID() int { return n.id }
func (n *EdgeDetector) Kind() string { return KindEdgeDetector }
func (n *EdgeDetector) props() any { return n }
func (n *EdgeDetector) InputImage() Input {
	return Input{NodeID: n.id, Port: "inputImage", kind: n.Kind()}
}
func (n *EdgeDetector) OutputImage() Output {
	return Output{NodeID: n.id, Port: "outputImage", kind: n.Kind()}
}

// YoloDetectionNetwork runs a YOLO model over preview frames.
type YoloDetectionNetwork struct {
	id int

	BlobPath            string           `json:"blobPath"`
	ConfidenceThreshold float64          `json:"confidenceThreshold"`
	NumClasses          int              `json:"numClasses"`
	CoordinateSize      int              `json:"coordinateSize"`
	Anchors             []float64        `json:"anchors"`
	AnchorMasks         map[string][]int `json:"anchorMasks"`
	IouThreshold        float64          `json:"iouThreshold"`
	InputBlocking       bool             `json:"inputBlocking"`
}

func (n *YoloDetectionNetwork) nodeID() int { return n.id }
func (n *YoloDetectionNetwork) Kind() string { return KindYoloDetectionNetwork }
func (n *YoloDetectionNetwork) props() any { return n }
func (n *YoloDetectionNetwork) Input() Input {
	return Input{NodeID: n.id, Port: "input", kind: n.Kind()}
}
func (n *YoloDetectionNetwork) Out() Output {
	return Output{NodeID: n.id, Port: "out", kind: n.Kind()}
}

// YoloSpatialDetectionNetwork fuses YOLO detections with stereo depth to
// locate objects in space.
type YoloSpatialDetectionNetwork struct {
	id int

	BlobPath               string           `json:"blobPath"`
	ConfidenceThreshold    float64          `json:"confidenceThreshold"`
	NumClasses             int              `json:"numClasses"`
	CoordinateSize         int              `json:"coordinateSize"`
	Anchors                []float64        `json:"anchors"`
	AnchorMasks            map[string][]int `json:"anchorMasks"`
	IouThreshold           float64          `json:"iouThreshold"`
	InputBlocking          bool             `json:"inputBlocking"`
	BoundingBoxScaleFactor float64          `json:"boundingBoxScaleFactor"`
	DepthLowerThresholdMM  int              `json:"depthLowerThreshold"`
	DepthUpperThresholdMM  int              `json:"depthUpperThreshold"`
}

func (n *YoloSpatialDetectionNetwork) nodeID() int { return n.id }
func (n *YoloSpatialDetectionNetwork) Kind() string { return KindYoloSpatialNetwork }
func (n *YoloSpatialDetectionNetwork) props() any { return n }
func (n *YoloSpatialDetectionNetwork) Input() Input {
	return Input{NodeID: n.id, Port: "input", kind: n.Kind()}
}
func (n *YoloSpatialDetectionNetwork) InputDepth() Input {
	return Input{NodeID: n.id, Port: "inputDepth", kind: n.Kind()}
}
func (n *YoloSpatialDetectionNetwork) Out() Output {
	return Output{NodeID: n.id, Port: "out", kind: n.Kind()}
}
func (n *YoloSpatialDetectionNetwork) PassthroughDepth() Output {
	return Output{NodeID: n.id, Port: "passthroughDepth", kind: n.Kind()}
}

// SystemLogger periodically reports device telemetry.
type SystemLogger struct {
	id int

	RateHz float64 `json:"rateHz"`
}

func (n *SystemLogger) nodeID() int { return n.id }
func (n *SystemLogger) Kind() string { return KindSystemLogger }
func (n *SystemLogger) props() any { return n }
func (n *SystemLogger) Out() Output { return Output{NodeID: n.id, Port: "out", kind: n.Kind()} }

// SetRate sets how often telemetry is emitted.
func (n *SystemLogger) SetRate(hz float64) { n.RateHz = hz }

// XLinkIn receives host messages on a named stream and forwards them to
// linked inputs.
type XLinkIn struct {
	id int

	StreamName string `json:"streamName"`
}

func (n *XLinkIn) nodeID() int { return n.id }
func (n *XLinkIn) Kind() string { return KindXLinkIn }
func (n *XLinkIn) props() any { return n }
func (n *XLinkIn) Out() Output { return Output{NodeID: n.id, Port: "out", kind: n.Kind()} }

// SetStreamName names the host-to-device stream.
func (n *XLinkIn) SetStreamName(name string) { n.StreamName = name }

// XLinkOut forwards messages from a linked output to the host on a named
// stream. Queue behavior of the device-side input is part of the node
// configuration.
type XLinkOut struct {
	id int

	StreamName     string `json:"streamName"`
	InputBlocking  *bool  `json:"inputBlocking,omitempty"`
	InputQueueSize *int   `json:"inputQueueSize,omitempty"`
}

func (n *XLinkOut) nodeID() int { return n.id }
func (n *XLinkOut) Kind() string { return KindXLinkOut }
func (n *XLinkOut) props() any { return n }
func (n *XLinkOut) Input() Input { return Input{NodeID: n.id, Port: "input", kind: n.Kind()} }

// SetStreamName names the device-to-host stream.
func (n *XLinkOut) SetStreamName(name string) { n.StreamName = name }

// SetInputBlocking controls whether the device-side input blocks the
// producer when full.
func (n *XLinkOut) SetInputBlocking(blocking bool) { n.InputBlocking = &blocking }

// SetInputQueueSize sets the device-side input queue depth.
func (n *XLinkOut) SetInputQueueSize(size int) { n.InputQueueSize = &size }
