// Package message defines the typed messages exchanged with the device over
// XLink streams and the codec that frames them on the wire.
package message

import (
	"fmt"
	"time"

	"github.com/banshee-data/oakstress/internal/oak"
)

// DatatypeEnum tags the concrete message type inside a stream packet.
type DatatypeEnum uint32

const (
	TypeBuffer DatatypeEnum = iota
	TypeImgFrame
	TypeCameraControl
	TypeImgDetections
	TypeSpatialImgDetections
	TypeSystemInformation
	TypeEdgeDetectorConfig
	TypeToFConfig
)

func (d DatatypeEnum) String() string {
	switch d {
	case TypeBuffer:
		return "Buffer"
	case TypeImgFrame:
		return "ImgFrame"
	case TypeCameraControl:
		return "CameraControl"
	case TypeImgDetections:
		return "ImgDetections"
	case TypeSpatialImgDetections:
		return "SpatialImgDetections"
	case TypeSystemInformation:
		return "SystemInformation"
	case TypeEdgeDetectorConfig:
		return "EdgeDetectorConfig"
	case TypeToFConfig:
		return "ToFConfig"
	default:
		return fmt.Sprintf("Datatype(%d)", uint32(d))
	}
}

// Message is any payload that can travel on an XLink stream.
type Message interface {
	Datatype() DatatypeEnum
}

// FrameType describes the pixel layout of an ImgFrame payload.
type FrameType string

const (
	FrameGray8     FrameType = "GRAY8"
	FrameRaw8      FrameType = "RAW8"
	FrameRaw16     FrameType = "RAW16"
	FrameNV12      FrameType = "NV12"
	FrameBGR888p   FrameType = "BGR888p"
	FrameBitstream FrameType = "BITSTREAM"
)

// Buffer is an opaque byte payload, used for calibration reads and other
// raw transfers.
type Buffer struct {
	Data []byte `json:"-"`
}

func (*Buffer) Datatype() DatatypeEnum { return TypeBuffer }

// ImgFrame is a single image produced by a camera or processing node.
// Data holds the raw pixels in the layout named by Type; the remaining
// fields travel as packet metadata.
type ImgFrame struct {
	Type        FrameType             `json:"type"`
	Width       int                   `json:"width"`
	Height      int                   `json:"height"`
	Instance    oak.CameraBoardSocket `json:"instanceNum"`
	SequenceNum int64                 `json:"sequenceNum"`
	TimestampNs int64                 `json:"timestamp"`
	ExposureUs  int                   `json:"exposureTimeUs"`
	ISO         int                   `json:"sensitivityIso"`
	Data        []byte                `json:"-"`
}

func (*ImgFrame) Datatype() DatatypeEnum { return TypeImgFrame }

// Timestamp returns the device-side capture time.
func (f *ImgFrame) Timestamp() time.Time {
	return time.Unix(0, f.TimestampNs)
}

// PixelSize returns the expected payload size in bytes for the frame's
// dimensions, or 0 for layouts without a fixed size (BITSTREAM).
func (f *ImgFrame) PixelSize() int {
	px := f.Width * f.Height
	switch f.Type {
	case FrameGray8, FrameRaw8:
		return px
	case FrameRaw16:
		return 2 * px
	case FrameNV12:
		return px + px/2
	case FrameBGR888p:
		return 3 * px
	default:
		return 0
	}
}

// CameraControl adjusts camera capture parameters at runtime. Zero values
// mean "leave unchanged"; SetManualExposure fills both exposure fields.
type CameraControl struct {
	ExposureTimeUs int `json:"expTimeUs,omitempty"`
	SensitivityISO int `json:"sensitivityIso,omitempty"`
}

func (*CameraControl) Datatype() DatatypeEnum { return TypeCameraControl }

// SetManualExposure switches the camera out of auto exposure and applies
// the given exposure time and sensitivity.
func (c *CameraControl) SetManualExposure(exposureUs, iso int) {
	c.ExposureTimeUs = exposureUs
	c.SensitivityISO = iso
}

// Detection is one detected object in normalized image coordinates.
type Detection struct {
	Label      int     `json:"label"`
	Confidence float32 `json:"confidence"`
	XMin       float32 `json:"xmin"`
	YMin       float32 `json:"ymin"`
	XMax       float32 `json:"xmax"`
	YMax       float32 `json:"ymax"`
}

// ImgDetections is the output of an object detection network.
type ImgDetections struct {
	SequenceNum int64       `json:"sequenceNum"`
	Detections  []Detection `json:"detections"`
}

func (*ImgDetections) Datatype() DatatypeEnum { return TypeImgDetections }

// SpatialDetection extends Detection with the object's position relative
// to the camera, in millimeters.
type SpatialDetection struct {
	Detection
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// SpatialImgDetections is the output of a spatial detection network,
// detections fused with depth.
type SpatialImgDetections struct {
	SequenceNum int64              `json:"sequenceNum"`
	Detections  []SpatialDetection `json:"detections"`
}

func (*SpatialImgDetections) Datatype() DatatypeEnum { return TypeSpatialImgDetections }

// MemoryUsage reports one memory region, in bytes.
type MemoryUsage struct {
	Used  int64 `json:"used"`
	Total int64 `json:"total"`
}

// UsedMiB converts the used byte count to mebibytes.
func (m MemoryUsage) UsedMiB() float64 { return float64(m.Used) / (1024.0 * 1024.0) }

// TotalMiB converts the total byte count to mebibytes.
func (m MemoryUsage) TotalMiB() float64 { return float64(m.Total) / (1024.0 * 1024.0) }

// ChipTemperature reports the on-chip temperature sensors, in Celsius.
type ChipTemperature struct {
	Average float64 `json:"average"`
	Css     float64 `json:"css"`
	Mss     float64 `json:"mss"`
	Upa     float64 `json:"upa"`
	Dss     float64 `json:"dss"`
}

// CpuUsage reports processor load as a 0..1 fraction.
type CpuUsage struct {
	Average float64 `json:"average"`
}

// SystemInformation is the periodic device telemetry emitted by the
// system logger node.
type SystemInformation struct {
	DdrMemoryUsage     MemoryUsage     `json:"ddrMemoryUsage"`
	CmxMemoryUsage     MemoryUsage     `json:"cmxMemoryUsage"`
	LeonCssMemoryUsage MemoryUsage     `json:"leonCssMemoryUsage"`
	LeonMssMemoryUsage MemoryUsage     `json:"leonMssMemoryUsage"`
	ChipTemperature    ChipTemperature `json:"chipTemperature"`
	LeonCssCpuUsage    CpuUsage        `json:"leonCssCpuUsage"`
	LeonMssCpuUsage    CpuUsage        `json:"leonMssCpuUsage"`
}

func (*SystemInformation) Datatype() DatatypeEnum { return TypeSystemInformation }

// ToFFrequencyModulation selects the modulation frequency set used by the
// time-of-flight decoder.
type ToFFrequencyModulation string

const (
	ToFFModMin ToFFrequencyModulation = "MIN"
	ToFFModMax ToFFrequencyModulation = "MAX"
	ToFFModAll ToFFrequencyModulation = "ALL"
)

// ToFConfig tunes the on-device time-of-flight depth decoder.
type ToFConfig struct {
	FreqModUsed      ToFFrequencyModulation `json:"freqModUsed"`
	AvgPhaseShuffle  bool                   `json:"avgPhaseShuffle"`
	MinimumAmplitude float64                `json:"minimumAmplitude"`
}

func (*ToFConfig) Datatype() DatatypeEnum { return TypeToFConfig }

// EdgeDetectorConfig carries the Sobel kernels for the edge detector node.
type EdgeDetectorConfig struct {
	SobelHorizontal [3][3]int `json:"sobelFilterHorizontalKernel"`
	SobelVertical   [3][3]int `json:"sobelFilterVerticalKernel"`
}

func (*EdgeDetectorConfig) Datatype() DatatypeEnum { return TypeEdgeDetectorConfig }
