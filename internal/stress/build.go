// Package stress builds the load-test pipeline for whatever camera
// hardware a device reports and drives the run: draining streams,
// displaying frames, applying operator tuning and tracking telemetry.
package stress

import (
	"fmt"

	"github.com/banshee-data/oakstress/internal/oak"
	"github.com/banshee-data/oakstress/internal/oak/message"
	"github.com/banshee-data/oakstress/internal/oak/pipeline"
)

// Camera capture settings for the stress topology.
const (
	cameraFPS  = 20
	encoderFPS = 10

	previewWidth  = 416
	previewHeight = 416

	// edgeMaxFrameSize covers a full 4K NV12 frame so the edge detector
	// never rejects a color stream.
	edgeMaxFrameSize = 8294400

	tofMinAmplitude = 3.0
)

// StreamSpec names one output stream the run loop must drain and the
// host queue settings to drain it with.
type StreamSpec struct {
	Name      string
	QueueSize int
	Blocking  bool
}

// BuildResult is a built stress pipeline plus the host-side queue plan.
type BuildResult struct {
	Pipeline *pipeline.Pipeline
	Streams  []StreamSpec

	// Warnings lists cameras that were skipped, one line each.
	Warnings []string

	// HasToF reports whether a time-of-flight branch was built, and with
	// it the host-to-device tof_config stream.
	HasToF bool
}

// builtCamera tracks what the builder placed on a socket so the stereo
// stage can find its left and right feeds.
type builtCamera struct {
	color *pipeline.ColorCamera
	mono  *pipeline.MonoCamera
}

// BuildPipeline wires the stress topology for the cameras physically
// present: per-sensor capture branches, video encoders on mono sensors
// while no color sensor is listed, at most one edge detector, stereo
// depth when the calibrated pair exists, and a detection network when
// there is a color camera to feed it. blobPath names the compiled YOLO
// model for the detection nodes.
//
// Cameras whose sensor resolution is not in the lookup table are
// skipped with a warning; a sensor type the tool cannot drive aborts
// the build.
func BuildPipeline(features []oak.CameraFeatures, calib *oak.CalibrationData, blobPath string) (*BuildResult, error) {
	p := pipeline.New()
	res := &BuildResult{Pipeline: p}

	addOutput := func(name string, from pipeline.Output, queueSize int, blocking bool) error {
		xout := p.CreateXLinkOut()
		xout.SetStreamName(name)
		xout.SetInputBlocking(blocking)
		xout.SetInputQueueSize(queueSize)
		if err := p.Link(from, xout.Input()); err != nil {
			return err
		}
		res.Streams = append(res.Streams, StreamSpec{Name: name, QueueSize: queueSize, Blocking: blocking})
		return nil
	}

	// Telemetry first so even a camera-less board produces something.
	sysLogger := p.CreateSystemLogger()
	sysLogger.SetRate(0.2)
	if err := addOutput(SysLogStream, sysLogger.Out(), 1, false); err != nil {
		return nil, err
	}

	camControl := p.CreateXLinkIn()
	camControl.SetStreamName(CamControlStream)

	leftSocket := calib.StereoRectification.LeftSocket
	rightSocket := calib.StereoRectification.RightSocket

	alignSocket := leftSocket
	for _, f := range features {
		if f.Kind() == oak.SensorColor {
			alignSocket = f.Socket
			break
		}
	}

	cameras := make(map[oak.CameraBoardSocket]builtCamera)
	var firstColor *pipeline.ColorCamera
	colorSeen := false
	edgeDetectors := 0

	for _, f := range features {
		switch f.Kind() {
		case oak.SensorMono:
			mono := p.CreateMonoCamera()
			mono.Socket = f.Socket
			mono.Resolution = oak.Mono400P
			mono.FPS = cameraFPS
			if err := p.Link(camControl.Out(), mono.InputControl()); err != nil {
				return nil, err
			}
			cameras[f.Socket] = builtCamera{mono: mono}

			// Encoding a color-class sensor runs big boards out of
			// memory, so once any color sensor is listed no further
			// encoders are attached.
			if !colorSeen {
				if err := attachEncoder(p, res, addOutput, f.Socket, mono.Out()); err != nil {
					return nil, err
				}
			}
			if edgeDetectors < 1 {
				edgeDetectors++
				if err := attachEdgeDetector(p, addOutput, f.Socket, mono.Out(), 0); err != nil {
					return nil, err
				}
			}

		case oak.SensorColor:
			// Counts even when the camera is skipped below, so a later
			// mono still sees the color sensor's encoder veto.
			colorSeen = true
			w, h := f.MaxSensorSize()
			resolution, ok := oak.LookupColorResolution(w, h)
			if !ok {
				res.Warnings = append(res.Warnings,
					fmt.Sprintf("unknown sensor resolution %dx%d for %s on %s, skipping", w, h, f.SensorName, f.Socket))
				continue
			}
			cam := p.CreateColorCamera()
			cam.Socket = f.Socket
			cam.Resolution = resolution
			cam.FPS = cameraFPS
			cam.SetPreviewSize(previewWidth, previewHeight)
			if err := p.Link(camControl.Out(), cam.InputControl()); err != nil {
				return nil, err
			}
			cameras[f.Socket] = builtCamera{color: cam}
			if firstColor == nil {
				firstColor = cam
			}

			if err := addOutput(PreviewStream(f.Socket), cam.Preview(), 4, false); err != nil {
				return nil, err
			}
			if edgeDetectors < 1 {
				edgeDetectors++
				if err := attachEdgeDetector(p, addOutput, f.Socket, cam.Video(), edgeMaxFrameSize); err != nil {
					return nil, err
				}
			}

		case oak.SensorToF:
			// The ToF decoder consumes the sensor's raw modulated
			// captures; no encoder, edge branch or exposure control
			// applies here. Retuning travels on tof_config instead.
			driver := p.CreateColorCamera()
			driver.Socket = f.Socket
			driver.FPS = cameraFPS
			tof := p.CreateToF()
			tof.InitialConfig = message.ToFConfig{
				FreqModUsed:      message.ToFFModMin,
				AvgPhaseShuffle:  false,
				MinimumAmplitude: tofMinAmplitude,
			}
			if err := p.Link(driver.Raw(), tof.Input()); err != nil {
				return nil, err
			}
			tofConfig := p.CreateXLinkIn()
			tofConfig.SetStreamName(ToFConfigStream)
			if err := p.Link(tofConfig.Out(), tof.InputConfig()); err != nil {
				return nil, err
			}
			if err := addOutput(ToFStream, tof.Depth(), 4, false); err != nil {
				return nil, err
			}
			res.HasToF = true

		default:
			return nil, fmt.Errorf("camera %s on %s: sensor type %s is not supported",
				f.SensorName, f.Socket, f.Kind())
		}
	}

	left, haveLeft := cameras[leftSocket]
	right, haveRight := cameras[rightSocket]
	if haveLeft && haveRight {
		stereo := p.CreateStereoDepth()
		stereo.Preset = pipeline.PresetHighDensity
		stereo.LeftRightCheck = true
		stereo.Subpixel = true
		stereo.DepthAlign = alignSocket

		leftOut, lw, lh := stereoFeed(left)
		rightOut, _, _ := stereoFeed(right)
		stereo.SetOutputSize(lw, lh)
		if err := p.Link(leftOut, stereo.Left()); err != nil {
			return nil, err
		}
		if err := p.Link(rightOut, stereo.Right()); err != nil {
			return nil, err
		}

		if firstColor != nil {
			yolo := p.CreateYoloSpatialDetectionNetwork()
			configureYolo(&yolo.BlobPath, &yolo.ConfidenceThreshold, &yolo.NumClasses,
				&yolo.CoordinateSize, &yolo.Anchors, &yolo.AnchorMasks, &yolo.IouThreshold, blobPath)
			yolo.BoundingBoxScaleFactor = 0.5
			yolo.DepthLowerThresholdMM = 100
			yolo.DepthUpperThresholdMM = 5000
			if err := p.Link(firstColor.Preview(), yolo.Input()); err != nil {
				return nil, err
			}
			if err := p.Link(stereo.Depth(), yolo.InputDepth()); err != nil {
				return nil, err
			}
			if err := addOutput(DepthStream, yolo.PassthroughDepth(), 4, false); err != nil {
				return nil, err
			}
			if err := addOutput(YoloStream, yolo.Out(), 4, false); err != nil {
				return nil, err
			}
		}
		// Without a color camera the stereo core still burns compute,
		// but its depth output stays on-device.
	} else if firstColor != nil {
		yolo := p.CreateYoloDetectionNetwork()
		configureYolo(&yolo.BlobPath, &yolo.ConfidenceThreshold, &yolo.NumClasses,
			&yolo.CoordinateSize, &yolo.Anchors, &yolo.AnchorMasks, &yolo.IouThreshold, blobPath)
		if err := p.Link(firstColor.Preview(), yolo.Input()); err != nil {
			return nil, err
		}
		if err := addOutput(YoloStream, yolo.Out(), 4, false); err != nil {
			return nil, err
		}
	}

	// Surface wiring mistakes now instead of at upload time.
	if _, err := p.Schema(); err != nil {
		return nil, err
	}
	return res, nil
}

// stereoFeed picks the output and dimensions a camera contributes to
// the stereo pair. Full-resolution color sensors are ISP-downscaled by
// 2/3 to keep the stereo core within its line-width limit.
func stereoFeed(cam builtCamera) (pipeline.Output, int, int) {
	if cam.mono != nil {
		w, h := cam.mono.Resolution.Size()
		return cam.mono.Out(), w, h
	}
	w, h := cam.color.Resolution.Size()
	if w > 1280 {
		cam.color.SetIspScale(2, 3)
		w = w * 2 / 3
		h = h * 2 / 3
	}
	return cam.color.Isp(), w, h
}

func attachEncoder(p *pipeline.Pipeline, res *BuildResult,
	addOutput func(string, pipeline.Output, int, bool) error,
	socket oak.CameraBoardSocket, input pipeline.Output) error {
	enc := p.CreateVideoEncoder()
	enc.SetDefaultProfilePreset(encoderFPS, pipeline.ProfileH264Main)
	if err := p.Link(input, enc.Input()); err != nil {
		return err
	}
	return addOutput(EncoderStream(socket), enc.Bitstream(), 5, false)
}

func attachEdgeDetector(p *pipeline.Pipeline,
	addOutput func(string, pipeline.Output, int, bool) error,
	socket oak.CameraBoardSocket, input pipeline.Output, maxFrameSize int) error {
	edge := p.CreateEdgeDetector()
	edge.MaxOutputFrameSize = maxFrameSize
	if err := p.Link(input, edge.InputImage()); err != nil {
		return err
	}
	return addOutput(EdgeStream(socket), edge.OutputImage(), 5, false)
}

// yoloAnchors is the YOLOv4-tiny anchor set for the 416x416 input.
var yoloAnchors = []float64{10, 14, 23, 27, 37, 58, 81, 82, 135, 169, 344, 319}

func configureYolo(blobPath *string, conf *float64, classes, coordSize *int,
	anchors *[]float64, masks *map[string][]int, iou *float64, blob string) {
	*blobPath = blob
	*conf = 0.5
	*classes = 80
	*coordSize = 4
	*anchors = append([]float64(nil), yoloAnchors...)
	*masks = map[string][]int{
		"side26": {1, 2, 3},
		"side13": {3, 4, 5},
	}
	*iou = 0.5
}
