package oaksim

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/banshee-data/oakstress/internal/oak"
	"github.com/banshee-data/oakstress/internal/oak/message"
	"github.com/banshee-data/oakstress/internal/oak/pipeline"
)

// generator emits synthetic messages for one output stream at a fixed
// rate. Frames are only sent while the host has the stream open.
type generator struct {
	stream   string
	interval time.Duration
	build    func(seq int64, elapsed time.Duration, s *session) message.Message
}

func (g *generator) run(ctx context.Context, s *session) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	start := time.Now()
	var seq int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.send(g.stream, g.build(seq, time.Since(start), s))
			seq++
		}
	}
}

// Property subsets the simulator needs from schema nodes.
type camProps struct {
	Socket        oak.CameraBoardSocket `json:"boardSocket"`
	FPS           float64               `json:"fps"`
	PreviewWidth  int                   `json:"previewWidth"`
	PreviewHeight int                   `json:"previewHeight"`
}

type stereoProps struct {
	OutputWidth  int `json:"outputWidth"`
	OutputHeight int `json:"outputHeight"`
}

type encoderProps struct {
	FPS float64 `json:"fps"`
}

type sysLoggerProps struct {
	RateHz float64 `json:"rateHz"`
}

type xlinkOutProps struct {
	StreamName string `json:"streamName"`
}

func intervalFromFPS(fps, fallback float64) time.Duration {
	if fps <= 0 {
		fps = fallback
	}
	return time.Duration(float64(time.Second) / fps)
}

// generatorsForSchema derives one generator per XLinkOut stream from the
// uploaded pipeline. The producing node's kind decides the frame type
// and rate, the way firmware wiring would.
func generatorsForSchema(doc *pipeline.SchemaDoc) ([]*generator, error) {
	byID := make(map[int]pipeline.SchemaNode, len(doc.Nodes))
	for _, n := range doc.Nodes {
		byID[n.ID] = n
	}

	var gens []*generator
	for _, out := range doc.NodesOfKind(pipeline.KindXLinkOut) {
		var op xlinkOutProps
		if err := json.Unmarshal(out.Properties, &op); err != nil {
			return nil, fmt.Errorf("XLinkOut node %d: %w", out.ID, err)
		}
		conn, ok := doc.SourceOf(out.ID, "input")
		if !ok {
			return nil, fmt.Errorf("stream %q has no producer", op.StreamName)
		}
		src, ok := byID[conn.Node1ID]
		if !ok {
			return nil, fmt.Errorf("stream %q produced by unknown node %d", op.StreamName, conn.Node1ID)
		}

		g, err := generatorForSource(doc, byID, op.StreamName, src, conn)
		if err != nil {
			return nil, err
		}
		gens = append(gens, g)
	}
	return gens, nil
}

func generatorForSource(doc *pipeline.SchemaDoc, byID map[int]pipeline.SchemaNode, stream string, src pipeline.SchemaNode, conn pipeline.SchemaConnection) (*generator, error) {
	switch src.Name {
	case pipeline.KindColorCamera:
		var cp camProps
		if err := json.Unmarshal(src.Properties, &cp); err != nil {
			return nil, err
		}
		w, h := cp.PreviewWidth, cp.PreviewHeight
		if w == 0 || h == 0 {
			w, h = 416, 416
		}
		return &generator{
			stream:   stream,
			interval: intervalFromFPS(cp.FPS, 20),
			build: func(seq int64, elapsed time.Duration, s *session) message.Message {
				return gradientFrame(message.FrameBGR888p, w, h, cp.Socket, seq, s)
			},
		}, nil

	case pipeline.KindMonoCamera:
		var cp camProps
		if err := json.Unmarshal(src.Properties, &cp); err != nil {
			return nil, err
		}
		return &generator{
			stream:   stream,
			interval: intervalFromFPS(cp.FPS, 20),
			build: func(seq int64, elapsed time.Duration, s *session) message.Message {
				return gradientFrame(message.FrameGray8, 640, 400, cp.Socket, seq, s)
			},
		}, nil

	case pipeline.KindToF:
		return &generator{
			stream:   stream,
			interval: intervalFromFPS(0, 20),
			build: func(seq int64, elapsed time.Duration, s *session) message.Message {
				return rampFrame(640, 480, oak.SocketCamA, seq)
			},
		}, nil

	case pipeline.KindStereoDepth:
		var sp stereoProps
		if err := json.Unmarshal(src.Properties, &sp); err != nil {
			return nil, err
		}
		w, h := sp.OutputWidth, sp.OutputHeight
		if w == 0 || h == 0 {
			w, h = 640, 400
		}
		return &generator{
			stream:   stream,
			interval: intervalFromFPS(0, 20),
			build: func(seq int64, elapsed time.Duration, s *session) message.Message {
				return rampFrame(w, h, oak.SocketCamB, seq)
			},
		}, nil

	case pipeline.KindYoloSpatialNetwork:
		if conn.Node1Output == "passthroughDepth" {
			return &generator{
				stream:   stream,
				interval: intervalFromFPS(0, 20),
				build: func(seq int64, elapsed time.Duration, s *session) message.Message {
					return rampFrame(640, 400, oak.SocketCamB, seq)
				},
			}, nil
		}
		return &generator{
			stream:   stream,
			interval: intervalFromFPS(0, 10),
			build: func(seq int64, elapsed time.Duration, s *session) message.Message {
				return spatialDetections(seq)
			},
		}, nil

	case pipeline.KindYoloDetectionNetwork:
		return &generator{
			stream:   stream,
			interval: intervalFromFPS(0, 10),
			build: func(seq int64, elapsed time.Duration, s *session) message.Message {
				return plainDetections(seq)
			},
		}, nil

	case pipeline.KindVideoEncoder:
		var ep encoderProps
		if err := json.Unmarshal(src.Properties, &ep); err != nil {
			return nil, err
		}
		return &generator{
			stream:   stream,
			interval: intervalFromFPS(ep.FPS, 10),
			build: func(seq int64, elapsed time.Duration, s *session) message.Message {
				return bitstreamFrame(seq)
			},
		}, nil

	case pipeline.KindEdgeDetector:
		return &generator{
			stream:   stream,
			interval: intervalFromFPS(0, 20),
			build: func(seq int64, elapsed time.Duration, s *session) message.Message {
				return gradientFrame(message.FrameGray8, 640, 400, oak.SocketCamA, seq, s)
			},
		}, nil

	case pipeline.KindSystemLogger:
		var lp sysLoggerProps
		if err := json.Unmarshal(src.Properties, &lp); err != nil {
			return nil, err
		}
		load := len(doc.Nodes)
		return &generator{
			stream:   stream,
			interval: intervalFromFPS(lp.RateHz, 0.2),
			build: func(seq int64, elapsed time.Duration, s *session) message.Message {
				return telemetry(elapsed, load)
			},
		}, nil

	default:
		return nil, fmt.Errorf("stream %q produced by unsupported node kind %s", stream, src.Name)
	}
}

// gradientFrame builds a moving gradient image. Exposure readback comes
// from the last camera control the host sent, so manual exposure changes
// are visible in returned frames.
func gradientFrame(ft message.FrameType, w, h int, socket oak.CameraBoardSocket, seq int64, s *session) message.Message {
	px := w * h
	size := px
	if ft == message.FrameBGR888p {
		size = 3 * px
	}
	data := make([]byte, size)
	for i := 0; i < px; i++ {
		v := byte((i%w + int(seq)*3) % 256)
		data[i] = v
		if ft == message.FrameBGR888p {
			data[px+i] = 255 - v
			data[2*px+i] = v / 2
		}
	}

	exposureUs, iso := 20000, 800
	if ctl := s.lastControl(); ctl.ExposureTimeUs != 0 {
		exposureUs, iso = ctl.ExposureTimeUs, ctl.SensitivityISO
	}
	return &message.ImgFrame{
		Type:        ft,
		Width:       w,
		Height:      h,
		Instance:    socket,
		SequenceNum: seq,
		TimestampNs: time.Now().UnixNano(),
		ExposureUs:  exposureUs,
		ISO:         iso,
		Data:        data,
	}
}

// rampFrame builds a 16-bit depth ramp, millimeter-flavored values with
// a moving offset so display normalization has something to track.
func rampFrame(w, h int, socket oak.CameraBoardSocket, seq int64) message.Message {
	data := make([]byte, 2*w*h)
	for y := 0; y < h; y++ {
		v := uint16(400 + y*12 + int(seq)%256)
		for x := 0; x < w; x++ {
			binary.LittleEndian.PutUint16(data[2*(y*w+x):], v)
		}
	}
	return &message.ImgFrame{
		Type:        message.FrameRaw16,
		Width:       w,
		Height:      h,
		Instance:    socket,
		SequenceNum: seq,
		TimestampNs: time.Now().UnixNano(),
		Data:        data,
	}
}

func bitstreamFrame(seq int64) message.Message {
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i + int(seq))
	}
	return &message.ImgFrame{
		Type:        message.FrameBitstream,
		SequenceNum: seq,
		TimestampNs: time.Now().UnixNano(),
		Data:        data,
	}
}

func plainDetections(seq int64) *message.ImgDetections {
	return &message.ImgDetections{
		SequenceNum: seq,
		Detections:  []message.Detection{movingDetection(seq)},
	}
}

func spatialDetections(seq int64) *message.SpatialImgDetections {
	return &message.SpatialImgDetections{
		SequenceNum: seq,
		Detections: []message.SpatialDetection{{
			Detection: movingDetection(seq),
			X:         float32(seq%200) - 100,
			Y:         50,
			Z:         float32(1500 + seq%3000),
		}},
	}
}

func movingDetection(seq int64) message.Detection {
	x := float32(seq%60) / 100
	return message.Detection{
		Label:      int(seq % 80),
		Confidence: 0.62,
		XMin:       x,
		YMin:       0.3,
		XMax:       x + 0.2,
		YMax:       0.6,
	}
}

// telemetry models a device warming up under load: temperatures climb
// with elapsed time and pipeline size, memory sits at a fixed working
// set.
func telemetry(elapsed time.Duration, nodeCount int) *message.SystemInformation {
	warm := elapsed.Seconds() * 0.02 * (1 + float64(nodeCount)/20)
	if warm > 25 {
		warm = 25
	}
	base := 38.0 + warm
	ddrUsed := int64(nodeCount) * 18 << 20
	return &message.SystemInformation{
		DdrMemoryUsage:     message.MemoryUsage{Used: ddrUsed, Total: 512 << 20},
		CmxMemoryUsage:     message.MemoryUsage{Used: 2400 << 10, Total: 2560 << 10},
		LeonCssMemoryUsage: message.MemoryUsage{Used: 28 << 20, Total: 78 << 20},
		LeonMssMemoryUsage: message.MemoryUsage{Used: 22 << 20, Total: 62 << 20},
		ChipTemperature: message.ChipTemperature{
			Average: base,
			Css:     base + 1.4,
			Mss:     base + 0.8,
			Upa:     base + 2.1,
			Dss:     base - 0.5,
		},
		LeonCssCpuUsage: message.CpuUsage{Average: 0.35 + warm/100},
		LeonMssCpuUsage: message.CpuUsage{Average: 0.22 + warm/150},
	}
}
