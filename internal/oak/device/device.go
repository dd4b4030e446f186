// Package device manages a session with one camera device: connect,
// enumerate sensors, upload a pipeline and exchange stream messages.
package device

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/banshee-data/oakstress/internal/monitoring"
	"github.com/banshee-data/oakstress/internal/oak"
	"github.com/banshee-data/oakstress/internal/oak/pipeline"
	"github.com/banshee-data/oakstress/internal/oak/xlink"
)

// IR emitter hardware limits, in milliamps.
const (
	MaxDotProjectorMa = 1200
	MaxFloodLightMa   = 1500
)

// Device is an open session with a camera device. Run Monitor in its own
// goroutine before issuing calls; every method is safe for concurrent
// use.
type Device struct {
	info xlink.DeviceInfo
	conn *xlink.Conn
	mux  *xlink.StreamMux
	rpc  *rpcClient
}

// Connect resolves a device by id (empty means first found) and opens a
// session to it.
func Connect(ctx context.Context, mxid string, discoveryTimeout time.Duration) (*Device, error) {
	info, err := xlink.FindDevice(ctx, mxid, discoveryTimeout)
	if err != nil {
		return nil, err
	}
	return ConnectInfo(ctx, info)
}

// ConnectInfo opens a session to an already-resolved device.
func ConnectInfo(ctx context.Context, info xlink.DeviceInfo) (*Device, error) {
	conn, err := xlink.Dial(ctx, info.Name)
	if err != nil {
		return nil, err
	}
	mux := xlink.NewStreamMux(conn)
	rpc, err := newRPCClient(mux)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rpc stream: %w", err)
	}
	monitoring.Logf("Connected to device %s", info)
	return &Device{info: info, conn: conn, mux: mux, rpc: rpc}, nil
}

// Info returns the descriptor the session was opened with.
func (d *Device) Info() xlink.DeviceInfo { return d.info }

// Mux exposes the underlying stream mux for admin routes.
func (d *Device) Mux() *xlink.StreamMux { return d.mux }

// SetCapture attaches a link capture recording every frame in both
// directions.
func (d *Device) SetCapture(c *xlink.Capture) { d.conn.SetCapture(c) }

// Monitor drives the read side of the session. It returns when the
// context is cancelled or the link fails.
func (d *Device) Monitor(ctx context.Context) error {
	return d.mux.Monitor(ctx)
}

// ReadCalibration fetches and parses the device EEPROM calibration. A
// device with unreadable calibration cannot run a stereo pipeline.
func (d *Device) ReadCalibration(ctx context.Context) (*oak.CalibrationData, error) {
	var raw json.RawMessage
	if err := d.rpc.Call(ctx, "getCalibration", nil, &raw); err != nil {
		return nil, fmt.Errorf("read calibration: %w", err)
	}
	return oak.ParseCalibration(raw)
}

// ConnectedCameraFeatures enumerates the camera sensors the device
// detected at boot.
func (d *Device) ConnectedCameraFeatures(ctx context.Context) ([]oak.CameraFeatures, error) {
	var features []oak.CameraFeatures
	if err := d.rpc.Call(ctx, "getCameraFeatures", nil, &features); err != nil {
		return nil, fmt.Errorf("enumerate cameras: %w", err)
	}
	return features, nil
}

// UsbSpeed reports the negotiated link speed.
func (d *Device) UsbSpeed(ctx context.Context) (oak.UsbSpeed, error) {
	var name string
	if err := d.rpc.Call(ctx, "getUsbSpeed", nil, &name); err != nil {
		return oak.UsbUnknown, err
	}
	switch name {
	case "LOW":
		return oak.UsbLow, nil
	case "FULL":
		return oak.UsbFull, nil
	case "HIGH":
		return oak.UsbHigh, nil
	case "SUPER":
		return oak.UsbSuper, nil
	case "SUPER_PLUS":
		return oak.UsbSuperPlus, nil
	default:
		return oak.UsbUnknown, nil
	}
}

// StartPipeline serializes the pipeline schema, uploads it and waits for
// the device to acknowledge the graph is running.
func (d *Device) StartPipeline(ctx context.Context, p *pipeline.Pipeline) error {
	schema, err := p.MarshalSchema()
	if err != nil {
		return fmt.Errorf("serialize pipeline: %w", err)
	}
	if err := d.rpc.Call(ctx, "startPipeline", json.RawMessage(schema), nil); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}
	return nil
}

// SetIrLaserDotProjectorBrightness drives the IR dot projector. The
// value is clamped to the emitter's rated range.
func (d *Device) SetIrLaserDotProjectorBrightness(ctx context.Context, mA int) error {
	mA = oak.Clamp(mA, 0, MaxDotProjectorMa)
	return d.rpc.Call(ctx, "setIrLaserDotProjectorBrightness", irParams{BrightnessMa: mA}, nil)
}

// SetIrFloodLightBrightness drives the IR flood LED. The value is
// clamped to the emitter's rated range.
func (d *Device) SetIrFloodLightBrightness(ctx context.Context, mA int) error {
	mA = oak.Clamp(mA, 0, MaxFloodLightMa)
	return d.rpc.Call(ctx, "setIrFloodLightBrightness", irParams{BrightnessMa: mA}, nil)
}

type irParams struct {
	BrightnessMa int `json:"brightnessMa"`
}

// Close tears the session down. The mux resets the device on the way
// out.
func (d *Device) Close() error {
	return d.mux.Close()
}
