package oaksim

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/banshee-data/oakstress/internal/monitoring"
	"github.com/banshee-data/oakstress/internal/oak"
	"github.com/banshee-data/oakstress/internal/oak/message"
	"github.com/banshee-data/oakstress/internal/oak/pipeline"
	"github.com/banshee-data/oakstress/internal/oak/xlink"
)

// Sim is one simulated device listening on loopback TCP. A Sim accepts
// any number of sequential sessions; each session gets a fresh pipeline
// state, matching a hardware reset between runs.
type Sim struct {
	profile  Profile
	mxid     string
	listener net.Listener

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	last *session
}

// New creates a simulated device for the given profile and starts
// accepting sessions on a loopback port.
func New(ctx context.Context, profile Profile) (*Sim, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Sim{
		profile:  profile,
		mxid:     fmt.Sprintf("14442C10%s51D7D700", profile.BoardName[:2]),
		listener: l,
		cancel:   cancel,
	}
	s.wg.Add(1)
	go s.accept(ctx)
	return s, nil
}

// Info returns the descriptor a discovery exchange would produce for
// this device. Name carries the loopback address including port, which
// the dialer passes through untouched.
func (s *Sim) Info() xlink.DeviceInfo {
	return xlink.DeviceInfo{
		Name:     s.listener.Addr().String(),
		MxID:     s.mxid,
		State:    "BOOTED",
		Protocol: "TCP",
	}
}

// ServeDiscovery answers discovery probes on pc until ctx is cancelled.
func (s *Sim) ServeDiscovery(ctx context.Context, pc net.PacketConn) error {
	return xlink.ServeDiscovery(ctx, pc, s.Info())
}

// IrBrightness reports the dot projector and flood light levels the
// most recent session was asked to drive, in milliamps.
func (s *Sim) IrBrightness() (dotMa, floodMa int) {
	s.mu.Lock()
	sess := s.last
	s.mu.Unlock()
	if sess == nil {
		return 0, 0
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.dotMa, sess.floodMa
}

// Close stops accepting sessions and tears down any in flight.
func (s *Sim) Close() error {
	s.cancel()
	err := s.listener.Close()
	s.wg.Wait()
	return err
}

func (s *Sim) accept(ctx context.Context) {
	defer s.wg.Done()
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		sess := newSession(s.profile, xlink.NewConn(nc))
		s.mu.Lock()
		s.last = sess
		s.mu.Unlock()
		go func() {
			defer s.wg.Done()
			sess.run(ctx)
		}()
	}
}

// session is one host connection's device-side state.
type session struct {
	profile Profile
	conn    *xlink.Conn

	mu       sync.Mutex
	names    map[uint32]string // host-assigned stream ids
	ids      map[string]uint32
	started  bool
	schema   *pipeline.SchemaDoc
	control  message.CameraControl
	tof      message.ToFConfig
	dotMa    int
	floodMa  int
	genStop  context.CancelFunc
	genGroup sync.WaitGroup
}

func newSession(profile Profile, conn *xlink.Conn) *session {
	return &session{
		profile: profile,
		conn:    conn,
		names:   make(map[uint32]string),
		ids:     make(map[string]uint32),
	}
}

func (s *session) run(ctx context.Context) {
	defer s.conn.Close()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	for {
		f, err := s.conn.ReadFrame()
		if err != nil {
			break
		}
		s.handle(ctx, f)
	}

	s.mu.Lock()
	stop := s.genStop
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
	s.genGroup.Wait()
}

func (s *session) handle(ctx context.Context, f xlink.Frame) {
	switch f.Event {
	case xlink.EVENT_OPEN_STREAM:
		name := string(f.Payload)
		s.mu.Lock()
		s.names[f.StreamID] = name
		s.ids[name] = f.StreamID
		s.mu.Unlock()

	case xlink.EVENT_CLOSE_STREAM:
		s.mu.Lock()
		if name, ok := s.names[f.StreamID]; ok {
			delete(s.ids, name)
			delete(s.names, f.StreamID)
		}
		s.mu.Unlock()

	case xlink.EVENT_WRITE:
		s.mu.Lock()
		name := s.names[f.StreamID]
		s.mu.Unlock()
		s.handleWrite(ctx, name, f.Payload)

	case xlink.EVENT_PING:
		s.conn.WriteFrame(xlink.Frame{Event: xlink.EVENT_PONG})

	case xlink.EVENT_RESET:
		s.mu.Lock()
		stop := s.genStop
		s.genStop = nil
		s.started = false
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
	}
}

func (s *session) handleWrite(ctx context.Context, stream string, payload []byte) {
	switch stream {
	case "__rpc":
		s.handleRPC(ctx, payload)
	case "":
		monitoring.Logf("oaksim: write on unopened stream dropped (%d bytes)", len(payload))
	default:
		msg, err := message.Unmarshal(payload)
		if err != nil {
			monitoring.Logf("oaksim: undecodable message on %s: %v", stream, err)
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		switch m := msg.(type) {
		case *message.CameraControl:
			s.control = *m
		case *message.ToFConfig:
			s.tof = *m
		}
	}
}

type rpcRequest struct {
	ID     uint64          `json:"id"`
	Op     string          `json:"op"`
	Params json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	ID    uint64 `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

func (s *session) handleRPC(ctx context.Context, payload []byte) {
	var req rpcRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		monitoring.Logf("oaksim: malformed rpc request: %v", err)
		return
	}

	data, err := s.dispatchRPC(ctx, req)
	resp := rpcResponse{ID: req.ID, OK: err == nil, Data: data}
	if err != nil {
		resp.Error = err.Error()
	}
	body, merr := json.Marshal(resp)
	if merr != nil {
		monitoring.Logf("oaksim: marshal rpc response: %v", merr)
		return
	}
	s.mu.Lock()
	id, ok := s.ids["__rpc"]
	s.mu.Unlock()
	if !ok {
		return
	}
	s.conn.WriteFrame(xlink.Frame{Event: xlink.EVENT_WRITE, StreamID: id, Payload: body})
}

func (s *session) dispatchRPC(ctx context.Context, req rpcRequest) (any, error) {
	switch req.Op {
	case "getCalibration":
		if s.profile.FailCalibration {
			return nil, fmt.Errorf("EEPROM read failed")
		}
		return s.profile.Calibration, nil

	case "getCameraFeatures":
		cams := s.profile.Cameras
		if cams == nil {
			cams = []oak.CameraFeatures{}
		}
		return cams, nil

	case "getUsbSpeed":
		// PoE-style link; the simulator reports SUPER like a USB3 device
		// so the telemetry header has something to show.
		return oak.UsbSuper.String(), nil

	case "startPipeline":
		return nil, s.startPipeline(ctx, req.Params)

	case "setIrLaserDotProjectorBrightness":
		var p struct {
			BrightnessMa int `json:"brightnessMa"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, err
		}
		if p.BrightnessMa < 0 || p.BrightnessMa > 1200 {
			return nil, fmt.Errorf("dot projector brightness %d mA out of range", p.BrightnessMa)
		}
		s.mu.Lock()
		s.dotMa = p.BrightnessMa
		s.mu.Unlock()
		return nil, nil

	case "setIrFloodLightBrightness":
		var p struct {
			BrightnessMa int `json:"brightnessMa"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, err
		}
		if p.BrightnessMa < 0 || p.BrightnessMa > 1500 {
			return nil, fmt.Errorf("flood light brightness %d mA out of range", p.BrightnessMa)
		}
		s.mu.Lock()
		s.floodMa = p.BrightnessMa
		s.mu.Unlock()
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown op %q", req.Op)
	}
}

func (s *session) startPipeline(ctx context.Context, params json.RawMessage) error {
	doc, err := pipeline.ParseSchema(params)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("pipeline already running")
	}
	s.schema = doc
	s.started = true
	genCtx, cancel := context.WithCancel(ctx)
	s.genStop = cancel
	s.mu.Unlock()

	gens, err := generatorsForSchema(doc)
	if err != nil {
		cancel()
		return err
	}
	for _, g := range gens {
		g := g
		s.genGroup.Add(1)
		go func() {
			defer s.genGroup.Done()
			g.run(genCtx, s)
		}()
	}
	return nil
}

// streamID returns the host-assigned id for a stream, if the host has
// opened it. Generators skip ticks for streams the host is not
// draining.
func (s *session) streamID(name string) (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.ids[name]
	return id, ok
}

// lastControl returns the most recent camera control for exposure
// readback in generated frames.
func (s *session) lastControl() message.CameraControl {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.control
}

func (s *session) send(name string, m message.Message) {
	id, ok := s.streamID(name)
	if !ok {
		return
	}
	packet, err := message.Marshal(m)
	if err != nil {
		monitoring.Logf("oaksim: marshal %s message: %v", m.Datatype(), err)
		return
	}
	s.conn.WriteFrame(xlink.Frame{Event: xlink.EVENT_WRITE, StreamID: id, Payload: packet})
}
