package xlink

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"
)

// FrameConn is the framed transport the stream mux runs over. Conn is the
// TCP implementation; tests and the device simulator provide in-memory
// ones.
type FrameConn interface {
	WriteFrame(Frame) error
	ReadFrame() (Frame, error)
	Close() error
}

// Conn is a framed XLink connection over TCP.
type Conn struct {
	nc      net.Conn
	writeMu sync.Mutex

	captureMu sync.Mutex
	capture   *Capture
}

// Dial connects to a device. addr may be a bare host, in which case the
// default data port is used.
func Dial(ctx context.Context, addr string) (*Conn, error) {
	if !strings.Contains(addr, ":") {
		addr = net.JoinHostPort(addr, fmt.Sprintf("%d", DATA_PORT))
	}
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial device %s: %w", addr, err)
	}
	if tc, ok := nc.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}
	return NewConn(nc), nil
}

// NewConn wraps an established connection in the framing layer.
func NewConn(nc net.Conn) *Conn {
	return &Conn{nc: nc}
}

// SetCapture attaches a link capture that records every frame in both
// directions. Pass nil to detach.
func (c *Conn) SetCapture(capture *Capture) {
	c.captureMu.Lock()
	c.capture = capture
	c.captureMu.Unlock()
}

func (c *Conn) recordFrame(f Frame, outbound bool) {
	c.captureMu.Lock()
	capture := c.capture
	c.captureMu.Unlock()
	if capture != nil {
		capture.Record(f, outbound)
	}
}

// WriteFrame sends one frame. Safe for concurrent use.
func (c *Conn) WriteFrame(f Frame) error {
	if len(f.Payload) > MAX_FRAME_PAYLOAD {
		return fmt.Errorf("frame payload %d exceeds limit", len(f.Payload))
	}
	buf := make([]byte, 0, FRAME_HEADER_SIZE+len(f.Payload))
	buf = appendHeader(buf, f.Event, f.StreamID, uint32(len(f.Payload)))
	buf = append(buf, f.Payload...)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.nc.Write(buf); err != nil {
		return fmt.Errorf("write %s frame: %w", f.Event, err)
	}
	c.recordFrame(f, true)
	return nil
}

// ReadFrame reads the next frame. Only one reader may call this at a time;
// the stream mux Monitor loop is the sole reader in normal operation.
func (c *Conn) ReadFrame() (Frame, error) {
	hdr := make([]byte, FRAME_HEADER_SIZE)
	if _, err := io.ReadFull(c.nc, hdr); err != nil {
		return Frame{}, err
	}
	event, streamID, size, err := parseHeader(hdr)
	if err != nil {
		return Frame{}, err
	}
	var payload []byte
	if size > 0 {
		payload = make([]byte, size)
		if _, err := io.ReadFull(c.nc, payload); err != nil {
			return Frame{}, fmt.Errorf("read %s frame payload: %w", event, err)
		}
	}
	f := Frame{Event: event, StreamID: streamID, Payload: payload}
	c.recordFrame(f, false)
	return f, nil
}

// SetReadDeadline bounds the next ReadFrame call.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.nc.SetReadDeadline(t)
}

func (c *Conn) Close() error {
	return c.nc.Close()
}
