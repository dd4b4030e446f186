package xlink

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/oakstress/internal/monitoring"
)

// linkTypeXLink is DLT_USER0; the captures hold raw XLink frames, not an
// IP-layer protocol Wireshark knows about.
const linkTypeXLink = layers.LinkType(147)

// captureSnapLen bounds the bytes recorded per frame. Protocol analysis
// needs headers and metadata, not multi-megabyte pixel payloads; the pcap
// record keeps the original length so truncation is visible.
const captureSnapLen = 256 << 10

// Capture writes link frames to a pcap file for offline protocol
// analysis. Each record is a 4-byte little-endian direction marker
// (0 host to device, 1 device to host) followed by the frame as
// transmitted: header plus payload.
type Capture struct {
	mu     sync.Mutex
	f      *os.File
	w      *pcapgo.Writer
	frames uint64
	path   string
}

// NewCapture creates the capture file and writes the pcap header.
func NewCapture(path string) (*Capture, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create capture file: %w", err)
	}
	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(captureSnapLen+FRAME_HEADER_SIZE+4, linkTypeXLink); err != nil {
		f.Close()
		return nil, fmt.Errorf("write capture header: %w", err)
	}
	return &Capture{f: f, w: w, path: path}, nil
}

// Record appends one frame to the capture. Write errors are logged, not
// returned; a failing capture must not take down the link.
func (c *Capture) Record(f Frame, outbound bool) {
	payload := f.Payload
	truncated := false
	if len(payload) > captureSnapLen {
		payload = payload[:captureSnapLen]
		truncated = true
	}

	record := make([]byte, 0, 4+FRAME_HEADER_SIZE+len(payload))
	dir := uint32(1)
	if outbound {
		dir = 0
	}
	record = binary.LittleEndian.AppendUint32(record, dir)
	record = appendHeader(record, f.Event, f.StreamID, uint32(len(f.Payload)))
	record = append(record, payload...)

	ci := gopacket.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: len(record),
		Length:        len(record),
	}
	if truncated {
		ci.Length = 4 + FRAME_HEADER_SIZE + len(f.Payload)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.w == nil {
		return
	}
	if err := c.w.WritePacket(ci, record); err != nil {
		monitoring.Logf("Capture write failed, disabling capture: %v", err)
		c.w = nil
		return
	}
	c.frames++
}

// Frames returns how many frames have been recorded.
func (c *Capture) Frames() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// Close flushes and closes the capture file.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.f == nil {
		return nil
	}
	monitoring.Logf("Link capture closed: %d frames written to %s", c.frames, c.path)
	err := c.f.Close()
	c.f = nil
	c.w = nil
	return err
}
