package xlink

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/gopacket/pcapgo"
)

func TestCaptureWritesReadablePcap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "link.pcap")
	capture, err := NewCapture(path)
	if err != nil {
		t.Fatalf("NewCapture: %v", err)
	}

	capture.Record(Frame{Event: EVENT_OPEN_STREAM, StreamID: 1, Payload: []byte("sys_log")}, true)
	capture.Record(Frame{Event: EVENT_WRITE, StreamID: 1, Payload: []byte("telemetry")}, false)

	if got := capture.Frames(); got != 2 {
		t.Errorf("Frames() = %d, want 2", got)
	}
	if err := capture.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open capture: %v", err)
	}
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	if err != nil {
		t.Fatalf("pcap reader: %v", err)
	}
	if got := r.LinkType(); got != linkTypeXLink {
		t.Errorf("link type = %d, want %d", got, linkTypeXLink)
	}

	// First record: outbound direction marker then the frame bytes.
	data, ci, err := r.ReadPacketData()
	if err != nil {
		t.Fatalf("read first record: %v", err)
	}
	if ci.CaptureLength != len(data) {
		t.Errorf("capture length = %d, data = %d", ci.CaptureLength, len(data))
	}
	if dir := binary.LittleEndian.Uint32(data); dir != 0 {
		t.Errorf("direction = %d, want 0 (outbound)", dir)
	}
	event, streamID, size, err := parseHeader(data[4:])
	if err != nil {
		t.Fatalf("parse recorded header: %v", err)
	}
	if event != EVENT_OPEN_STREAM || streamID != 1 || size != uint32(len("sys_log")) {
		t.Errorf("recorded frame = (%v, %d, %d)", event, streamID, size)
	}
	if !bytes.Equal(data[4+FRAME_HEADER_SIZE:], []byte("sys_log")) {
		t.Errorf("recorded payload = %q", data[4+FRAME_HEADER_SIZE:])
	}

	// Second record: inbound.
	data, _, err = r.ReadPacketData()
	if err != nil {
		t.Fatalf("read second record: %v", err)
	}
	if dir := binary.LittleEndian.Uint32(data); dir != 1 {
		t.Errorf("direction = %d, want 1 (inbound)", dir)
	}
}

func TestCaptureTruncatesLargePayloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.pcap")
	capture, err := NewCapture(path)
	if err != nil {
		t.Fatalf("NewCapture: %v", err)
	}

	payload := make([]byte, captureSnapLen+1000)
	capture.Record(Frame{Event: EVENT_WRITE, StreamID: 2, Payload: payload}, false)
	if err := capture.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open capture: %v", err)
	}
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	if err != nil {
		t.Fatalf("pcap reader: %v", err)
	}
	data, ci, err := r.ReadPacketData()
	if err != nil {
		t.Fatalf("read record: %v", err)
	}
	if want := 4 + FRAME_HEADER_SIZE + captureSnapLen; ci.CaptureLength != want {
		t.Errorf("capture length = %d, want %d", ci.CaptureLength, want)
	}
	if want := 4 + FRAME_HEADER_SIZE + len(payload); ci.Length != want {
		t.Errorf("original length = %d, want %d", ci.Length, want)
	}
	// The recorded header still states the full payload size.
	_, _, size, err := parseHeader(data[4:])
	if err != nil {
		t.Fatalf("parse recorded header: %v", err)
	}
	if size != uint32(len(payload)) {
		t.Errorf("recorded frame size = %d, want %d", size, len(payload))
	}
}
