// Package xlink implements the host side of the XLink-over-TCP transport
// used by PoE camera devices: UDP discovery, the framed TCP connection and
// a stream multiplexer that fans inbound frames out to subscribers.
package xlink

import (
	"encoding/binary"
	"fmt"
)

/*
XLink TCP Framing

A booted device listens on TCP port 11490. All traffic in both directions
is a sequence of frames; every frame starts with a fixed 16-byte header
followed by an optional payload. Integers are little-endian.

FRAME STRUCTURE (16-byte header + payload):
├── Magic (4 bytes)     - 0x4B4E4C58 ("XLNK"), rejects desynchronized reads
├── Event (4 bytes)     - frame kind, see EVENT_* below
├── StreamID (4 bytes)  - target stream, 0 for connection-level events
└── Size (4 bytes)      - payload length in bytes

STREAM LIFECYCLE:
The host assigns stream IDs sequentially starting at 1 and announces each
with EVENT_OPEN_STREAM carrying the stream name as payload. The device
only tags frames with IDs it has seen an open for; frames for unknown
streams are discarded by either side. EVENT_WRITE carries one complete
stream message (see the message package for the message layout).
EVENT_RESET asks the device to tear down the running pipeline and forget
all streams; it is sent on session close.

DISCOVERY:
Devices answer UDP broadcasts on port 11491. The request is the 8-byte
marker "OAK-DISC"; each device replies to the sender with a single JSON
datagram carrying its name (address), id, state and protocol.
*/
const (
	DATA_PORT      = 11490 // TCP port of a booted device
	DISCOVERY_PORT = 11491 // UDP port answering discovery broadcasts

	FRAME_MAGIC       = 0x4B4E4C58 // "XLNK" little-endian
	FRAME_HEADER_SIZE = 16
	MAX_FRAME_PAYLOAD = 256 << 20 // Largest accepted frame payload; a full-resolution raw frame is well below this

	EVENT_OPEN_STREAM  = 1 // payload: stream name (UTF-8)
	EVENT_CLOSE_STREAM = 2
	EVENT_WRITE        = 3 // payload: one stream message
	EVENT_PING         = 4
	EVENT_PONG         = 5
	EVENT_RESET        = 6
)

// discoveryMarker is the UDP broadcast payload devices respond to.
var discoveryMarker = []byte("OAK-DISC")

// EventType is the frame kind carried in the header.
type EventType uint32

func (e EventType) String() string {
	switch e {
	case EVENT_OPEN_STREAM:
		return "OPEN_STREAM"
	case EVENT_CLOSE_STREAM:
		return "CLOSE_STREAM"
	case EVENT_WRITE:
		return "WRITE"
	case EVENT_PING:
		return "PING"
	case EVENT_PONG:
		return "PONG"
	case EVENT_RESET:
		return "RESET"
	default:
		return fmt.Sprintf("EVENT_%d", uint32(e))
	}
}

// Frame is one unit of the TCP protocol.
type Frame struct {
	Event    EventType
	StreamID uint32
	Payload  []byte
}

// appendHeader serializes the frame header for the given payload size.
func appendHeader(dst []byte, event EventType, streamID, size uint32) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, FRAME_MAGIC)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(event))
	dst = binary.LittleEndian.AppendUint32(dst, streamID)
	dst = binary.LittleEndian.AppendUint32(dst, size)
	return dst
}

// parseHeader validates and splits a frame header.
func parseHeader(hdr []byte) (event EventType, streamID, size uint32, err error) {
	if len(hdr) < FRAME_HEADER_SIZE {
		return 0, 0, 0, fmt.Errorf("short frame header: %d bytes", len(hdr))
	}
	if magic := binary.LittleEndian.Uint32(hdr[0:]); magic != FRAME_MAGIC {
		return 0, 0, 0, fmt.Errorf("bad frame magic 0x%08X", magic)
	}
	event = EventType(binary.LittleEndian.Uint32(hdr[4:]))
	streamID = binary.LittleEndian.Uint32(hdr[8:])
	size = binary.LittleEndian.Uint32(hdr[12:])
	if size > MAX_FRAME_PAYLOAD {
		return 0, 0, 0, fmt.Errorf("frame payload %d exceeds limit", size)
	}
	return event, streamID, size, nil
}
