package message

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

/*
Stream Message Wire Format

Every message written to or read from an XLink stream is a single packet
with the payload first and the framing information at the end, so large
pixel buffers can be written straight from capture memory without a copy
on the device side.

PACKET STRUCTURE:
├── Payload (N bytes)      - raw message payload (pixel data, bitstream, ...)
├── Metadata (M bytes)     - JSON document with the typed message fields
└── Trailer (8 bytes)
    ├── Datatype (4 bytes) - uint32 little-endian, DatatypeEnum value
    └── Size (4 bytes)     - uint32 little-endian, metadata length M

The payload length is implicit: len(packet) - 8 - M. Messages without a
binary payload (controls, telemetry, detections) have N = 0 and consist of
just the metadata document and the trailer. A packet shorter than 8 bytes,
or whose recorded metadata size exceeds the bytes preceding the trailer,
is rejected as malformed rather than truncated.
*/
const (
	TRAILER_SIZE        = 8        // Datatype + metadata size, both uint32 little-endian
	DATATYPE_OFFSET     = 8        // Trailer offset of the datatype field, from packet end
	METADATA_LEN_OFFSET = 4        // Trailer offset of the metadata length field, from packet end
	MAX_METADATA_SIZE   = 10 << 20 // Upper bound accepted for the metadata document
)

// Marshal frames a message for the wire: payload, metadata JSON, trailer.
func Marshal(m Message) ([]byte, error) {
	var payload []byte
	switch msg := m.(type) {
	case *Buffer:
		payload = msg.Data
	case *ImgFrame:
		payload = msg.Data
	}

	meta, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal %s metadata: %w", m.Datatype(), err)
	}

	packet := make([]byte, 0, len(payload)+len(meta)+TRAILER_SIZE)
	packet = append(packet, payload...)
	packet = append(packet, meta...)
	packet = binary.LittleEndian.AppendUint32(packet, uint32(m.Datatype()))
	packet = binary.LittleEndian.AppendUint32(packet, uint32(len(meta)))
	return packet, nil
}

// Unmarshal parses a wire packet into its concrete message type.
func Unmarshal(packet []byte) (Message, error) {
	if len(packet) < TRAILER_SIZE {
		return nil, fmt.Errorf("packet too short: %d bytes", len(packet))
	}

	datatype := DatatypeEnum(binary.LittleEndian.Uint32(packet[len(packet)-DATATYPE_OFFSET:]))
	metaLen := binary.LittleEndian.Uint32(packet[len(packet)-METADATA_LEN_OFFSET:])
	if metaLen > MAX_METADATA_SIZE {
		return nil, fmt.Errorf("metadata size %d exceeds limit", metaLen)
	}
	body := packet[:len(packet)-TRAILER_SIZE]
	if int(metaLen) > len(body) {
		return nil, fmt.Errorf("metadata size %d exceeds packet body %d", metaLen, len(body))
	}

	payload := body[:len(body)-int(metaLen)]
	meta := body[len(body)-int(metaLen):]

	msg, err := newMessage(datatype)
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, msg); err != nil {
			return nil, fmt.Errorf("unmarshal %s metadata: %w", datatype, err)
		}
	}

	switch m := msg.(type) {
	case *Buffer:
		m.Data = clone(payload)
	case *ImgFrame:
		m.Data = clone(payload)
	default:
		if len(payload) > 0 {
			return nil, fmt.Errorf("%s packet carries unexpected %d byte payload", datatype, len(payload))
		}
	}
	return msg, nil
}

func newMessage(d DatatypeEnum) (Message, error) {
	switch d {
	case TypeBuffer:
		return &Buffer{}, nil
	case TypeImgFrame:
		return &ImgFrame{}, nil
	case TypeCameraControl:
		return &CameraControl{}, nil
	case TypeImgDetections:
		return &ImgDetections{}, nil
	case TypeSpatialImgDetections:
		return &SpatialImgDetections{}, nil
	case TypeSystemInformation:
		return &SystemInformation{}, nil
	case TypeEdgeDetectorConfig:
		return &EdgeDetectorConfig{}, nil
	case TypeToFConfig:
		return &ToFConfig{}, nil
	default:
		return nil, fmt.Errorf("unknown datatype %d", uint32(d))
	}
}

func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
