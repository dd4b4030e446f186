// Package display converts device frames into host-viewable images and
// feeds them to a sink: a gocv window when built with the gui tag, or
// the HTTP monitor's frame store otherwise.
package display

import (
	"encoding/binary"
	"fmt"

	"github.com/banshee-data/oakstress/internal/oak/message"
)

// Image is an 8-bit 3-channel BGR frame ready for display or encoding.
type Image struct {
	Width  int
	Height int
	// BGR holds interleaved pixels, row-major, 3 bytes per pixel.
	BGR []byte
}

// Sink consumes converted frames, one window or store entry per stream.
type Sink interface {
	Show(stream string, img Image) error
	Close() error
}

// ToBGR converts a frame payload for display. Depth-style RAW16 frames
// are min-max normalized and run through the jet colormap; BITSTREAM
// frames cannot be displayed and return an error the caller is expected
// to count rather than surface.
func ToBGR(f *message.ImgFrame) (Image, error) {
	if want := f.PixelSize(); want > 0 && len(f.Data) != want {
		return Image{}, fmt.Errorf("%s frame %dx%d has %d byte payload, want %d",
			f.Type, f.Width, f.Height, len(f.Data), want)
	}

	switch f.Type {
	case message.FrameGray8, message.FrameRaw8:
		return grayToBGR(f.Width, f.Height, f.Data), nil
	case message.FrameRaw16:
		gray := Normalize16(f.Data)
		return ApplyJet(f.Width, f.Height, gray), nil
	case message.FrameBGR888p:
		return planarToBGR(f.Width, f.Height, f.Data), nil
	case message.FrameNV12:
		return nv12ToBGR(f.Width, f.Height, f.Data), nil
	default:
		return Image{}, fmt.Errorf("frame type %s is not displayable", f.Type)
	}
}

func grayToBGR(w, h int, gray []byte) Image {
	out := make([]byte, 3*w*h)
	for i, v := range gray {
		out[3*i] = v
		out[3*i+1] = v
		out[3*i+2] = v
	}
	return Image{Width: w, Height: h, BGR: out}
}

// planarToBGR interleaves a BGR888p payload (three full planes, B then G
// then R) into packed pixels.
func planarToBGR(w, h int, planes []byte) Image {
	px := w * h
	out := make([]byte, 3*px)
	for i := 0; i < px; i++ {
		out[3*i] = planes[i]
		out[3*i+1] = planes[px+i]
		out[3*i+2] = planes[2*px+i]
	}
	return Image{Width: w, Height: h, BGR: out}
}

// nv12ToBGR converts a 4:2:0 luma plane plus interleaved UV plane using
// the BT.601 studio-range coefficients the device encoder assumes.
func nv12ToBGR(w, h int, data []byte) Image {
	px := w * h
	out := make([]byte, 3*px)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			yv := float64(data[y*w+x]) - 16
			uvBase := px + (y/2)*w + (x/2)*2
			u := float64(data[uvBase]) - 128
			v := float64(data[uvBase+1]) - 128

			b := 1.164*yv + 2.018*u
			g := 1.164*yv - 0.391*u - 0.813*v
			r := 1.164*yv + 1.596*v

			i := 3 * (y*w + x)
			out[i] = clampByte(b)
			out[i+1] = clampByte(g)
			out[i+2] = clampByte(r)
		}
	}
	return Image{Width: w, Height: h, BGR: out}
}

func clampByte(v float64) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// Normalize16 min-max normalizes little-endian 16-bit samples into 8-bit
// grayscale. A flat frame maps to zero.
func Normalize16(raw []byte) []byte {
	n := len(raw) / 2
	out := make([]byte, n)
	if n == 0 {
		return out
	}

	lo, hi := uint16(0xFFFF), uint16(0)
	for i := 0; i < n; i++ {
		v := binary.LittleEndian.Uint16(raw[2*i:])
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi == lo {
		return out
	}
	span := float64(hi - lo)
	for i := 0; i < n; i++ {
		v := binary.LittleEndian.Uint16(raw[2*i:])
		out[i] = byte(float64(v-lo) / span * 255)
	}
	return out
}
