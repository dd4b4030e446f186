package display

// jetPalette is the 256-entry jet colormap in BGR order. Entry 0 is
// forced black so invalid depth pixels (zero) read as holes instead of
// dark blue.
var jetPalette = buildJet()

func buildJet() [256][3]byte {
	var p [256][3]byte
	for i := 1; i < 256; i++ {
		t := float64(i) / 255
		p[i] = [3]byte{jetChannel(t + 0.25), jetChannel(t), jetChannel(t - 0.25)}
	}
	return p
}

// jetChannel evaluates one channel of the jet ramp: a trapezoid rising
// over [0.125,0.375], flat to 0.625, falling to 0.875.
func jetChannel(t float64) byte {
	var v float64
	switch {
	case t < 0.125:
		v = 0
	case t < 0.375:
		v = (t - 0.125) * 4
	case t < 0.625:
		v = 1
	case t < 0.875:
		v = 1 - (t-0.625)*4
	default:
		v = 0
	}
	if v < 0 {
		v = 0
	}
	return byte(v * 255)
}

// ApplyJet maps 8-bit grayscale through the jet palette into a BGR
// image.
func ApplyJet(w, h int, gray []byte) Image {
	out := make([]byte, 3*len(gray))
	for i, v := range gray {
		c := jetPalette[v]
		out[3*i] = c[0]
		out[3*i+1] = c[1]
		out[3*i+2] = c[2]
	}
	return Image{Width: w, Height: h, BGR: out}
}
