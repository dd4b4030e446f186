package display

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

// EncodeJPEG compresses a BGR image for the monitor's frame endpoints.
func EncodeJPEG(img Image, quality int) ([]byte, error) {
	if len(img.BGR) != 3*img.Width*img.Height {
		return nil, fmt.Errorf("image %dx%d has %d byte buffer", img.Width, img.Height, len(img.BGR))
	}
	rgba := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	for i := 0; i < img.Width*img.Height; i++ {
		rgba.Pix[4*i] = img.BGR[3*i+2]
		rgba.Pix[4*i+1] = img.BGR[3*i+1]
		rgba.Pix[4*i+2] = img.BGR[3*i]
		rgba.Pix[4*i+3] = 0xFF
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgba, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
