// Package preview draws a picture of the strip for the status API.
package preview

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/fkcurrie/fluidnc-position-led/internal/types"
)

// DefaultPitch is the distance between LED centers in pixels
const DefaultPitch = 12

const background = "#101010"

// SVG returns an SVG document with one circle per LED
func SVG(frame []types.RGBW, pitch int) []byte {
	if pitch <= 0 {
		pitch = DefaultPitch
	}
	w, h := len(frame)*pitch, pitch
	r := float64(pitch) * 0.4

	var b bytes.Buffer
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`, w, h, w, h)
	fmt.Fprintf(&b, `<rect x="0" y="0" width="%d" height="%d" fill="%s"/>`, w, h, background)
	for i, c := range frame {
		cx := float64(i*pitch) + float64(pitch)/2
		fmt.Fprintf(&b, `<circle cx="%g" cy="%g" r="%g" fill="%s"/>`, cx, float64(pitch)/2, r, hex(c))
	}
	b.WriteString(`</svg>`)
	return b.Bytes()
}

// Image rasterizes the strip
func Image(frame []types.RGBW, pitch int) (*image.RGBA, error) {
	if len(frame) == 0 {
		return nil, fmt.Errorf("empty frame")
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(SVG(frame, pitch)))
	if err != nil {
		return nil, fmt.Errorf("parse strip svg: %w", err)
	}

	w, h := int(icon.ViewBox.W), int(icon.ViewBox.H)
	icon.SetTarget(0, 0, float64(w), float64(h))

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	scanner := rasterx.NewScannerGV(w, h, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1)
	return img, nil
}

// Render writes the strip as a PNG
func Render(out io.Writer, frame []types.RGBW, pitch int) error {
	img, err := Image(frame, pitch)
	if err != nil {
		return err
	}
	return EncodePNG(out, img)
}

// EncodePNG writes img as a PNG
func EncodePNG(out io.Writer, img image.Image) error {
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	return enc.Encode(out, img)
}

// hex returns the visible color of c, with the white channel mixed in
func hex(c types.RGBW) string {
	r, g, b, _ := c.RGBA()
	return fmt.Sprintf("#%02x%02x%02x", r>>8, g>>8, b>>8)
}
