package types

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Strip represents a one-dimensional addressable LED strip
type Strip interface {
	// Len returns the number of addressable pixels
	Len() int
	// SetPixel sets the pixel at index i to the given color
	SetPixel(i int, c RGBW) error
	// Pixel returns the color currently buffered for index i
	Pixel(i int) RGBW
	// Show pushes the buffer to the hardware
	Show() error
	// Close releases the strip
	Close() error
}

// RGBW is a strip color with a dedicated white channel
type RGBW struct {
	R, G, B, W uint8
}

var (
	Black = RGBW{}
	// White is the fully saturated indicator color
	White = RGBW{R: 0xFF, G: 0xFF, B: 0xFF, W: 0xFF}
)

// Uint32 packs the color as 0xWWRRGGBB, the layout used by ws281x drivers
func (c RGBW) Uint32() uint32 {
	return uint32(c.W)<<24 | uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

// Scale returns the color with every channel multiplied by f (0..1)
func (c RGBW) Scale(f float64) RGBW {
	if f <= 0 {
		return Black
	}
	if f >= 1 {
		return c
	}
	return RGBW{
		R: uint8(float64(c.R) * f),
		G: uint8(float64(c.G) * f),
		B: uint8(float64(c.B) * f),
		W: uint8(float64(c.W) * f),
	}
}

// RGBA implements color.Color. The white channel is added onto the others.
func (c RGBW) RGBA() (r, g, b, a uint32) {
	add := func(v uint8) uint32 {
		s := uint32(v) + uint32(c.W)
		if s > 0xFF {
			s = 0xFF
		}
		return s * 0x101
	}
	return add(c.R), add(c.G), add(c.B), 0xFFFF
}

// Hex formats the color as #RRGGBB or #RRGGBBWW when white is set
func (c RGBW) Hex() string {
	if c.W == 0 {
		return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.W)
}

// ParseRGBW parses #RRGGBB or #RRGGBBWW
func ParseRGBW(s string) (RGBW, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 && len(s) != 8 {
		return RGBW{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return RGBW{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	if len(s) == 6 {
		v <<= 8
	}
	return RGBW{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), W: uint8(v)}, nil
}

var _ color.Color = RGBW{}
