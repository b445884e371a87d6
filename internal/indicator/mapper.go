// Package indicator maps the machine X coordinate onto strip pixels and draws
// the position indicator.
package indicator

import (
	"math"

	"github.com/fkcurrie/fluidnc-position-led/internal/config"
)

// MachinePixels returns the number of strip pixels covering the full machine
// travel. It exceeds ledCount when the strip covers only part of the travel.
func MachinePixels(cfg config.IndicatorConfig, ledCount int) int {
	if cfg.StripLengthMM <= 0 {
		return 0
	}
	return int(math.Floor(float64(cfg.MachineWidthX) / float64(cfg.StripLengthMM) * float64(ledCount)))
}

// Clamp limits x to [0, width]
func Clamp(x, width int) int {
	if x < 0 {
		return 0
	}
	if x > width {
		return width
	}
	return x
}

// Rescale maps v linearly from [inMin, inMax] to [outMin, outMax], rounding to
// the nearest integer. v is not clamped. An empty input range yields outMin.
func Rescale(v, inMin, inMax, outMin, outMax int) int {
	if inMax == inMin {
		return outMin
	}
	f := float64(v-inMin)*float64(outMax-outMin)/float64(inMax-inMin) + float64(outMin)
	return int(math.Round(f))
}

// Position returns the strip index of the indicator center for machine X
func Position(x int, cfg config.IndicatorConfig, ledCount int) int {
	width := int(cfg.MachineWidthX)
	pos := Rescale(Clamp(x, width), 0, width, 0, MachinePixels(cfg, ledCount)-1)
	pos += Rescale(cfg.OffsetX, 0, cfg.StripLengthMM, 0, ledCount)

	if cfg.Reverse {
		return ledCount - pos
	}
	return pos
}

// HalfWidth returns how many pixels are lit on each side of the center. An even
// width is widened by one so the indicator stays centered.
func HalfWidth(widthLEDs uint) int {
	if widthLEDs%2 == 0 {
		widthLEDs++
	}
	return int(widthLEDs / 2)
}

// Pixels returns the strip indices lit for machine X: the center first, then
// pairs moving outward. Indices outside [0, ledCount) are left out. A zero
// indicator width lights nothing.
func Pixels(x int, cfg config.IndicatorConfig, ledCount int) []int {
	if cfg.WidthLEDs == 0 || ledCount <= 0 {
		return nil
	}

	center := Position(x, cfg, ledCount)
	half := HalfWidth(cfg.WidthLEDs)

	out := make([]int, 0, 2*half+1)
	inRange := func(i int) bool { return i >= 0 && i < ledCount }
	if inRange(center) {
		out = append(out, center)
	}
	for i := 1; i <= half; i++ {
		if inRange(center - i) {
			out = append(out, center-i)
		}
		if inRange(center + i) {
			out = append(out, center+i)
		}
	}
	return out
}
