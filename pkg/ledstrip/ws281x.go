//go:build ws281x

package ledstrip

import (
	"fmt"

	ws2811 "github.com/rpi-ws281x/rpi-ws281x-go"

	"github.com/fkcurrie/fluidnc-position-led/internal/types"
)

// The ws281x backend needs the rpi_ws281x C library and root access, so it is
// only compiled in with -tags ws281x.
func init() {
	Register("ws281x", openWS281x)
}

var stripTypes = map[string]int{
	"":     ws2811.WS2811StripGRB,
	"grb":  ws2811.WS2811StripGRB,
	"rgb":  ws2811.WS2811StripRGB,
	"grbw": ws2811.SK6812StripGRBW,
	"rgbw": ws2811.SK6812StripRGBW,
}

type ws281xDevice struct {
	dev *ws2811.WS2811
}

func openWS281x(cfg Config) (Device, error) {
	stripType, ok := stripTypes[cfg.StripType]
	if !ok {
		return nil, fmt.Errorf("unsupported strip type %q", cfg.StripType)
	}

	opt := ws2811.DefaultOptions
	opt.Channels[0].Brightness = cfg.Brightness
	opt.Channels[0].GpioPin = cfg.GPIOPin
	opt.Channels[0].LedCount = cfg.LEDCount
	opt.Channels[0].StripeType = stripType

	dev, err := ws2811.MakeWS2811(&opt)
	if err != nil {
		return nil, fmt.Errorf("failed to create WS2811: %w", err)
	}
	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize WS2811: %w", err)
	}
	return &ws281xDevice{dev: dev}, nil
}

func (d *ws281xDevice) Render(frame []types.RGBW) error {
	leds := d.dev.Leds(0)
	for i := range leds {
		if i < len(frame) {
			leds[i] = frame[i].Uint32()
		}
	}
	return d.dev.Render()
}

func (d *ws281xDevice) Close() error {
	d.dev.Fini()
	return nil
}
