package indicator

import (
	"fmt"

	"github.com/fkcurrie/fluidnc-position-led/internal/config"
	"github.com/fkcurrie/fluidnc-position-led/internal/types"
)

// Renderer draws the position indicator on top of whatever the active effect
// put in the strip buffer.
type Renderer struct {
	cfg   config.IndicatorConfig
	color types.RGBW
}

// NewRenderer creates a renderer drawing in full white
func NewRenderer(cfg config.IndicatorConfig) *Renderer {
	return &Renderer{cfg: cfg, color: types.White}
}

// Render draws the indicator for report onto strip. Nothing is drawn unless the
// machine is running or jogging. It returns the center index, or -1 when
// nothing was drawn.
func (r *Renderer) Render(report types.StatusReport, strip types.Strip) (int, error) {
	if !report.State.Moving() {
		return -1, nil
	}

	pixels := Pixels(report.MachineX, r.cfg, strip.Len())
	if len(pixels) == 0 {
		return -1, nil
	}
	for _, i := range pixels {
		if err := strip.SetPixel(i, r.color); err != nil {
			return -1, fmt.Errorf("draw indicator: %w", err)
		}
	}
	if center := Position(report.MachineX, r.cfg, strip.Len()); center >= 0 && center < strip.Len() {
		return center, nil
	}
	return -1, nil
}
