// Package effects renders the base layer of the strip for the active preset.
package effects

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fkcurrie/fluidnc-position-led/internal/config"
	"github.com/fkcurrie/fluidnc-position-led/internal/types"
)

// FallbackPreset is used for ids without a configured effect
const FallbackPreset = 7

// BreathePeriod is the duration of one breathe cycle
const BreathePeriod = 2 * time.Second

// breatheFloor keeps a breathing strip from going fully dark
const breatheFloor = 0.15

// Effect names
const (
	Solid   = "solid"
	Breathe = "breathe"
)

type effect struct {
	name  string
	color types.RGBW
}

func (e effect) at(elapsed time.Duration) types.RGBW {
	if e.name != Breathe {
		return e.color
	}
	phase := float64(elapsed%BreathePeriod) / float64(BreathePeriod)
	level := (1 - math.Cos(2*math.Pi*phase)) / 2
	return e.color.Scale(breatheFloor + (1-breatheFloor)*level)
}

// Engine is a preset applier that keeps the strip's base colors. The active
// effect is switched by ApplyPreset and drawn by Render every frame.
type Engine struct {
	mu      sync.Mutex
	presets map[int]effect
	active  int
	effect  effect
	since   time.Time
	now     func() time.Time
}

var _ types.PresetApplier = (*Engine)(nil)

// New creates an engine from the configured presets. It starts dark until the
// first preset is applied.
func New(presets map[int]config.Preset) (*Engine, error) {
	e := &Engine{
		presets: make(map[int]effect, len(presets)),
		now:     time.Now,
	}
	for id, p := range presets {
		name := p.Effect
		if name == "" {
			name = Solid
		}
		if name != Solid && name != Breathe {
			return nil, fmt.Errorf("preset %d: unknown effect %q", id, p.Effect)
		}
		c, err := types.ParseRGBW(p.Color)
		if err != nil {
			return nil, fmt.Errorf("preset %d: %w", id, err)
		}
		e.presets[id] = effect{name: name, color: c}
	}
	return e, nil
}

// ApplyPreset switches the active effect. Unknown ids fall back to the
// FallbackPreset effect, or black when that is not configured either.
func (e *Engine) ApplyPreset(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fx, ok := e.presets[id]
	if !ok {
		fx, ok = e.presets[FallbackPreset]
		log.Debug().Int("preset", id).Bool("fallback", ok).Msg("No effect configured for preset")
	}
	if !ok {
		fx = effect{name: Solid, color: types.Black}
	}
	e.active = id
	e.effect = fx
	e.since = e.now()
}

// Active returns the last applied preset id, 0 before the first one
func (e *Engine) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Presets returns the configured preset ids in ascending order
func (e *Engine) Presets() []int {
	ids := make([]int, 0, len(e.presets))
	for id := range e.presets {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Color returns the base color drawn at time now
func (e *Engine) Color(now time.Time) types.RGBW {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == 0 {
		return types.Black
	}
	return e.effect.at(now.Sub(e.since))
}

// Render fills the whole strip with the active effect
func (e *Engine) Render(strip types.Strip, now time.Time) error {
	c := e.Color(now)
	for i := 0; i < strip.Len(); i++ {
		if err := strip.SetPixel(i, c); err != nil {
			return err
		}
	}
	return nil
}
