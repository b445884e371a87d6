package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"

	"github.com/fkcurrie/fluidnc-position-led/internal/config"
	"github.com/fkcurrie/fluidnc-position-led/internal/effects"
	"github.com/fkcurrie/fluidnc-position-led/internal/indicator"
	"github.com/fkcurrie/fluidnc-position-led/internal/logging"
	"github.com/fkcurrie/fluidnc-position-led/internal/preview"
	"github.com/fkcurrie/fluidnc-position-led/internal/types"
	"github.com/fkcurrie/fluidnc-position-led/pkg/ledstrip"
)

const sweepDelay = 50 * time.Millisecond

func main() {
	configPath := flag.StringP("config", "c", "config.json", "path to config file")
	hold := flag.Duration("hold", 2*time.Second, "how long each pattern is shown")
	step := flag.Int("step", 10, "machine X step of the indicator sweep (mm)")
	png := flag.String("png", "", "write a preview of every pattern to this file prefix")
	flag.Parse()

	if err := logging.Setup("info", "console", nil); err != nil {
		log.Fatal().Err(err).Msg("Failed to set up logging")
	}

	// Load configuration
	cfg, _, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Warn().Err(err).Str("path", *configPath).Msg("Failed to load config, using defaults")
		cfg = config.DefaultConfig()
	}

	// Create strip
	strip, err := ledstrip.Open(ledstrip.Config{
		Backend:    cfg.Strip.Backend,
		LEDCount:   cfg.Strip.LEDCount,
		GPIOPin:    cfg.Strip.GPIOPin,
		Brightness: cfg.Strip.Brightness,
		StripType:  cfg.Strip.StripType,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open LED strip")
	}
	defer strip.Close()

	t := &tester{strip: strip, hold: *hold, png: *png}

	t.show("red", func(i int) types.RGBW { return types.RGBW{R: 0xFF} })
	t.show("green", func(i int) types.RGBW { return types.RGBW{G: 0xFF} })
	t.show("blue", func(i int) types.RGBW { return types.RGBW{B: 0xFF} })
	t.show("white", func(i int) types.RGBW { return types.RGBW{W: 0xFF} })
	t.show("alternating", func(i int) types.RGBW {
		if i%2 == 0 {
			return types.White
		}
		return types.Black
	})

	// Every preset in turn
	engine, err := effects.New(cfg.Presets)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid presets")
	}
	for _, id := range engine.Presets() {
		engine.ApplyPreset(id)
		if err := engine.Render(strip, time.Now()); err != nil {
			log.Fatal().Err(err).Msg("Failed to render preset")
		}
		t.commit(fmt.Sprintf("preset-%d", id))
	}

	// Indicator sweep across the machine travel
	log.Info().Uint("width", cfg.Indicator.MachineWidthX).Msg("Sweeping indicator")
	overlay := indicator.NewRenderer(cfg.Indicator)
	for x := 0; x <= int(cfg.Indicator.MachineWidthX); x += max(*step, 1) {
		strip.Clear()
		idx, err := overlay.Render(types.StatusReport{State: types.StateJog, MachineX: x}, strip)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to draw indicator")
		}
		log.Debug().Int("x", x).Int("index", idx).Msg("Indicator")
		if err := strip.Show(); err != nil {
			log.Fatal().Err(err).Msg("Failed to show strip")
		}
		time.Sleep(sweepDelay)
	}

	// Clear the strip
	log.Info().Msg("Clearing strip")
	strip.Clear()
	if err := strip.Show(); err != nil {
		log.Fatal().Err(err).Msg("Failed to show strip")
	}

	fmt.Println("Test completed successfully")
}

type tester struct {
	strip *ledstrip.Buffer
	hold  time.Duration
	png   string
}

func (t *tester) show(name string, color func(i int) types.RGBW) {
	for i := 0; i < t.strip.Len(); i++ {
		if err := t.strip.SetPixel(i, color(i)); err != nil {
			log.Fatal().Err(err).Msg("Failed to set pixel")
		}
	}
	t.commit(name)
}

func (t *tester) commit(name string) {
	log.Info().Str("pattern", name).Msg("Showing pattern")
	if err := t.strip.Show(); err != nil {
		log.Fatal().Err(err).Msg("Failed to show strip")
	}
	if t.png != "" {
		t.writePreview(name)
	}
	time.Sleep(t.hold)
}

func (t *tester) writePreview(name string) {
	f, err := os.Create(fmt.Sprintf("%s-%s.png", t.png, name))
	if err != nil {
		log.Error().Err(err).Msg("Failed to create preview")
		return
	}
	defer f.Close()
	if err := preview.Render(f, t.strip.Frame(), preview.DefaultPitch); err != nil {
		log.Error().Err(err).Msg("Failed to write preview")
	}
}
