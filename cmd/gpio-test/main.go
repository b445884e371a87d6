package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"

	"github.com/fkcurrie/fluidnc-position-led/internal/config"
	"github.com/fkcurrie/fluidnc-position-led/internal/logging"
	"github.com/fkcurrie/fluidnc-position-led/pkg/gpio"
)

// gpio-test blinks the connection status line so the wiring can be checked
// without a controller.
func main() {
	configPath := flag.StringP("config", "c", "config.json", "path to config file")
	chip := flag.String("chip", "", "GPIO chip, overrides status_led.chip")
	line := flag.Int("line", -1, "GPIO line offset, overrides status_led.line")
	period := flag.Duration("period", time.Second, "toggle period")
	flag.Parse()

	if err := logging.Setup("info", "console", nil); err != nil {
		log.Fatal().Err(err).Msg("Failed to set up logging")
	}

	cfg, _, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *chip != "" {
		cfg.StatusLED.Chip = *chip
	}
	if *line >= 0 {
		cfg.StatusLED.Line = *line
	}
	if cfg.StatusLED.Line < 0 {
		log.Fatal().Msg("No status line configured, pass --line")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("chip", cfg.StatusLED.Chip).Int("line", cfg.StatusLED.Line).Msg("Starting GPIO test...")
	pin, err := gpio.NewPin(cfg.StatusLED.Chip, cfg.StatusLED.Line)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to request line")
	}
	defer pin.Close()

	// Toggle the line until terminated
	ticker := time.NewTicker(*period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Shutting down...")
			pin.Set(false)
			return
		case <-ticker.C:
			if err := pin.SetValue(pin.Value() ^ 1); err != nil {
				log.Error().Err(err).Msg("Failed to set value")
				continue
			}
			log.Info().Int("value", pin.Value()).Msg("Set GPIO value")
		}
	}
}
