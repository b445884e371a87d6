package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"

	"github.com/fkcurrie/fluidnc-position-led/internal/api"
	"github.com/fkcurrie/fluidnc-position-led/internal/config"
	"github.com/fkcurrie/fluidnc-position-led/internal/discovery"
	"github.com/fkcurrie/fluidnc-position-led/internal/effects"
	"github.com/fkcurrie/fluidnc-position-led/internal/fluidnc"
	"github.com/fkcurrie/fluidnc-position-led/internal/logging"
	"github.com/fkcurrie/fluidnc-position-led/internal/monitor"
	"github.com/fkcurrie/fluidnc-position-led/internal/preset"
	"github.com/fkcurrie/fluidnc-position-led/internal/types"
	"github.com/fkcurrie/fluidnc-position-led/internal/wled"
	"github.com/fkcurrie/fluidnc-position-led/pkg/gpio"
	"github.com/fkcurrie/fluidnc-position-led/pkg/ledstrip"
)

func main() {
	configPath := flag.StringP("config", "c", "config.json", "path to config file")
	logLevel := flag.String("log-level", "", "log level (debug, info, warn, error)")
	httpAddr := flag.String("http", "", "status API listen address, overrides http.addr")
	host := flag.String("host", "", "FluidNC host, overrides fluidnc.host")
	writeDefaults := flag.Bool("write-defaults", false, "write the default configuration and exit")
	flag.Parse()

	if err := logging.Setup("info", "console", nil); err != nil {
		log.Fatal().Err(err).Msg("Failed to set up logging")
	}

	if *writeDefaults {
		if err := config.Save(*configPath, config.DefaultConfig()); err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("Failed to write configuration")
		}
		log.Info().Str("path", *configPath).Msg("Wrote default configuration")
		return
	}

	// Load configuration
	cfg, rep, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("Failed to load configuration")
	}

	level := cfg.Log.Level
	if *logLevel != "" {
		level = *logLevel
	}
	if err := logging.Setup(level, cfg.Log.Format, nil); err != nil {
		log.Fatal().Err(err).Msg("Failed to set up logging")
	}

	if !rep.Complete() {
		log.Warn().Strs("missing", rep.Missing).Str("path", *configPath).Msg("Configuration incomplete, writing defaults")
		if err := config.Save(*configPath, cfg); err != nil {
			log.Error().Err(err).Msg("Failed to save configuration")
		}
	}
	if *host != "" {
		cfg.FluidNC.Host = *host
	}
	if *httpAddr != "" {
		cfg.HTTP.Addr = *httpAddr
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.FluidNC.Transport != "serial" && cfg.FluidNC.Host == "" {
		if !cfg.Discovery.Enabled {
			log.Fatal().Msg("fluidnc.host is not set and discovery is disabled")
		}
		found, err := discover(ctx, cfg.Discovery)
		if err != nil {
			log.Info().Err(err).Msg("Shutting down during discovery")
			return
		}
		cfg.FluidNC.Host = found
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
	defer func() {
		strip.Clear()
		strip.Show()
		strip.Close()
	}()

	engine, err := effects.New(cfg.Presets)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid presets")
	}
	appliers := preset.Multi{engine}

	var observers []func(monitor.Event)
	if cfg.MQTT.Broker != "" {
		client, err := wled.Dial(cfg.MQTT)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to MQTT broker")
		}
		defer client.Close()
		appliers = append(appliers, client)
		observers = append(observers, func(ev monitor.Event) {
			if ev.Kind == monitor.EventState {
				client.PublishState(ev.Report.State)
			}
		})
	}

	mgr, err := fluidnc.NewManagerFromConfig(cfg.FluidNC)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create FluidNC connection")
	}

	opts := []monitor.Option{monitor.WithBaseLayer(engine)}
	if cfg.StatusLED.Line >= 0 {
		pin, err := gpio.NewPin(cfg.StatusLED.Chip, cfg.StatusLED.Line)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to request status LED line")
		}
		defer pin.Close()
		opts = append(opts, monitor.WithStatusLight(pin))
	}

	mon := monitor.New(cfg, mgr, strip, appliers, opts...)
	for _, fn := range observers {
		mon.AddObserver(fn)
	}
	mon.AddObserver(logEvent)

	// Create HTTP server
	var server *http.Server
	var a *api.Server
	if cfg.HTTP.Addr != "" {
		a = api.New(cfg, mon, strip)
		mon.AddObserver(a.Publish)

		server = &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           a,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info().Str("addr", server.Addr).Msg("Status API listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Msg("Failed to start server")
			}
		}()
	}

	mon.Setup()
	mon.OnNetworkConnected()
	if err := mon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Monitor stopped")
	}
	log.Info().Msg("Shutting down...")

	if server != nil {
		// event streams stay open until the api lets go of them
		a.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shut down server")
		}
	}
}

// discover scans for a controller until one answers or ctx ends
func discover(ctx context.Context, cfg config.DiscoveryConfig) (string, error) {
	scanner := discovery.NewScanner(cfg)
	for {
		host, err := scanner.Find(ctx)
		if err == nil {
			return host, nil
		}
		log.Warn().Err(err).Msg("Discovery failed, retrying")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(10 * time.Second):
		}
	}
}

func logEvent(ev monitor.Event) {
	if ev.Kind != monitor.EventConnection {
		return
	}
	e := log.Info()
	if ev.Connection == types.Disconnected {
		e = log.Warn()
	}
	e.Str("connection", ev.Connection.String()).Msg("Controller link changed")
}
