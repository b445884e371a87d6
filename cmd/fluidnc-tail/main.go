package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"

	"github.com/fkcurrie/fluidnc-position-led/internal/config"
	"github.com/fkcurrie/fluidnc-position-led/internal/fluidnc"
	"github.com/fkcurrie/fluidnc-position-led/internal/logging"
	"github.com/fkcurrie/fluidnc-position-led/internal/preset"
	"github.com/fkcurrie/fluidnc-position-led/internal/types"
)

// fluidnc-tail connects to a controller and prints every status report it sends.
func main() {
	configPath := flag.StringP("config", "c", "config.json", "path to config file")
	host := flag.String("host", "", "FluidNC host, overrides fluidnc.host")
	port := flag.Int("port", 0, "FluidNC port, overrides fluidnc.port")
	transport := flag.String("transport", "", "telnet, websocket or serial")
	raw := flag.Bool("raw", false, "also print lines that are not status reports")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	if err := logging.Setup(*logLevel, "console", nil); err != nil {
		log.Fatal().Err(err).Msg("Failed to set up logging")
	}

	cfg, _, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *host != "" {
		cfg.FluidNC.Host = *host
	}
	if *port != 0 {
		cfg.FluidNC.Port = *port
	}
	if *transport != "" {
		cfg.FluidNC.Transport = *transport
	}

	mgr, err := fluidnc.NewManagerFromConfig(cfg.FluidNC)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create FluidNC connection")
	}
	defer mgr.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcher := preset.NewDispatcher(nil)
	var lines fluidnc.LineReader
	interval := time.Duration(cfg.FluidNC.PollIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = fluidnc.DefaultReportInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if mgr.State() != types.Connected {
			lines.Reset()
			if err := mgr.Connect(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				log.Fatal().Err(err).Msg("Failed to connect")
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, line := range lines.Feed(mgr.Drain()) {
			if !fluidnc.IsStatusLine(line) {
				if *raw {
					fmt.Fprintln(os.Stdout, line)
				}
				continue
			}
			report, err := fluidnc.ParseStatus(line)
			if err != nil {
				log.Warn().Err(err).Str("line", line).Msg("Malformed status line")
				continue
			}
			marker := ""
			if id, fired := dispatcher.OnReport(report); fired {
				marker = fmt.Sprintf("  -> preset %d", id)
			}
			fmt.Fprintf(os.Stdout, "%-8s x=%-6d %s%s\n", report.State, report.MachineX, report.StateText, marker)
		}
	}
}
