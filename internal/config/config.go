package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
)

// MaxMachineWidthX is the largest accepted machine travel (mm). Machine X is
// handled as an int, so wider values would wrap.
const MaxMachineWidthX = math.MaxInt32

// Config represents the application configuration
type Config struct {
	Enabled   bool            `json:"enabled"`
	FluidNC   FluidNCConfig   `json:"fluidnc"`
	Indicator IndicatorConfig `json:"indicator"`
	Strip     StripConfig     `json:"strip"`
	Presets   map[int]Preset  `json:"presets"`
	StatusLED StatusLEDConfig `json:"status_led"`
	MQTT      MQTTConfig      `json:"mqtt"`
	HTTP      HTTPConfig      `json:"http"`
	Log       LogConfig       `json:"log"`
	Discovery DiscoveryConfig `json:"discovery"`

	// DispatchAllTransitions folds every status line of a tick through the
	// preset dispatcher instead of only the last one.
	DispatchAllTransitions bool `json:"dispatch_all_transitions"`
}

// FluidNCConfig represents the configuration for the controller connection
type FluidNCConfig struct {
	Host               string `json:"host"`
	Port               int    `json:"port"`
	Transport          string `json:"transport"` // telnet, websocket or serial
	Device             string `json:"device"`    // serial device path
	Baud               int    `json:"baud"`
	ReportIntervalMS   int    `json:"report_interval_ms"`
	ReconnectBackoffMS int    `json:"reconnect_backoff_ms"`
	PollIntervalMS     int    `json:"poll_interval_ms"`
	DialTimeoutMS      int    `json:"dial_timeout_ms"`
	IdleTimeoutMS      int    `json:"idle_timeout_ms"` // drop the link after this much silence
}

// IndicatorConfig describes how machine X maps onto the strip
type IndicatorConfig struct {
	MachineWidthX uint `json:"machine_width_x"` // total usable X travel (mm)
	WidthLEDs     uint `json:"width_leds"`      // LEDs used to show the position
	OffsetX       int  `json:"offset_x"`        // distance between the first LED and the tool at X=0 (mm)
	StripLengthMM int  `json:"strip_length_mm"` // center of first LED to center of last LED
	Reverse       bool `json:"reverse"`         // strip starts at the X max end
}

// StripConfig represents the configuration for the LED strip
type StripConfig struct {
	Backend         string `json:"backend"`    // memory, or ws281x when built with -tags ws281x
	StripType       string `json:"strip_type"` // grb, rgb, grbw, rgbw
	LEDCount        int    `json:"led_count"`
	GPIOPin         int    `json:"gpio_pin"`
	Brightness      int    `json:"brightness"`
	FrameIntervalMS int    `json:"frame_interval_ms"`
}

// Preset is the local effect used for a preset id
type Preset struct {
	Effect string `json:"effect"` // solid or breathe
	Color  string `json:"color"`
}

// StatusLEDConfig drives an optional GPIO line that is high while connected
type StatusLEDConfig struct {
	Chip string `json:"chip"`
	Line int    `json:"line"` // negative disables it
}

// MQTTConfig represents the configuration for the WLED MQTT bridge
type MQTTConfig struct {
	Broker     string `json:"broker"`
	ClientID   string `json:"client_id"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	APITopic   string `json:"api_topic"`
	StateTopic string `json:"state_topic"`
}

// HTTPConfig represents the configuration for the status API
type HTTPConfig struct {
	Addr string `json:"addr"`
}

// LogConfig represents the logging configuration
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// DiscoveryConfig represents the configuration for controller discovery
type DiscoveryConfig struct {
	Enabled   bool `json:"enabled"`
	Port      int  `json:"port"`
	TimeoutMS int  `json:"timeout_ms"`
}

// Report lists the tracked fields that were absent from the loaded document
type Report struct {
	Missing []string
}

// Complete reports whether every tracked field was present
func (r Report) Complete() bool {
	return len(r.Missing) == 0
}

// trackedFields are the fields whose absence is reported back to the caller so
// that defaults can be written out for editing.
var trackedFields = [][]string{
	{"enabled"},
	{"fluidnc", "host"},
	{"fluidnc", "port"},
	{"indicator", "machine_width_x"},
	{"indicator", "width_leds"},
	{"indicator", "offset_x"},
	{"indicator", "reverse"},
	{"indicator", "strip_length_mm"},
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
		FluidNC: FluidNCConfig{
			Host:               "",
			Port:               23,
			Transport:          "telnet",
			Baud:               115200,
			ReportIntervalMS:   200,
			ReconnectBackoffMS: 500,
			PollIntervalMS:     200,
			DialTimeoutMS:      5000,
			IdleTimeoutMS:      5000,
		},
		Indicator: IndicatorConfig{
			MachineWidthX: 1000,
			WidthLEDs:     1,
			OffsetX:       0,
			StripLengthMM: 1000,
			Reverse:       false,
		},
		Strip: StripConfig{
			Backend:         "memory",
			StripType:       "grb",
			LEDCount:        60,
			GPIOPin:         18,
			Brightness:      128,
			FrameIntervalMS: 40,
		},
		Presets: DefaultPresets(),
		StatusLED: StatusLEDConfig{
			Chip: "gpiochip0",
			Line: -1,
		},
		MQTT: MQTTConfig{
			ClientID: "fluidnc-led",
			APITopic: "wled/all/api",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Discovery: DiscoveryConfig{
			Enabled:   false,
			Port:      23,
			TimeoutMS: 1000,
		},
	}
}

// DefaultPresets returns the local effect for each dispatcher preset id
func DefaultPresets() map[int]Preset {
	return map[int]Preset{
		1: {Effect: "solid", Color: "#00a000"}, // Idle
		2: {Effect: "solid", Color: "#0030ff"}, // Home
		3: {Effect: "breathe", Color: "#ff0000"}, // Alarm
		4: {Effect: "solid", Color: "#ffa000"}, // Hold
		5: {Effect: "solid", Color: "#004040"}, // Run
		6: {Effect: "solid", Color: "#500080"}, // Jog
		7: {Effect: "solid", Color: "#ff5000"}, // anything else
	}
}

// LoadConfig loads the configuration from a file. Fields absent from the file keep
// their defaults and are listed in the returned Report. A missing file is not an
// error: the defaults are returned with every tracked field reported missing.
func LoadConfig(path string) (*Config, Report, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), Report{Missing: trackedNames()}, nil
	}
	if err != nil {
		return nil, Report{}, err
	}
	return Parse(data)
}

// Parse decodes a configuration document on top of the defaults
func Parse(data []byte) (*Config, Report, error) {
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, Report{}, fmt.Errorf("decode config: %w", err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, Report{}, fmt.Errorf("decode config: %w", err)
	}

	var rep Report
	for _, f := range trackedFields {
		if !present(doc, f) {
			rep.Missing = append(rep.Missing, joinPath(f))
		}
	}
	return cfg, rep, nil
}

// Save writes the configuration as indented JSON
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// Validate checks values the rest of the program divides by or indexes with
func (c *Config) Validate() error {
	if c.Indicator.StripLengthMM <= 0 {
		return fmt.Errorf("indicator.strip_length_mm must be positive, got %d", c.Indicator.StripLengthMM)
	}
	if c.Indicator.MachineWidthX > MaxMachineWidthX {
		return fmt.Errorf("indicator.machine_width_x must be at most %d, got %d", MaxMachineWidthX, c.Indicator.MachineWidthX)
	}
	if c.Strip.LEDCount <= 0 {
		return fmt.Errorf("strip.led_count must be positive, got %d", c.Strip.LEDCount)
	}
	if c.Strip.Brightness < 0 || c.Strip.Brightness > 255 {
		return fmt.Errorf("strip.brightness must be between 0 and 255")
	}
	switch c.FluidNC.Transport {
	case "telnet", "websocket":
		if c.FluidNC.Port <= 0 || c.FluidNC.Port > 65535 {
			return fmt.Errorf("fluidnc.port out of range: %d", c.FluidNC.Port)
		}
	case "serial":
		if c.FluidNC.Device == "" {
			return errors.New("fluidnc.device is required for the serial transport")
		}
	default:
		return fmt.Errorf("unknown fluidnc.transport %q", c.FluidNC.Transport)
	}
	return nil
}

func present(doc map[string]json.RawMessage, path []string) bool {
	for i, key := range path {
		raw, ok := doc[key]
		if !ok {
			return false
		}
		if i == len(path)-1 {
			return true
		}
		var next map[string]json.RawMessage
		if err := json.Unmarshal(raw, &next); err != nil || next == nil {
			return false
		}
		doc = next
	}
	return false
}

func trackedNames() []string {
	names := make([]string, 0, len(trackedFields))
	for _, f := range trackedFields {
		names = append(names, joinPath(f))
	}
	return names
}

func joinPath(path []string) string {
	s := path[0]
	for _, p := range path[1:] {
		s += "." + p
	}
	return s
}
