// Package monitor runs the FluidNC status loop: it keeps the controller link
// alive, tracks the latest status report, dispatches presets on state changes
// and draws the position indicator every frame.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fkcurrie/fluidnc-position-led/internal/config"
	"github.com/fkcurrie/fluidnc-position-led/internal/fluidnc"
	"github.com/fkcurrie/fluidnc-position-led/internal/indicator"
	"github.com/fkcurrie/fluidnc-position-led/internal/preset"
	"github.com/fkcurrie/fluidnc-position-led/internal/types"
)

const (
	defaultTickInterval  = 200 * time.Millisecond
	defaultFrameInterval = 40 * time.Millisecond
)

// Link is the controller connection, implemented by *fluidnc.Manager
type Link interface {
	Poll(ctx context.Context) types.ConnectionState
	Drain() []byte
	Kick()
	State() types.ConnectionState
	Attempts() int
	Peer() string
	Close() error
}

// BaseLayer fills the strip before the indicator is drawn
type BaseLayer interface {
	Render(strip types.Strip, now time.Time) error
}

// StatusLight is driven high while the controller is connected
type StatusLight interface {
	Set(on bool) error
}

// EventKind identifies an Event
type EventKind string

const (
	// EventState is emitted when the controller state changes
	EventState EventKind = "state"
	// EventConnection is emitted when the link state changes
	EventConnection EventKind = "connection"
)

// Event describes a state transition
type Event struct {
	Kind       EventKind             `json:"kind"`
	Time       time.Time             `json:"time"`
	Previous   types.OperatingState  `json:"previous,omitempty"`
	Report     types.StatusReport    `json:"report"`
	Preset     int                   `json:"preset,omitempty"`
	Connection types.ConnectionState `json:"connection"`
}

// Snapshot is a copy of the monitor state for other goroutines
type Snapshot struct {
	Enabled    bool                  `json:"enabled"`
	Connection types.ConnectionState `json:"connection"`
	Peer       string                `json:"peer"`
	Attempts   int                   `json:"attempts"`
	Report     *types.StatusReport   `json:"report"`
	Preset     int                   `json:"preset"`
	Indicator  int                   `json:"indicator"`
	LEDCount   int                   `json:"led_count"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// Option configures a Monitor
type Option func(*Monitor)

// WithBaseLayer draws base under the indicator every frame
func WithBaseLayer(base BaseLayer) Option {
	return func(m *Monitor) { m.base = base }
}

// WithStatusLight mirrors the connection state on light
func WithStatusLight(light StatusLight) Option {
	return func(m *Monitor) { m.light = light }
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// Monitor owns all status state. Setup, OnNetworkConnected, OnTick,
// OnFrameRender and Run must be called from one goroutine; Snapshot and the
// observers are the only things shared with others.
type Monitor struct {
	cfg        *config.Config
	link       Link
	strip      types.Strip
	dispatcher *preset.Dispatcher
	overlay    *indicator.Renderer
	base       BaseLayer
	light      StatusLight
	now        func() time.Time

	lines      fluidnc.LineReader
	ledCount   int
	report     types.StatusReport
	haveReport bool
	conn       types.ConnectionState
	index      int
	observers  []func(Event)

	mu   sync.RWMutex
	snap Snapshot
}

// New creates a monitor reading from link, drawing on strip and applying presets
// through applier.
func New(cfg *config.Config, link Link, strip types.Strip, applier types.PresetApplier, opts ...Option) *Monitor {
	m := &Monitor{
		cfg:        cfg,
		link:       link,
		strip:      strip,
		dispatcher: preset.NewDispatcher(applier),
		overlay:    indicator.NewRenderer(cfg.Indicator),
		now:        time.Now,
		index:      -1,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.publish()
	return m
}

// AddObserver registers fn for every Event. Observers run on the monitor
// goroutine and must not block.
func (m *Monitor) AddObserver(fn func(Event)) {
	m.observers = append(m.observers, fn)
}

// Setup reads the strip length. It is called once before the first tick.
func (m *Monitor) Setup() {
	m.ledCount = m.strip.Len()
	m.setLight(false)
	log.Info().
		Int("leds", m.ledCount).
		Bool("enabled", m.cfg.Enabled).
		Str("peer", m.link.Peer()).
		Msg("FluidNC monitor ready")
	m.publish()
}

// OnNetworkConnected retries the controller link right away
func (m *Monitor) OnNetworkConnected() {
	log.Debug().Msg("Network connected")
	m.link.Kick()
}

// OnTick advances the connection and consumes everything received since the
// previous tick. Malformed lines leave the previous report in place.
func (m *Monitor) OnTick(ctx context.Context) {
	if !m.cfg.Enabled {
		return
	}

	m.checkConnection(m.link.Poll(ctx))
	data := m.link.Drain()
	if len(data) > 0 {
		m.consume(m.lines.Feed(data))
	}
	// Drain may have dropped the link
	m.checkConnection(m.link.State())
	m.publish()
}

// OnFrameRender draws the indicator over the current strip contents
func (m *Monitor) OnFrameRender() {
	if !m.cfg.Enabled {
		return
	}

	idx, err := m.overlay.Render(m.report, m.strip)
	if err != nil {
		log.Error().Err(err).Msg("Failed to draw indicator")
	}
	if idx != m.index {
		m.index = idx
		m.publish()
	}
}

// RenderFrame composes one frame: base layer, indicator, then Show
func (m *Monitor) RenderFrame(now time.Time) error {
	if m.base != nil {
		if err := m.base.Render(m.strip, now); err != nil {
			return err
		}
	}
	m.OnFrameRender()
	return m.strip.Show()
}

// Run drives ticks and frames until ctx is done
func (m *Monitor) Run(ctx context.Context) error {
	if m.ledCount == 0 {
		m.Setup()
	}
	defer func() {
		m.link.Close()
		m.setLight(false)
	}()

	tick := time.NewTicker(interval(m.cfg.FluidNC.PollIntervalMS, defaultTickInterval))
	defer tick.Stop()
	frame := time.NewTicker(interval(m.cfg.Strip.FrameIntervalMS, defaultFrameInterval))
	defer frame.Stop()

	m.OnTick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			m.OnTick(ctx)
		case now := <-frame.C:
			if err := m.RenderFrame(now); err != nil {
				log.Error().Err(err).Msg("Failed to render frame")
			}
		}
	}
}

// Snapshot returns a copy of the current state. Safe for concurrent use.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.snap
	if s.Report != nil {
		r := *s.Report
		s.Report = &r
	}
	return s
}

func (m *Monitor) consume(lines []string) {
	for _, line := range lines {
		if !fluidnc.IsStatusLine(line) {
			log.Debug().Str("line", line).Msg("Ignoring line")
		}
	}

	var candidates []string
	if m.cfg.DispatchAllTransitions {
		candidates = fluidnc.StatusLines(lines)
	} else if line, ok := fluidnc.LatestStatusLine(lines); ok {
		candidates = []string{line}
	}

	for _, line := range candidates {
		report, err := fluidnc.ParseStatus(line)
		if err != nil {
			log.Debug().Err(err).Str("line", line).Msg("Discarding status line")
			continue
		}
		m.accept(report)
	}
}

func (m *Monitor) accept(report types.StatusReport) {
	prev := m.dispatcher.Previous()
	m.report = report
	m.haveReport = true

	id, fired := m.dispatcher.OnReport(report)
	if !fired {
		return
	}
	m.emit(Event{
		Kind:       EventState,
		Previous:   prev,
		Report:     report,
		Preset:     id,
		Connection: m.conn,
	})
}

func (m *Monitor) checkConnection(state types.ConnectionState) {
	if state == m.conn {
		return
	}
	m.conn = state
	// a partial line never survives a reconnect
	m.lines.Reset()
	m.setLight(state == types.Connected)
	m.emit(Event{
		Kind:       EventConnection,
		Report:     m.report,
		Connection: state,
	})
}

func (m *Monitor) setLight(on bool) {
	if m.light == nil {
		return
	}
	if err := m.light.Set(on); err != nil {
		log.Warn().Err(err).Msg("Failed to set status light")
	}
}

func (m *Monitor) emit(ev Event) {
	ev.Time = m.now()
	for _, fn := range m.observers {
		fn(ev)
	}
}

func (m *Monitor) publish() {
	s := Snapshot{
		Enabled:    m.cfg.Enabled,
		Connection: m.conn,
		Peer:       m.link.Peer(),
		Attempts:   m.link.Attempts(),
		Preset:     m.dispatcher.Current(),
		Indicator:  m.index,
		LEDCount:   m.ledCount,
		UpdatedAt:  m.now(),
	}
	if m.haveReport {
		r := m.report
		s.Report = &r
	}

	m.mu.Lock()
	m.snap = s
	m.mu.Unlock()
}

func interval(ms int, def time.Duration) time.Duration {
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
