package fluidnc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fkcurrie/fluidnc-position-led/internal/types"
)

const (
	// DefaultReportInterval is the status report period requested on connect
	DefaultReportInterval = 200 * time.Millisecond
	// DefaultBackoff is the fixed delay between connection attempts
	DefaultBackoff = 500 * time.Millisecond

	readBufferSize = 1024
	rxQueueSize    = 64
)

// ErrNotConnected is returned when writing without an established link
var ErrNotConnected = errors.New("not connected")

// Dialer opens a single link to the controller. Retrying is the Manager's job.
type Dialer interface {
	Dial(ctx context.Context) (io.ReadWriteCloser, error)
	String() string
}

// deadliner is implemented by links that support read timeouts
type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// Handshake returns the command that asks the controller for periodic status reports
func Handshake(interval time.Duration) string {
	return fmt.Sprintf("$Report/Interval=%d\n", interval.Milliseconds())
}

// Option configures a Manager
type Option func(*Manager)

// WithBackoff sets the delay between connection attempts
func WithBackoff(d time.Duration) Option {
	return func(m *Manager) { m.backoff = d }
}

// WithReportInterval sets the interval requested in the handshake
func WithReportInterval(d time.Duration) Option {
	return func(m *Manager) { m.handshake = Handshake(d) }
}

// WithIdleTimeout drops the link when nothing is received for d. Zero disables it.
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Manager) { m.idleTimeout = d }
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithStateHook registers a function called on every connection state change
func WithStateHook(fn func(types.ConnectionState)) Option {
	return func(m *Manager) { m.onChange = fn }
}

type dialResult struct {
	link io.ReadWriteCloser
	err  error
}

// Manager establishes and maintains the controller link.
//
// Connect is the blocking form. Poll, Drain and Kick form a non-blocking state
// machine meant to be driven from a periodic tick. All methods must be called
// from a single goroutine; the dial and read goroutines only talk to it through
// channels.
type Manager struct {
	dialer      Dialer
	backoff     time.Duration
	handshake   string
	idleTimeout time.Duration
	now         func() time.Time
	onChange    func(types.ConnectionState)

	state    types.ConnectionState
	attempts int
	next     time.Time

	dialCh     chan dialResult
	dialCancel context.CancelFunc

	link  io.ReadWriteCloser
	rx    chan []byte
	rxErr chan error
	done  chan struct{}
}

// NewManager creates a connection manager for the given dialer
func NewManager(d Dialer, opts ...Option) *Manager {
	m := &Manager{
		dialer:    d,
		backoff:   DefaultBackoff,
		handshake: Handshake(DefaultReportInterval),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current connection state
func (m *Manager) State() types.ConnectionState { return m.state }

// Attempts returns the number of connection attempts made so far
func (m *Manager) Attempts() int { return m.attempts }

// Peer describes the controller endpoint
func (m *Manager) Peer() string { return m.dialer.String() }

// Connect blocks until a link is established and the handshake is sent,
// retrying with a fixed backoff. It only gives up when ctx is done.
func (m *Manager) Connect(ctx context.Context) error {
	if m.state != types.Disconnected {
		m.Close()
	}
	for {
		m.attempts++
		log.Info().Str("peer", m.Peer()).Int("attempt", m.attempts).Msg("Connecting to FluidNC")

		link, err := m.dialer.Dial(ctx)
		if err == nil {
			if err = m.sendHandshake(link); err == nil {
				m.attach(link)
				return nil
			}
			link.Close()
		}
		log.Warn().Err(err).Str("peer", m.Peer()).Msg("Not connected")

		t := time.NewTimer(m.backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Kick makes the next Poll attempt a connection immediately instead of waiting
// for the retry timer. Called when the network comes (back) up.
func (m *Manager) Kick() {
	m.next = time.Time{}
}

// Poll advances the connection state machine without blocking
func (m *Manager) Poll(ctx context.Context) types.ConnectionState {
	switch m.state {
	case types.Disconnected:
		if !m.now().Before(m.next) {
			m.startDial(ctx)
		}
	case types.Connecting:
		select {
		case res := <-m.dialCh:
			m.finishDial(res)
		default:
		}
	}
	return m.state
}

// Drain returns the bytes received since the last call without blocking. A read
// error or EOF drops the link and schedules a reconnect.
func (m *Manager) Drain() []byte {
	if m.state != types.Connected {
		return nil
	}
	out := m.drainRx(nil)
	select {
	case err := <-m.rxErr:
		// the reader queues every chunk before reporting, so collect the rest
		out = m.drainRx(out)
		m.drop(err)
	default:
	}
	return out
}

// Write sends raw bytes to the controller
func (m *Manager) Write(p []byte) (int, error) {
	if m.state != types.Connected {
		return 0, ErrNotConnected
	}
	return m.link.Write(p)
}

// Close drops the link or abandons a pending dial
func (m *Manager) Close() error {
	switch m.state {
	case types.Connecting:
		m.dialCancel()
		go func(ch chan dialResult) {
			if res := <-ch; res.link != nil {
				res.link.Close()
			}
		}(m.dialCh)
		m.dialCh = nil
		m.setState(types.Disconnected)
	case types.Connected:
		m.detach()
		m.setState(types.Disconnected)
	}
	return nil
}

func (m *Manager) startDial(ctx context.Context) {
	m.attempts++
	log.Info().Str("peer", m.Peer()).Int("attempt", m.attempts).Msg("Connecting to FluidNC")

	ch := make(chan dialResult, 1)
	dctx, cancel := context.WithCancel(ctx)
	go func() {
		link, err := m.dialer.Dial(dctx)
		ch <- dialResult{link: link, err: err}
	}()
	m.dialCh = ch
	m.dialCancel = cancel
	m.setState(types.Connecting)
}

func (m *Manager) finishDial(res dialResult) {
	m.dialCancel()
	m.dialCh = nil

	err := res.err
	if err == nil {
		if err = m.sendHandshake(res.link); err != nil {
			res.link.Close()
		}
	}
	if err != nil {
		log.Warn().Err(err).Str("peer", m.Peer()).Msg("Not connected")
		m.next = m.now().Add(m.backoff)
		m.setState(types.Disconnected)
		return
	}
	m.attach(res.link)
}

func (m *Manager) sendHandshake(link io.Writer) error {
	if _, err := io.WriteString(link, m.handshake); err != nil {
		return fmt.Errorf("send handshake: %w", err)
	}
	return nil
}

func (m *Manager) attach(link io.ReadWriteCloser) {
	m.link = link
	m.rx = make(chan []byte, rxQueueSize)
	m.rxErr = make(chan error, 1)
	m.done = make(chan struct{})
	go readLoop(link, m.idleTimeout, m.rx, m.rxErr, m.done)

	log.Info().Str("peer", m.Peer()).Msg("Connected to FluidNC")
	m.setState(types.Connected)
}

func (m *Manager) detach() {
	close(m.done)
	m.link.Close()
	m.link = nil
}

func (m *Manager) drop(err error) {
	if errors.Is(err, io.EOF) {
		log.Warn().Str("peer", m.Peer()).Msg("FluidNC closed the connection")
	} else {
		log.Warn().Err(err).Str("peer", m.Peer()).Msg("Connection to FluidNC lost")
	}
	m.detach()
	m.next = m.now().Add(m.backoff)
	m.setState(types.Disconnected)
}

func (m *Manager) drainRx(out []byte) []byte {
	for {
		select {
		case chunk := <-m.rx:
			out = append(out, chunk...)
		default:
			return out
		}
	}
}

func (m *Manager) setState(s types.ConnectionState) {
	if s == m.state {
		return
	}
	m.state = s
	if m.onChange != nil {
		m.onChange(s)
	}
}

// readLoop copies everything read from link into rx until an error occurs,
// which is then reported once on errc.
func readLoop(link io.Reader, idle time.Duration, rx chan<- []byte, errc chan<- error, done <-chan struct{}) {
	dl, _ := link.(deadliner)
	buf := make([]byte, readBufferSize)
	for {
		if dl != nil && idle > 0 {
			dl.SetReadDeadline(time.Now().Add(idle))
		}
		n, err := link.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case rx <- chunk:
			case <-done:
				return
			}
		}
		if err != nil {
			errc <- err
			return
		}
	}
}
