package fluidnc

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/tarm/serial"

	"github.com/fkcurrie/fluidnc-position-led/internal/config"
)

// TCPDialer connects to the controller's telnet port
type TCPDialer struct {
	Addr    string
	Timeout time.Duration
}

// Dial opens a TCP connection. Apart from ctx, only the transport's own connect
// timeout bounds it.
func (d TCPDialer) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	nd := net.Dialer{Timeout: d.Timeout}
	conn, err := nd.DialContext(ctx, "tcp", d.Addr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (d TCPDialer) String() string { return "telnet://" + d.Addr }

// SerialDialer opens the controller's USB serial port
type SerialDialer struct {
	Device string
	Baud   int
}

// Dial opens the serial device. Opening a local device does not block, so ctx
// is not consulted.
func (d SerialDialer) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	port, err := serial.OpenPort(&serial.Config{Name: d.Device, Baud: d.Baud})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.Device, err)
	}
	return port, nil
}

func (d SerialDialer) String() string {
	return fmt.Sprintf("serial://%s@%d", d.Device, d.Baud)
}

// NewDialer builds the dialer selected by the configuration
func NewDialer(cfg config.FluidNCConfig) (Dialer, error) {
	timeout := time.Duration(cfg.DialTimeoutMS) * time.Millisecond
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	switch cfg.Transport {
	case "", "telnet":
		return TCPDialer{Addr: addr, Timeout: timeout}, nil
	case "websocket":
		return WSDialer{Addr: addr, Timeout: timeout}, nil
	case "serial":
		return SerialDialer{Device: cfg.Device, Baud: cfg.Baud}, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// NewManagerFromConfig builds a Manager with the dialer and timings from cfg
func NewManagerFromConfig(cfg config.FluidNCConfig, opts ...Option) (*Manager, error) {
	d, err := NewDialer(cfg)
	if err != nil {
		return nil, err
	}
	base := []Option{
		WithBackoff(time.Duration(cfg.ReconnectBackoffMS) * time.Millisecond),
		WithReportInterval(time.Duration(cfg.ReportIntervalMS) * time.Millisecond),
		WithIdleTimeout(time.Duration(cfg.IdleTimeoutMS) * time.Millisecond),
	}
	return NewManager(d, append(base, opts...)...), nil
}
