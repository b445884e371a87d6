// Package ledstrip provides the pixel buffer for a one-dimensional LED strip and
// the hardware backends that display it.
package ledstrip

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/fkcurrie/fluidnc-position-led/internal/types"
)

var (
	// ErrOutOfRange is returned for pixel indices outside the strip
	ErrOutOfRange = errors.New("pixel index out of range")
	// ErrUnknownBackend is returned by Open for unregistered backends
	ErrUnknownBackend = errors.New("unknown strip backend")
)

// Config holds the configuration for a strip
type Config struct {
	Backend    string
	LEDCount   int
	GPIOPin    int
	Brightness int
	StripType  string
}

// Device pushes a finished frame to hardware
type Device interface {
	Render(frame []types.RGBW) error
	Close() error
}

// OpenFunc opens the hardware for a backend
type OpenFunc func(cfg Config) (Device, error)

var (
	backendsMu sync.Mutex
	backends   = map[string]OpenFunc{
		"memory": func(Config) (Device, error) { return nil, nil },
	}
)

// Register makes a backend available to Open
func Register(name string, open OpenFunc) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = open
}

// Backends returns the registered backend names
func Backends() []string {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open creates a strip buffer for the configured backend
func Open(cfg Config) (*Buffer, error) {
	backendsMu.Lock()
	open, ok := backends[cfg.Backend]
	backendsMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownBackend, cfg.Backend, Backends())
	}

	b, err := NewBuffer(cfg.LEDCount)
	if err != nil {
		return nil, err
	}
	dev, err := open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s strip: %w", cfg.Backend, err)
	}
	b.dev = dev
	return b, nil
}

// Buffer is a strip pixel buffer. Pixels are composed with SetPixel/Fill and
// become visible with Show, which also keeps a copy of the shown frame.
type Buffer struct {
	mu     sync.RWMutex
	pixels []types.RGBW
	frame  []types.RGBW
	shows  int
	dev    Device
}

var _ types.Strip = (*Buffer)(nil)

// NewBuffer creates an in-memory strip of n pixels
func NewBuffer(n int) (*Buffer, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid led count: %d", n)
	}
	return &Buffer{
		pixels: make([]types.RGBW, n),
		frame:  make([]types.RGBW, n),
	}, nil
}

// Len returns the number of pixels
func (b *Buffer) Len() int { return len(b.pixels) }

// SetPixel sets pixel i
func (b *Buffer) SetPixel(i int, c types.RGBW) error {
	if i < 0 || i >= len(b.pixels) {
		return fmt.Errorf("%w: %d", ErrOutOfRange, i)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.pixels[i] = c
	return nil
}

// Pixel returns the buffered color of pixel i, black when out of range
func (b *Buffer) Pixel(i int) types.RGBW {
	if i < 0 || i >= len(b.pixels) {
		return types.Black
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pixels[i]
}

// Fill sets every pixel to c
func (b *Buffer) Fill(c types.RGBW) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.pixels {
		b.pixels[i] = c
	}
}

// Clear sets every pixel to black
func (b *Buffer) Clear() { b.Fill(types.Black) }

// Show publishes the buffer as the current frame and renders it
func (b *Buffer) Show() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	copy(b.frame, b.pixels)
	b.shows++

	if b.dev == nil {
		return nil
	}
	return b.dev.Render(b.frame)
}

// Frame returns a copy of the last shown frame
func (b *Buffer) Frame() []types.RGBW {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]types.RGBW, len(b.frame))
	copy(out, b.frame)
	return out
}

// Shows returns how many frames have been shown
func (b *Buffer) Shows() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.shows
}

// Close releases the hardware, if any
func (b *Buffer) Close() error {
	if b.dev == nil {
		return nil
	}
	return b.dev.Close()
}
