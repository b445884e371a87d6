package gpio

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/warthog618/go-gpiocdev"
)

// Consumer is the label the line is requested under
const Consumer = "fluidnc-led"

// Line is the part of *gpiocdev.Line driven by Pin
type Line interface {
	SetValue(value int) error
	Close() error
}

// Pin represents a GPIO output line on a character device
type Pin struct {
	chip   string
	offset int
	line   Line
	value  int
	mu     sync.Mutex
}

// NewPin requests line offset on chip as an output, initially low
func NewPin(chip string, offset int) (*Pin, error) {
	log.Debug().Str("chip", chip).Int("line", offset).Msg("Requesting GPIO line")

	line, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer(Consumer))
	if err != nil {
		return nil, fmt.Errorf("failed to request %s line %d: %w", chip, offset, err)
	}
	return NewPinFromLine(line, chip, offset), nil
}

// NewPinFromLine wraps an already requested line
func NewPinFromLine(line Line, chip string, offset int) *Pin {
	return &Pin{chip: chip, offset: offset, line: line}
}

// Close releases the line
func (p *Pin) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	log.Debug().Str("chip", p.chip).Int("line", p.offset).Msg("Releasing GPIO line")
	return p.line.Close()
}

// SetValue sets the value of the line (0 or 1)
func (p *Pin) SetValue(value int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.set(value)
}

// Set drives the line high when on is true
func (p *Pin) Set(on bool) error {
	if on {
		return p.SetValue(1)
	}
	return p.SetValue(0)
}

// Value returns the last value written
func (p *Pin) Value() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

// Pulse drives the line high for duration, then low
func (p *Pin) Pulse(duration time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.set(1); err != nil {
		return err
	}
	time.Sleep(duration)
	return p.set(0)
}

func (p *Pin) set(value int) error {
	if value != 0 {
		value = 1
	}
	if err := p.line.SetValue(value); err != nil {
		return fmt.Errorf("failed to set %s line %d: %w", p.chip, p.offset, err)
	}
	p.value = value
	return nil
}
