package gpio

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLine struct {
	values []int
	closed bool
	err    error
}

func (l *fakeLine) SetValue(v int) error {
	if l.err != nil {
		return l.err
	}
	l.values = append(l.values, v)
	return nil
}

func (l *fakeLine) Close() error {
	l.closed = true
	return nil
}

func TestPin(t *testing.T) {
	line := &fakeLine{}
	p := NewPinFromLine(line, "gpiochip0", 5)

	require.NoError(t, p.Set(true))
	assert.Equal(t, 1, p.Value())
	require.NoError(t, p.SetValue(7))
	require.NoError(t, p.Set(false))
	assert.Equal(t, 0, p.Value())
	require.NoError(t, p.Pulse(time.Millisecond))

	assert.Equal(t, []int{1, 1, 0, 1, 0}, line.values)

	require.NoError(t, p.Close())
	assert.True(t, line.closed)
}

func TestPin_Error(t *testing.T) {
	line := &fakeLine{err: errors.New("line busy")}
	p := NewPinFromLine(line, "gpiochip0", 5)

	assert.Error(t, p.Set(true))
	assert.Equal(t, 0, p.Value())
	assert.Error(t, p.Pulse(time.Millisecond))
}

func TestNewPin_NoChip(t *testing.T) {
	_, err := NewPin("gpiochip-missing", 5)
	assert.Error(t, err)
}
