package ledstrip

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fkcurrie/fluidnc-position-led/internal/types"
)

type fakeDevice struct {
	frames [][]types.RGBW
	closed bool
	err    error
}

func (d *fakeDevice) Render(frame []types.RGBW) error {
	d.frames = append(d.frames, append([]types.RGBW(nil), frame...))
	return d.err
}

func (d *fakeDevice) Close() error {
	d.closed = true
	return nil
}

func TestNewBuffer(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		wantErr bool
	}{
		{"valid", 60, false},
		{"zero", 0, true},
		{"negative", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBuffer(tt.n)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.n, b.Len())
		})
	}
}

func TestBufferOperations(t *testing.T) {
	b, err := NewBuffer(8)
	require.NoError(t, err)
	defer b.Close()

	red := types.RGBW{R: 255}
	require.NoError(t, b.SetPixel(0, red))
	assert.Equal(t, red, b.Pixel(0))

	// out of bounds
	assert.ErrorIs(t, b.SetPixel(-1, red), ErrOutOfRange)
	assert.ErrorIs(t, b.SetPixel(8, red), ErrOutOfRange)
	assert.Equal(t, types.Black, b.Pixel(8))

	// nothing is visible before Show
	assert.Equal(t, types.Black, b.Frame()[0])
	require.NoError(t, b.Show())
	assert.Equal(t, red, b.Frame()[0])
	assert.Equal(t, 1, b.Shows())

	b.Fill(types.White)
	for i := 0; i < b.Len(); i++ {
		assert.Equal(t, types.White, b.Pixel(i))
	}
	b.Clear()
	assert.Equal(t, types.Black, b.Pixel(3))
	// the shown frame is a copy
	assert.Equal(t, red, b.Frame()[0])
}

func TestBufferConcurrency(t *testing.T) {
	b, err := NewBuffer(32)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.NoError(t, b.SetPixel((i+j)%32, types.RGBW{R: uint8(i), G: uint8(j)}))
				b.Frame()
			}
		}(i)
	}
	wg.Wait()
}

func TestOpen(t *testing.T) {
	dev := &fakeDevice{}
	Register("fake", func(cfg Config) (Device, error) { return dev, nil })
	assert.Contains(t, Backends(), "fake")
	assert.Contains(t, Backends(), "memory")

	b, err := Open(Config{Backend: "fake", LEDCount: 4})
	require.NoError(t, err)
	require.NoError(t, b.SetPixel(2, types.White))
	require.NoError(t, b.Show())
	require.Len(t, dev.frames, 1)
	assert.Equal(t, []types.RGBW{{}, {}, types.White, {}}, dev.frames[0])

	dev.err = errors.New("spi busy")
	assert.Error(t, b.Show())

	require.NoError(t, b.Close())
	assert.True(t, dev.closed)
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(Config{Backend: "nope", LEDCount: 4})
	assert.ErrorIs(t, err, ErrUnknownBackend)

	_, err = Open(Config{Backend: "memory", LEDCount: 0})
	assert.Error(t, err)

	Register("broken", func(cfg Config) (Device, error) { return nil, errors.New("no /dev/mem") })
	_, err = Open(Config{Backend: "broken", LEDCount: 4})
	assert.Error(t, err)
}
