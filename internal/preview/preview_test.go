package preview

import (
	"bytes"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fkcurrie/fluidnc-position-led/internal/types"
)

func TestSVG(t *testing.T) {
	frame := []types.RGBW{{R: 0xff}, types.Black, {G: 0x10, W: 0x20}}
	svg := string(SVG(frame, 10))

	assert.True(t, strings.HasPrefix(svg, "<svg"))
	assert.Contains(t, svg, `viewBox="0 0 30 10"`)
	assert.Equal(t, 3, strings.Count(svg, "<circle"))
	assert.Contains(t, svg, `fill="#ff0000"`)
	assert.Contains(t, svg, `fill="#000000"`)
	assert.Contains(t, svg, `fill="#203020"`)

	// zero pitch falls back to the default
	assert.Contains(t, string(SVG(frame, 0)), `viewBox="0 0 36 12"`)
}

func TestRender(t *testing.T) {
	frame := []types.RGBW{{R: 0xff}, types.Black, types.White}

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, frame, 10))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 30, img.Bounds().Dx())
	assert.Equal(t, 10, img.Bounds().Dy())

	r, g, b, _ := img.At(5, 5).RGBA()
	assert.Greater(t, r>>8, uint32(200))
	assert.Less(t, g>>8, uint32(40))
	assert.Less(t, b>>8, uint32(40))

	r, g, b, _ = img.At(25, 5).RGBA()
	assert.Greater(t, r>>8, uint32(200))
	assert.Greater(t, g>>8, uint32(200))
	assert.Greater(t, b>>8, uint32(200))

	// between LEDs only the background shows
	r, _, _, _ = img.At(10, 0).RGBA()
	assert.Less(t, r>>8, uint32(40))
}

func TestRender_Empty(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Render(&buf, nil, 10))
}
