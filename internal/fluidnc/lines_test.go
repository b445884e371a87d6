package fluidnc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineReader_Feed(t *testing.T) {
	var r LineReader

	lines := r.Feed([]byte("ok\r\n<Idle|MPos:1.000,0,0|FS:0,0>\n<Run|MPos"))
	assert.Equal(t, []string{"ok", "<Idle|MPos:1.000,0,0|FS:0,0>"}, lines)
	assert.Equal(t, len("<Run|MPos"), r.Pending())

	lines = r.Feed([]byte(":2.000,0,0|FS:0,0>\n"))
	assert.Equal(t, []string{"<Run|MPos:2.000,0,0|FS:0,0>"}, lines)
	assert.Zero(t, r.Pending())

	assert.Nil(t, r.Feed(nil))
}

func TestLineReader_EmptyLines(t *testing.T) {
	var r LineReader
	assert.Equal(t, []string{"", "a", ""}, r.Feed([]byte("\na\n\r\n")))
}

func TestLineReader_Overflow(t *testing.T) {
	var r LineReader

	assert.Nil(t, r.Feed([]byte(strings.Repeat("x", maxPartial+1))))
	assert.Zero(t, r.Pending())

	// the remainder of the over-long line is dropped as well
	lines := r.Feed([]byte("yyy\n<Jog|MPos:1.0,0,0|FS:0,0>\n"))
	assert.Equal(t, []string{"<Jog|MPos:1.0,0,0|FS:0,0>"}, lines)
}

func TestLineReader_Reset(t *testing.T) {
	var r LineReader
	r.Feed([]byte("<Idle|MP"))
	r.Reset()
	assert.Equal(t, []string{"os:1"}, r.Feed([]byte("os:1\n")))
}

func TestLatestStatusLine(t *testing.T) {
	lines := []string{
		"<Idle|MPos:1.000,0,0|FS:0,0>",
		"[MSG:INFO: something]",
		"<Run|MPos:2.000,0,0|FS:0,0>",
		"ok",
	}

	line, ok := LatestStatusLine(lines)
	assert.True(t, ok)
	assert.Equal(t, "<Run|MPos:2.000,0,0|FS:0,0>", line)

	_, ok = LatestStatusLine([]string{"ok", "[MSG:x]"})
	assert.False(t, ok)

	_, ok = LatestStatusLine(nil)
	assert.False(t, ok)
}

func TestStatusLines(t *testing.T) {
	lines := []string{"<a", "ok", "<b", "error:9"}
	assert.Equal(t, []string{"<a", "<b"}, StatusLines(lines))
	assert.Nil(t, StatusLines([]string{"ok"}))
}
