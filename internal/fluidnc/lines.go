package fluidnc

import (
	"bytes"
	"strings"
)

// maxPartial bounds the incomplete tail kept between feeds. FluidNC status
// reports are well below this; anything longer is garbage.
const maxPartial = 1024

// LineReader splits a byte stream into newline terminated lines. An incomplete
// trailing line is kept and completed by the next Feed.
type LineReader struct {
	partial  []byte
	overflow bool // dropping the rest of an over-long line
}

// Feed appends data to the stream and returns every line it completes, with
// the line terminator (and a preceding '\r') removed.
func (r *LineReader) Feed(data []byte) []string {
	var lines []string
	for len(data) > 0 {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			r.partial = append(r.partial, data...)
			if len(r.partial) > maxPartial {
				r.partial = r.partial[:0]
				r.overflow = true
			}
			break
		}
		line := data[:i]
		data = data[i+1:]
		if r.overflow {
			r.overflow = false
			r.partial = r.partial[:0]
			continue
		}
		if len(r.partial) > 0 {
			line = append(r.partial, line...)
			r.partial = r.partial[:0]
		}
		lines = append(lines, strings.TrimSuffix(string(line), "\r"))
	}
	return lines
}

// Pending returns the number of buffered bytes of the incomplete line
func (r *LineReader) Pending() int { return len(r.partial) }

// Reset discards the incomplete line. Used when the link is re-established.
func (r *LineReader) Reset() {
	r.partial = r.partial[:0]
	r.overflow = false
}

// IsStatusLine reports whether line is a status report candidate
func IsStatusLine(line string) bool {
	return strings.HasPrefix(line, "<")
}

// LatestStatusLine returns the last status line among lines. Earlier status
// lines are superseded by it: only the freshest state matters for display.
func LatestStatusLine(lines []string) (string, bool) {
	for i := len(lines) - 1; i >= 0; i-- {
		if IsStatusLine(lines[i]) {
			return lines[i], true
		}
	}
	return "", false
}

// StatusLines returns every status line among lines, in order
func StatusLines(lines []string) []string {
	var out []string
	for _, l := range lines {
		if IsStatusLine(l) {
			out = append(out, l)
		}
	}
	return out
}
