package fluidnc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fkcurrie/fluidnc-position-led/internal/types"
)

// ErrMalformedLine is returned for status lines that do not follow the
// <STATE|MPos:x,y,z|...> layout.
var ErrMalformedLine = errors.New("malformed status line")

const mposPrefix = "MPos:"

// ParseStatus parses a status report line from FluidNC.
//
// Example: <Idle|MPos:12.500,0.000,0.000|FS:0,0>
//
// Only the state and the integer part of machine X are extracted; every other
// field is ignored.
func ParseStatus(line string) (types.StatusReport, error) {
	var report types.StatusReport

	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "<") {
		return report, fmt.Errorf("%w: missing '<'", ErrMalformedLine)
	}
	body := strings.TrimSuffix(line[1:], ">")

	stateEnd := strings.IndexByte(body, '|')
	if stateEnd < 0 {
		return report, fmt.Errorf("%w: no field delimiter", ErrMalformedLine)
	}
	state := body[:stateEnd]
	if state == "" {
		return report, fmt.Errorf("%w: empty state", ErrMalformedLine)
	}

	// the position field ends at the next delimiter, or at the end of the
	// report when it is the last field
	pos := body[stateEnd+1:]
	if i := strings.IndexByte(pos, '|'); i >= 0 {
		pos = pos[:i]
	} else if !strings.HasSuffix(line, ">") {
		return report, fmt.Errorf("%w: unterminated position field", ErrMalformedLine)
	}
	if !strings.HasPrefix(pos, mposPrefix) {
		return report, fmt.Errorf("%w: expected %s, got %q", ErrMalformedLine, mposPrefix, pos)
	}

	x, err := parseIntegerPart(pos[len(mposPrefix):])
	if err != nil {
		return report, fmt.Errorf("%w: %v", ErrMalformedLine, err)
	}

	report.State = types.ParseOperatingState(state)
	report.StateText = state
	report.MachineX = x
	return report, nil
}

// parseIntegerPart returns the integer part of the first coordinate in a
// comma separated list. Sub-millimeter precision is dropped (truncated toward
// zero), which is all a pixel-resolution display needs.
func parseIntegerPart(coords string) (int, error) {
	x := coords
	if i := strings.IndexByte(x, ','); i >= 0 {
		x = x[:i]
	}
	if i := strings.IndexByte(x, '.'); i >= 0 {
		x = x[:i]
	}
	switch x {
	case "-", "+":
		// "-0.500" truncates to "-"
		return 0, nil
	}
	n, err := strconv.Atoi(x)
	if err != nil {
		return 0, fmt.Errorf("bad X coordinate %q", coords)
	}
	return n, nil
}
