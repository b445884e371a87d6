package types

import "strings"

// OperatingState represents the discrete state reported by the controller
type OperatingState int

const (
	// Possible machine states
	StateUnknown OperatingState = iota
	StateIdle
	StateHome
	StateAlarm
	StateHold
	StateRun
	StateJog
	StateOtherActive
)

var stateNames = [...]string{
	StateUnknown:     "Unknown",
	StateIdle:        "Idle",
	StateHome:        "Home",
	StateAlarm:       "Alarm",
	StateHold:        "Hold",
	StateRun:         "Run",
	StateJog:         "Jog",
	StateOtherActive: "OtherActive",
}

// String returns the canonical name of the state
func (s OperatingState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// MarshalText lets the state appear by name in JSON documents
func (s OperatingState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Moving reports whether the machine is in one of the states that show the
// position indicator.
func (s OperatingState) Moving() bool {
	return s == StateRun || s == StateJog
}

// ParseOperatingState maps a raw status token to an OperatingState.
// "Hold:0", "Hold:1" and any other Hold variant collapse to StateHold.
func ParseOperatingState(token string) OperatingState {
	switch {
	case token == "Idle":
		return StateIdle
	case token == "Home":
		return StateHome
	case token == "Alarm":
		return StateAlarm
	case strings.HasPrefix(token, "Hold"):
		return StateHold
	case token == "Run":
		return StateRun
	case token == "Jog":
		return StateJog
	default:
		return StateOtherActive
	}
}

// StatusReport represents one parsed status line
type StatusReport struct {
	State     OperatingState `json:"state"`
	StateText string         `json:"state_text"`
	MachineX  int            `json:"machine_x"`
}

// ConnectionState represents the state of the controller link
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

// String returns the name of the connection state
func (c ConnectionState) String() string {
	switch c {
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	default:
		return "Disconnected"
	}
}

// MarshalText lets the connection state appear by name in JSON documents
func (c ConnectionState) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// PresetApplier applies a display preset. It is fire-and-forget: implementations
// handle their own failures.
type PresetApplier interface {
	ApplyPreset(id int)
}

// PresetApplierFunc adapts a function to PresetApplier
type PresetApplierFunc func(id int)

// ApplyPreset calls f(id)
func (f PresetApplierFunc) ApplyPreset(id int) { f(id) }
