// Package preset selects a display preset for each controller state.
package preset

import (
	"github.com/rs/zerolog/log"

	"github.com/fkcurrie/fluidnc-position-led/internal/types"
)

// Preset ids, one per state group
const (
	Idle  = 1
	Home  = 2
	Alarm = 3
	Hold  = 4
	Run   = 5
	Jog   = 6
	Other = 7
)

// For returns the preset id for a state. Unknown and OtherActive share Other.
func For(state types.OperatingState) int {
	switch state {
	case types.StateIdle:
		return Idle
	case types.StateHome:
		return Home
	case types.StateAlarm:
		return Alarm
	case types.StateHold:
		return Hold
	case types.StateRun:
		return Run
	case types.StateJog:
		return Jog
	default:
		return Other
	}
}

// Dispatcher applies a preset whenever the reported state changes. Repeated
// reports of the same state do nothing.
type Dispatcher struct {
	applier types.PresetApplier
	prev    types.OperatingState
	current int
}

// NewDispatcher creates a dispatcher that starts in StateUnknown
func NewDispatcher(applier types.PresetApplier) *Dispatcher {
	return &Dispatcher{applier: applier}
}

// OnReport applies the preset for report.State if it differs from the previous
// state, returning the preset id and whether it fired.
func (d *Dispatcher) OnReport(report types.StatusReport) (int, bool) {
	if report.State == d.prev {
		return 0, false
	}

	id := For(report.State)
	log.Info().
		Str("from", d.prev.String()).
		Str("to", report.State.String()).
		Str("raw", report.StateText).
		Int("preset", id).
		Msg("Status changed")

	d.prev = report.State
	d.current = id
	if d.applier != nil {
		d.applier.ApplyPreset(id)
	}
	return id, true
}

// Previous returns the state of the last dispatched report
func (d *Dispatcher) Previous() types.OperatingState { return d.prev }

// Current returns the last applied preset id, or 0 before the first transition
func (d *Dispatcher) Current() int { return d.current }

// Multi fans a preset out to several appliers in order
type Multi []types.PresetApplier

// ApplyPreset applies id on every applier
func (m Multi) ApplyPreset(id int) {
	for _, a := range m {
		a.ApplyPreset(id)
	}
}
