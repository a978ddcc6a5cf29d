package sim

import (
	"errors"
	"fmt"
)

// Command names a user control action.
type Command string

const (
	CommandPause  Command = "pause"
	CommandTrails Command = "trails"
	CommandReset  Command = "reset"
	CommandSpeed  Command = "speed"
)

// ErrUnknownCommand is returned by Apply for a command it does not know.
var ErrUnknownCommand = errors.New("unknown command")

// Apply performs cmd and returns the resulting clock. direction is only used
// by CommandSpeed: positive doubles the speed, anything else halves it.
func (r *Runner) Apply(cmd Command, direction int) (Clock, error) {
	switch cmd {
	case CommandPause:
		r.TogglePause()
	case CommandTrails:
		r.ToggleTrails()
	case CommandReset:
		r.Reset()
	case CommandSpeed:
		r.ChangeSpeed(direction)
	default:
		return r.Clock(), fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}
	return r.Clock(), nil
}
