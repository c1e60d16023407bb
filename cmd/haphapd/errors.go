package main

import (
	"errors"
	"fmt"
)

// Session error taxonomy. Callers match with errors.Is; everything returned from
// the session wraps exactly one of these.
var (
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrEngineUnavailable = errors.New("engine unavailable")
	ErrNotSupported      = errors.New("haptics not supported")
	ErrBadArguments      = errors.New("bad arguments")
)

// Wire codes used by the IPC boundary.
const (
	codeInvalidParameter  = "invalid_parameter"
	codeEngineUnavailable = "engine_unavailable"
	codeNotSupported      = "not_supported"
	codeBadArguments      = "bad_arguments"
	codeTimeout           = "timeout"
	codeQueueFull         = "queue_full"
	codeInternal          = "internal"
)

// errorCode maps an error to its stable wire code.
func errorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidParameter):
		return codeInvalidParameter
	case errors.Is(err, ErrEngineUnavailable):
		return codeEngineUnavailable
	case errors.Is(err, ErrNotSupported):
		return codeNotSupported
	case errors.Is(err, ErrBadArguments):
		return codeBadArguments
	default:
		return codeInternal
	}
}

func invalidParameter(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameter, fmt.Sprintf(format, args...))
}

func badArguments(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadArguments, fmt.Sprintf(format, args...))
}

// errUnknownCommand is reported when the executor is handed a command it does not know.
type errUnknownCommand struct {
	cmd Command
}

func (e errUnknownCommand) Error() string { return "unknown command: " + e.cmd.String() }

// errNoEngine indicates an engine operation was requested before the engine existed.
type errNoEngine struct{}

func (errNoEngine) Error() string { return "no haptic engine" }

func (errNoEngine) Is(target error) bool { return target == ErrEngineUnavailable }
