package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for haphap-ctl.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // daemon answered with an error
	ExitCommandError = 2 // bad flags, unreachable socket, unreadable reply
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates an ExitError without an underlying cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps err with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from err, ExitCommandError otherwise.
// Plain errors come from cobra itself (unknown command, bad flag value).
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// printResponse renders resp in the selected format.
func printResponse(w io.Writer, format string, resp Response) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	switch {
	case resp.Failed():
		fmt.Fprintf(w, "error [%s]: %s\n", resp.Code, resp.Error)
	case resp.State != nil:
		printState(w, *resp.State)
	case resp.Capabilities != nil:
		printCapabilities(w, *resp.Capabilities)
	default:
		fmt.Fprintln(w, resp.Status)
	}
	return nil
}

func printCapabilities(w io.Writer, c Capabilities) {
	fmt.Fprintf(w, "haptics:           %s\n", yesNo(c.SupportsHaptics))
	fmt.Fprintf(w, "continuous curves: %s\n", yesNo(c.SupportsContinuousCurves))
}

func printState(w io.Writer, s StateSnapshot) {
	fmt.Fprintf(w, "engine:            %s\n", s.EngineState)
	fmt.Fprintf(w, "manually prepared: %s\n", yesNo(s.ManuallyPrepared))
	fmt.Fprintf(w, "active effect:     %s\n", s.ActiveEffect)
	if s.PendingEffect != "" {
		fmt.Fprintf(w, "pending effect:    %s\n", s.PendingEffect)
	}
	printCapabilities(w, s.Capabilities)
	curve := "linear"
	if s.Params.UseExponentialCurve {
		curve = "exponential"
	}
	fmt.Fprintf(w, "release:           %d ms, %.2f revolutions, %s\n",
		s.Params.ReleaseDurationMs, s.Params.Revolutions, curve)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
