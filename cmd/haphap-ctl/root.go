package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const defaultSocketPath = "/tmp/haphapd.sock"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Socket  string
	Format  string // "json" | "text"
	Timeout time.Duration
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the haphap-ctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "haphap-ctl",
		Short: "Control a running haptic session daemon",
		Long: `haphap-ctl sends one request to haphapd over its Unix socket and prints the answer.

Exit status is 1 when the daemon answers with an error and 2 when the
request could not be delivered.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Socket, "socket", defaultSocketPath, "daemon IPC socket path")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 3*time.Second, "time to wait for the daemon")

	cmd.AddCommand(
		newSimpleCommand(opts, "prepare", "Start the engine ahead of time", "prepare"),
		newSimpleCommand(opts, "stop", "Stop every running effect", "stop"),
		newSimpleCommand(opts, "idle", "Stop effects and shut the engine down", "go_to_idle"),
		newSimpleCommand(opts, "ramp-up", "Play the ramp-up effect", "run_ramp_up"),
		newReleaseCommand(opts),
		newSettingsCommand(opts),
		newPatternCommand(opts),
		newSimpleCommand(opts, "caps", "Show device haptic capabilities", "capability_query"),
		newSimpleCommand(opts, "state", "Show the session state", "get_state"),
		newSimpleCommand(opts, "background", "Tell the daemon the host went to the background", "app_background"),
		newSimpleCommand(opts, "foreground", "Tell the daemon the host came back", "app_foreground"),
	)

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// newSimpleCommand builds a subcommand that sends a request without data.
func newSimpleCommand(opts *RootOptions, use, short, reqType string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd, opts, Request{Type: reqType})
		},
	}
}

type releaseData struct {
	Power float64 `json:"power"`
}

func newReleaseCommand(opts *RootOptions) *cobra.Command {
	var power float64

	cmd := &cobra.Command{
		Use:   "release",
		Short: "Play the release effect",
		Long: `Play the release effect.

--power selects how much of the decay to play: 1 plays it from the start,
0 jumps to its end.

Example:
  haphap-ctl release --power 0.5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd, opts, Request{Type: "run_release", Data: releaseData{Power: power}})
		},
	}

	cmd.Flags().Float64Var(&power, "power", 1, "release power in [0,1]")
	_ = cmd.MarkFlagRequired("power")

	return cmd
}

type settingsData struct {
	ReleaseDurationMs   uint32  `json:"release_duration_ms"`
	Revolutions         float64 `json:"revolutions"`
	UseExponentialCurve bool    `json:"use_exponential_curve"`
}

func newSettingsCommand(opts *RootOptions) *cobra.Command {
	var data settingsData

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Change the effect parameters",
		Long: `Change the effect parameters.

Flags that are not given keep the daemon's current value.

Example:
  haphap-ctl settings --duration-ms 3000 --revolutions 6 --exponential`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if !flags.Changed("duration-ms") && !flags.Changed("revolutions") && !flags.Changed("exponential") {
				return NewExitError(ExitCommandError, "at least one of --duration-ms, --revolutions or --exponential is required")
			}
			if !flags.Changed("duration-ms") || !flags.Changed("revolutions") || !flags.Changed("exponential") {
				current, err := currentParams(opts)
				if err != nil {
					return err
				}
				if !flags.Changed("duration-ms") {
					data.ReleaseDurationMs = current.ReleaseDurationMs
				}
				if !flags.Changed("revolutions") {
					data.Revolutions = current.Revolutions
				}
				if !flags.Changed("exponential") {
					data.UseExponentialCurve = current.UseExponentialCurve
				}
			}
			return runRequest(cmd, opts, Request{Type: "update_settings", Data: data})
		},
	}

	cmd.Flags().Uint32Var(&data.ReleaseDurationMs, "duration-ms", 4000, "release duration in milliseconds")
	cmd.Flags().Float64Var(&data.Revolutions, "revolutions", 4, "number of simulated revolutions")
	cmd.Flags().BoolVar(&data.UseExponentialCurve, "exponential", false, "use the exponential release phase")

	return cmd
}

// currentParams asks the daemon for its effect parameters.
func currentParams(opts *RootOptions) (EffectParameters, error) {
	resp, err := sendRequest(opts.Socket, opts.Timeout, Request{Type: "get_state"})
	if err != nil {
		return EffectParameters{}, WrapExitError(ExitCommandError, "read current settings", err)
	}
	if resp.Failed() {
		return EffectParameters{}, NewExitError(ExitFailure, fmt.Sprintf("read current settings: %s", resp.Error))
	}
	if resp.State == nil {
		return EffectParameters{}, NewExitError(ExitCommandError, "read current settings: daemon sent no state")
	}
	return resp.State.Params, nil
}

type patternData struct {
	Data []byte `json:"data"`
}

func newPatternCommand(opts *RootOptions) *cobra.Command {
	var (
		file   string
		hexStr string
	)

	cmd := &cobra.Command{
		Use:   "pattern",
		Short: "Play a raw engine pattern",
		Long: `Play a raw engine pattern, read from a file or given as hex.

Example:
  haphap-ctl pattern --file click.ff
  haphap-ctl pattern --hex 50000000ffff...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := loadPattern(file, hexStr)
			if err != nil {
				return WrapExitError(ExitCommandError, "load pattern", err)
			}
			return runRequest(cmd, opts, Request{Type: "run_pattern", Data: patternData{Data: data}})
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "read the pattern from a file")
	cmd.Flags().StringVar(&hexStr, "hex", "", "pattern bytes as hex")
	cmd.MarkFlagsMutuallyExclusive("file", "hex")
	cmd.MarkFlagsOneRequired("file", "hex")

	return cmd
}

func loadPattern(file, hexStr string) ([]byte, error) {
	if file != "" {
		return os.ReadFile(file)
	}
	clean := strings.Join(strings.Fields(hexStr), "")
	data, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	return data, nil
}

// runRequest sends req, prints the answer and maps it to an exit code.
func runRequest(cmd *cobra.Command, opts *RootOptions, req Request) error {
	resp, err := sendRequest(opts.Socket, opts.Timeout, req)
	if err != nil {
		return WrapExitError(ExitCommandError, req.Type, err)
	}
	if err := printResponse(cmd.OutOrStdout(), opts.Format, resp); err != nil {
		return WrapExitError(ExitCommandError, "write output", err)
	}
	if resp.Failed() {
		return NewExitError(ExitFailure, fmt.Sprintf("%s: daemon answered %s", req.Type, resp.Code))
	}
	return nil
}
