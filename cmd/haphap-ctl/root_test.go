package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "haphap-ctl", cmd.Use)
	assert.True(t, cmd.SilenceUsage)
	assert.True(t, cmd.SilenceErrors)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{
		"prepare", "stop", "idle", "ramp-up", "release", "settings",
		"pattern", "caps", "state", "background", "foreground",
	}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	socketFlag := cmd.PersistentFlags().Lookup("socket")
	require.NotNil(t, socketFlag)
	assert.Equal(t, defaultSocketPath, socketFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	timeoutFlag := cmd.PersistentFlags().Lookup("timeout")
	require.NotNil(t, timeoutFlag)
	assert.Equal(t, "3s", timeoutFlag.DefValue)
}

func TestReleaseCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	releaseCmd, _, err := cmd.Find([]string{"release"})
	require.NoError(t, err)

	powerFlag := releaseCmd.Flags().Lookup("power")
	require.NotNil(t, powerFlag)
	assert.Equal(t, []string{"true"}, powerFlag.Annotations["cobra_annotation_bash_completion_one_required_flag"])
}

func TestSettingsCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	settingsCmd, _, err := cmd.Find([]string{"settings"})
	require.NoError(t, err)

	for _, name := range []string{"duration-ms", "revolutions", "exponential"} {
		assert.NotNil(t, settingsCmd.Flags().Lookup(name), "flag %s should exist", name)
	}
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "yaml", "state"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestPatternRequiresSource(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"pattern"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestPatternRejectsBothSources(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"pattern", "--file", "x.ff", "--hex", "00"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSettingsRequiresAFlag(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"settings"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one of")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestLoadPattern(t *testing.T) {
	data, err := loadPattern("", "de ad\nbe ef")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, data)

	_, err = loadPattern("", "zz")
	assert.Error(t, err)
}
