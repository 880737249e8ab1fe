package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "runvalidator", cmd.Use)
	assert.Contains(t, cmd.Long, "RUNVALIDATOR_")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"validate", "serve", "populate", "check", "export"}

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

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestValidateCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	validateCmd, _, err := cmd.Find([]string{"validate"})
	require.NoError(t, err)

	tests := []struct {
		name      string
		shorthand string
		def       string
	}{
		{"fileroot", "f", "../data"},
		{"skip-passage-validation", "S", "false"},
		{"max-warnings", "m", "2000"},
		{"timeout", "t", "3s"},
		{"addr", "", "localhost:8000"},
		{"ptkb", "", "strict"},
		{"edition", "", "2024"},
		{"expected-topics", "", "25"},
		{"expected-turns", "", "332"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validateCmd.Flags().Lookup(tt.name)
			require.NotNil(t, f)
			assert.Equal(t, tt.shorthand, f.Shorthand)
			assert.Equal(t, tt.def, f.DefValue)
		})
	}
}

func TestServeAndPopulateFlags(t *testing.T) {
	cmd := NewRootCommand()

	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	assert.Equal(t, ":8000", serveCmd.Flags().Lookup("addr").DefValue)
	assert.Equal(t, "10", serveCmd.Flags().Lookup("workers").DefValue)

	populateCmd, _, err := cmd.Find([]string{"populate"})
	require.NoError(t, err)
	batch := populateCmd.Flags().Lookup("batch-size")
	require.NotNil(t, batch)
	assert.Equal(t, "b", batch.Shorthand)
	assert.Equal(t, "20000", batch.DefValue)
	assert.Equal(t, "116838987", populateCmd.Flags().Lookup("expected").DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, _, err := execute(t, "--format", "xml", "export", "run.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestMissingConfigFile(t *testing.T) {
	_, _, err := execute(t, "--config", "/nonexistent/runvalidator.yaml", "export", "run.json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
