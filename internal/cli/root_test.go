package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs pensionctl with args and captures both output streams.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}

	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "pensionctl", cmd.Use)
	assert.Contains(t, cmd.Long, "CA, IN and OH")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"states"},
		{"states", "list"},
		{"states", "show"},
		{"states", "summary"},
		{"credit"},
		{"validate"},
		{"calculate"},
		{"readiness"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
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

	require.NotNil(t, cmd.PersistentFlags().Lookup("rules"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("as-of"))
}

func TestMemberCommandFlags(t *testing.T) {
	cmd := NewRootCommand()

	for _, name := range []string{"validate", "calculate", "readiness"} {
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{name})
			require.NoError(t, err)

			for _, flag := range []string{"state", "type", "age", "service", "salary", "rate"} {
				assert.NotNil(t, subCmd.Flags().Lookup(flag), "missing --%s", flag)
			}
			assert.Equal(t, "service", subCmd.Flags().Lookup("type").DefValue)
		})
	}

	calcCmd, _, err := cmd.Find([]string{"calculate"})
	require.NoError(t, err)
	colaFlag := calcCmd.Flags().Lookup("cola-years")
	require.NotNil(t, colaFlag)
	assert.Equal(t, "0", colaFlag.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, stderr, err := execute(t, "--format", "xml", "states", "list")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stderr, "invalid format")
}

func TestInvalidAsOf(t *testing.T) {
	_, stderr, err := execute(t, "--as-of", "06/30/2024", "states", "list")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stderr, "--as-of")
}

func TestMissingRulesFile(t *testing.T) {
	_, stderr, err := execute(t, "--rules", "/nonexistent/rules.yaml", "states", "list")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stderr, "failed to load rules")
}
