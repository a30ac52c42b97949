package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"batch", "run", "diversity", "projects", "runs"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "proximity-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestBatchCommand_Flags(t *testing.T) {
	for _, flagName := range []string{"base-dir", "include", "mode"} {
		flag := batchCmd.Flags().Lookup(flagName)
		assert.NotNil(t, flag, "batch command should have --%s flag", flagName)
	}
}

func TestDiversityCommand_Flags(t *testing.T) {
	flag := diversityCmd.Flags().Lookup("attributes")
	require.NotNil(t, flag, "diversity command should have --attributes flag")

	outFlag := diversityCmd.Flags().Lookup("out")
	require.NotNil(t, outFlag, "diversity command should have --out flag")
	assert.Equal(t, "diversity.csv", outFlag.DefValue)
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	cmds := runsCmd.Commands()
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	for _, name := range []string{"list", "show"} {
		assert.True(t, names[name], "runs should have subcommand %q", name)
	}
}

func TestRunsListCommand_Flags(t *testing.T) {
	flag := runsListCmd.Flags().Lookup("limit")
	require.NotNil(t, flag, "runs list should have --limit flag")
	assert.Equal(t, "20", flag.DefValue)
}
