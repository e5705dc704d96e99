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

	expected := []string{"extract", "serve", "stats", "refdb"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "capture-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestExtractCommand_Flags(t *testing.T) {
	flag := extractCmd.Flags().Lookup("domain")
	require.NotNil(t, flag, "extract command should have --domain flag")

	flag = extractCmd.Flags().Lookup("provider")
	require.NotNil(t, flag, "extract command should have --provider flag")

	flag = extractCmd.Flags().Lookup("concurrency")
	require.NotNil(t, flag, "extract command should have --concurrency flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestStatsCommand_Flags(t *testing.T) {
	for _, flagName := range []string{"hours", "by", "json"} {
		flag := statsCmd.Flags().Lookup(flagName)
		assert.NotNil(t, flag, "stats should have --%s flag", flagName)
	}
}

func TestRefdbCommand_HasSubcommands(t *testing.T) {
	cmds := refdbCmd.Commands()
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	for _, name := range []string{"import", "lookup"} {
		assert.True(t, names[name], "refdb should have subcommand %q", name)
	}
}

func TestRefdbLookupCommand_Flags(t *testing.T) {
	for _, flagName := range []string{"code", "name", "producer", "vintage", "limit"} {
		flag := refdbLookupCmd.Flags().Lookup(flagName)
		assert.NotNil(t, flag, "refdb lookup should have --%s flag", flagName)
	}
}

func TestResolvePort(t *testing.T) {
	assert.Equal(t, 9090, resolvePort(9090, 8080), "flag should win")
	assert.Equal(t, 8080, resolvePort(0, 8080), "config should be the fallback")
}
