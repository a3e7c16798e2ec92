package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "mementer", cmd.Use)
	assert.Contains(t, cmd.Long, "last-write-wins")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"create", "list", "get", "update", "attach", "timeline", "history", "inspect", "sync"}

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

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	atFlag := cmd.PersistentFlags().Lookup("at")
	require.NotNil(t, atFlag)
	assert.Equal(t, "0", atFlag.DefValue)

	for _, name := range []string{"db", "author"} {
		f := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, f, name)
		assert.Equal(t, "", f.DefValue)
	}
}

func TestContentFlags(t *testing.T) {
	tests := []struct {
		command string
		flag    string
	}{
		{"create", "settings"},
		{"update", "settings"},
		{"attach", "content"},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			cmd := NewRootCommand()
			sub, _, err := cmd.Find([]string{tt.command})
			require.NoError(t, err)

			require.NotNil(t, sub.Flags().Lookup(tt.flag))
			fileFlag := sub.Flags().Lookup("file")
			require.NotNil(t, fileFlag)
			assert.Equal(t, "f", fileFlag.Shorthand)
		})
	}
}

func TestTimelineAndSyncFlags(t *testing.T) {
	cmd := NewRootCommand()

	timelineCmd, _, err := cmd.Find([]string{"timeline"})
	require.NoError(t, err)
	sortFlag := timelineCmd.Flags().Lookup("sort")
	require.NotNil(t, sortFlag)
	assert.Equal(t, "", sortFlag.DefValue)

	syncCmd, _, err := cmd.Find([]string{"sync"})
	require.NoError(t, err)
	pushFlag := syncCmd.Flags().Lookup("push")
	require.NotNil(t, pushFlag)
	assert.Equal(t, "false", pushFlag.DefValue)
	followFlag := syncCmd.Flags().Lookup("follow")
	require.NotNil(t, followFlag)
	assert.Equal(t, "false", followFlag.DefValue)
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "invalid", "--db", filepath.Join(t.TempDir(), "m.db"), "list"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "from-config.db")
	cfgPath := filepath.Join(dir, "mementer.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("database: "+db+"\nformat: json\nauthor: writer-cfg\n"), 0o644))

	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"-c", cfgPath, "inspect"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), `"status":"ok"`)
	assert.FileExists(t, db)
}

func TestConfigFileRejected(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "mementer.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("fetch_concurrency: 0\n"), 0o644))

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"-c", cfgPath, "list"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}
