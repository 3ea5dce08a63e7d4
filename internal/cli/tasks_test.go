package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTasksEmptyStoreReportsNoTasks(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("data_dir: "+tmpDir+"\n"), 0o644))

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text", ConfigPath: configPath}
	cmd := NewTasksCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "no scheduled tasks")
}

func TestTasksJSONFormat(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("data_dir: "+tmpDir+"\n"), 0o644))

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json", ConfigPath: configPath}
	cmd := NewTasksCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Equal(t, "null\n", buf.String())
}

func TestTasksRejectsTooManyArgs(t *testing.T) {
	cmd := NewTasksCommand(&RootOptions{Format: "text"})
	cmd.SetArgs([]string{"a", "b"})

	err := cmd.Execute()
	require.Error(t, err)
}

func TestTasksHelpText(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewTasksCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Recover every managed event")
}
