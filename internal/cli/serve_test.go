package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeCreatesStoreAndShutsDownOnCancel(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("data_dir: "+tmpDir+"\n"), 0o644))

	buf := &bytes.Buffer{}
	cmd := NewServeCommand(&RootOptions{Format: "text", ConfigPath: configPath})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- cmd.ExecuteContext(ctx)
	}()

	select {
	case err := <-errChan:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not respect context cancellation")
	}

	_, err := os.Stat(filepath.Join(tmpDir, "eventmanager.db"))
	assert.NoError(t, err, "database should be created")
	assert.Contains(t, buf.String(), "Event manager running")
}

func TestServeHelpText(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewServeCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Opens the SQLite document store")
}
