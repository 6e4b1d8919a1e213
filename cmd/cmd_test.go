package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treefix50/trainingtime/internal/server"
	"github.com/treefix50/trainingtime/internal/storage"
)

func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	_, err = root.ExecuteC()
	return buf.String(), err
}

// writeFixture creates a library with two videos and a config pointing at it.
func writeFixture(t *testing.T) (configFile, libraryRoot, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	libraryRoot = filepath.Join(dir, "library")
	dbPath = filepath.Join(dir, "data", "trainingtime.db")
	for _, rel := range []string{"Compliance/gdpr.mp4", "leadership/feedback.mkv"} {
		path := filepath.Join(libraryRoot, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("video"), 0o644))
	}
	configFile = filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf("library:\n  root: %q\n  watch: false\nstorage:\n  path: %q\nlog:\n  level: error\n", libraryRoot, dbPath)
	require.NoError(t, os.WriteFile(configFile, []byte(body), 0o644))
	return configFile, libraryRoot, dbPath
}

func TestScanCommand(t *testing.T) {
	configFile, root, _ := writeFixture(t)

	out, err := executeCommand(rootCmd, "scan", "--config", configFile)
	require.NoError(t, err)
	assert.Contains(t, out, "Root: "+root)
	assert.Contains(t, out, "Videos: 2")
	assert.Contains(t, out, "Compliance: 1")
	assert.Contains(t, out, "Leadership: 1")
	assert.Contains(t, out, "(finished)")
}

func TestStatsCommand(t *testing.T) {
	configFile, _, dbPath := writeFixture(t)
	_, err := executeCommand(rootCmd, "scan", "--config", configFile)
	require.NoError(t, err)

	store, err := storage.Open(dbPath, storage.Options{})
	require.NoError(t, err)
	videos, err := store.ListVideos()
	require.NoError(t, err)
	require.Len(t, videos, 2)
	require.NoError(t, store.UpsertProgress(server.Progress{
		VideoID: videos[0].ID, ViewerID: "ann", PercentWatched: 60, DurationSeconds: 100,
	}))
	require.NoError(t, store.Close())

	out, err := executeCommand(rootCmd, "stats", "--config", configFile, "--viewer", "ann", "--category", "", "--json=false")
	require.NoError(t, err)
	assert.Contains(t, out, "Videos: 2")
	assert.Contains(t, out, "Completed: 0")
	assert.Contains(t, out, "Overall progress: 30%")

	out, err = executeCommand(rootCmd, "stats", "--config", configFile, "--viewer", "ann", "--category", "", "--json")
	require.NoError(t, err)
	var stats server.TrainingStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, "ann", stats.ViewerID)
	assert.Equal(t, 30, stats.OverallProgress)
}

func TestStatsRejectsUnknownCategory(t *testing.T) {
	configFile, _, _ := writeFixture(t)
	_, err := executeCommand(rootCmd, "stats", "--config", configFile, "--category", "cooking", "--json=false")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown category")
}

func TestDBCommands(t *testing.T) {
	configFile, _, dbPath := writeFixture(t)

	out, err := executeCommand(rootCmd, "db", "check", "--config", configFile)
	require.NoError(t, err)
	assert.Contains(t, out, "ok")

	_, err = executeCommand(rootCmd, "db", "analyze", "--config", configFile)
	require.NoError(t, err)

	copyPath := filepath.Join(filepath.Dir(dbPath), "copy.db")
	out, err = executeCommand(rootCmd, "db", "vacuum", "--config", configFile, "--into", copyPath)
	require.NoError(t, err)
	assert.Contains(t, out, "vacuumed into")
	assert.FileExists(t, copyPath)
}

func TestMissingConfigFile(t *testing.T) {
	_, err := executeCommand(rootCmd, "db", "check", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config:")
}
