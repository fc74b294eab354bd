package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_WritesJSONToFile(t *testing.T) {
	// Given a logging config pointed at a temp file
	logPath := filepath.Join(t.TempDir(), "semdex.log")
	cfg := Config{Level: "info", FilePath: logPath}

	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)

	// When logging a line and flushing
	logger.Info("scan complete", slog.Int("files", 12))
	cleanup()

	// Then the file holds a parseable JSON record
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.Split(data, []byte("\n"))[0], &record))
	assert.Equal(t, "scan complete", record["msg"])
	assert.Equal(t, float64(12), record["files"])
}

func TestSetup_LevelFiltersDebug(t *testing.T) {
	// Given an info-level logger
	logPath := filepath.Join(t.TempDir(), "semdex.log")
	logger, cleanup, err := Setup(Config{Level: "info", FilePath: logPath})
	require.NoError(t, err)

	// When logging at debug and info
	logger.Debug("hidden")
	logger.Info("visible")
	cleanup()

	// Then only the info line is written
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "visible")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARN"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}

func TestRotatingWriter_RotatesAtSizeLimit(t *testing.T) {
	// Given a writer with a 1MB cap
	logPath := filepath.Join(t.TempDir(), "semdex.log")
	w, err := NewRotatingWriter(logPath, 1, 3)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	// When writing past the cap
	chunk := bytes.Repeat([]byte("x"), 600*1024)
	_, err = w.Write(chunk)
	require.NoError(t, err)
	_, err = w.Write(chunk)
	require.NoError(t, err)

	// Then the old file was rotated aside and the live file restarted
	info, err := os.Stat(logPath)
	require.NoError(t, err)
	assert.Equal(t, int64(len(chunk)), info.Size())
	_, err = os.Stat(logPath + ".1")
	assert.NoError(t, err)
}

func TestRotatingWriter_KeepsAtMostMaxFiles(t *testing.T) {
	// Given a writer keeping two rotated files
	logPath := filepath.Join(t.TempDir(), "semdex.log")
	w, err := NewRotatingWriter(logPath, 1, 2)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	// When rotating several times
	chunk := bytes.Repeat([]byte("y"), 1024*1024)
	for i := 0; i < 5; i++ {
		_, err = w.Write(chunk)
		require.NoError(t, err)
	}

	// Then only the configured number of rotated files remain
	matches, err := filepath.Glob(logPath + ".*")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(matches), 2)
}
