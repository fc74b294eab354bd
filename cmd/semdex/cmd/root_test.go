package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestConfig writes a config using the offline static embedder and
// an isolated index directory, and points HOME somewhere disposable so
// logs land there too.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	dir := t.TempDir()
	content := `
index:
  dir: ` + filepath.Join(dir, "index") + `
embeddings:
  provider: static
scanner:
  log_path: ""
`
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// runCommand executes the CLI with args and returns its output.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	cmd := NewRootCmd()
	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Contains(t, names, "scan")
	assert.Contains(t, names, "search")
	assert.Contains(t, names, "watch")
	assert.Contains(t, names, "status")
}

func TestScanCmd_RequiresRoots(t *testing.T) {
	cfgPath := writeTestConfig(t)

	_, err := runCommand(t, "--config", cfgPath, "scan")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no directories to scan")
}

func TestScanThenSearch(t *testing.T) {
	// Given a config and a directory with one text file
	cfgPath := writeTestConfig(t)
	docs := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(docs, "pasta.txt"),
		[]byte("how to cook perfect pasta carbonara with eggs and guanciale"), 0o644))

	// When scanning it
	scanOut, err := runCommand(t, "--config", cfgPath, "scan", docs)
	require.NoError(t, err)
	assert.Contains(t, scanOut, "indexed 1 files")

	// Then searching finds the file
	searchOut, err := runCommand(t, "--config", cfgPath, "search", "pasta carbonara recipe")
	require.NoError(t, err)
	assert.Contains(t, searchOut, "pasta.txt")
}

func TestSearchCmd_JSONFormat(t *testing.T) {
	// Given an indexed file
	cfgPath := writeTestConfig(t)
	docs := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(docs, "report.md"),
		[]byte("annual safety inspection report for the warehouse"), 0o644))
	_, err := runCommand(t, "--config", cfgPath, "scan", docs, "--quiet")
	require.NoError(t, err)

	// When searching with JSON output
	out, err := runCommand(t, "--config", cfgPath, "search", "warehouse safety", "--format", "json", "--limit", "1")
	require.NoError(t, err)

	// Then the output parses and names the file
	var results []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "report.md", results[0]["filename"])
}

func TestSearchCmd_EmptyIndex(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runCommand(t, "--config", cfgPath, "search", "anything")

	require.NoError(t, err)
	assert.Contains(t, out, "no matching files")
}

func TestStatusCmd_ReportsIndexSize(t *testing.T) {
	// Given one indexed file
	cfgPath := writeTestConfig(t)
	docs := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(docs, "note.txt"), []byte("a short note"), 0o644))
	_, err := runCommand(t, "--config", cfgPath, "scan", docs, "--quiet")
	require.NoError(t, err)

	// When asking for status
	out, err := runCommand(t, "--config", cfgPath, "status")
	require.NoError(t, err)

	// Then the index size is reported
	assert.Contains(t, out, "files indexed: 1")
}
