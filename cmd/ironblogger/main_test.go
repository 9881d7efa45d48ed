package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrcoles/iron-blogger2/pkg/roster"
)

func writeTestConfig(t *testing.T, dir string) string {
	t.Helper()
	cfgPath := filepath.Join(dir, "config.yml")
	cfg := fmt.Sprintf("database:\n  dsn: %q\n", "file:"+filepath.Join(dir, "test.db")+"?mode=rwc")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))
	return cfgPath
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := loadConfig("non-existent-config.yml")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Listen)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "bad.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("invalid: yaml: content: ["), 0o600))

	_, err := loadConfig(cfgPath)
	require.Error(t, err)
	require.Contains(t, err.Error(), "load config")
}

func TestRun_UnknownCommand(t *testing.T) {
	tmpDir := t.TempDir()
	opts := Opts{Config: writeTestConfig(t, tmpDir)}

	err := run(context.Background(), "bogus", &opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestRun_SyncEmptyDatabase(t *testing.T) {
	tmpDir := t.TempDir()
	opts := Opts{Config: writeTestConfig(t, tmpDir)}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// no bloggers and no blogs: a full cycle is a clean no-op
	require.NoError(t, run(ctx, "sync", &opts))
}

func TestRun_ImportExport(t *testing.T) {
	tmpDir := t.TempDir()
	opts := Opts{Config: writeTestConfig(t, tmpDir)}

	rosterPath := filepath.Join(tmpDir, "bloggers.yml")
	doc := `
alice:
  start: "2015-04-01"
  links:
    - [Alice's Blog, "http://alice.example.com/", "http://alice.example.com/feed"]
`
	require.NoError(t, os.WriteFile(rosterPath, []byte(doc), 0o600))

	ctx := context.Background()

	opts.ImportCmd.Args.File = rosterPath
	require.NoError(t, run(ctx, "import", &opts))

	// re-import is a no-op, nothing duplicated
	require.NoError(t, run(ctx, "import", &opts))

	exportPath := filepath.Join(tmpDir, "export.yml")
	opts.ExportCmd.Args.File = exportPath
	require.NoError(t, run(ctx, "export", &opts))

	f, err := os.Open(exportPath) //nolint:gosec // test file
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck // read-only file

	members, err := roster.Parse(f)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "alice", members[0].Name)
	assert.Equal(t, time.Date(2015, 4, 1, 0, 0, 0, 0, time.UTC), members[0].StartDate)
	require.Len(t, members[0].Blogs, 1)
	assert.Equal(t, "http://alice.example.com/feed", members[0].Blogs[0].FeedURL)
}

func TestRun_ImportMissingFile(t *testing.T) {
	tmpDir := t.TempDir()
	opts := Opts{Config: writeTestConfig(t, tmpDir)}
	opts.ImportCmd.Args.File = filepath.Join(tmpDir, "nope.yml")

	err := run(context.Background(), "import", &opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open roster")
}

func TestSetupLog(t *testing.T) {
	t.Run("debug mode", func(t *testing.T) {
		setupLog(true, false)
	})
	t.Run("no color", func(t *testing.T) {
		setupLog(false, true)
	})
	t.Run("with secrets", func(t *testing.T) {
		setupLog(true, false, "secret1")
	})
}
