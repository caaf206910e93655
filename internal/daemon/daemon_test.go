package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grabby/grabbyd/internal/config"
)

func TestRunStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.OutputDir = filepath.Join(dir, "out")
	cfg.Rules.File = filepath.Join(dir, "data", "rules.json")
	cfg.Rules.Watch = false

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(cfg).Run(ctx) }()

	// Startup is observable through its side effects: the data dirs are
	// created and the default rule set is seeded to disk.
	require.Eventually(t, func() bool {
		_, err := os.Stat(cfg.Rules.File)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop after cancel")
	}

	assert.DirExists(t, cfg.OutputDir)
}

func TestRunFallsBackToMemoryStore(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.OutputDir = filepath.Join(dir, "out")
	cfg.Rules.File = filepath.Join(dir, "data", "rules.json")
	cfg.Rules.Watch = false
	cfg.Store.URL = "bogus://nowhere"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(cfg).Run(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(cfg.Rules.File)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop after cancel")
	}
}
