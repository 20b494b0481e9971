package watch

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/extbridge/internal/scanner"
)

func addExtension(t *testing.T, root, name string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, scanner.ManifestFile), []byte(`{"name":"`+name+`"}`), 0o644))
}

func newWatcher(t *testing.T, folder *string) *Watcher {
	t.Helper()
	s, err := scanner.New(slog.Default())
	require.NoError(t, err)

	w, err := New("@every 1h", s, func() string { return *folder }, slog.Default())
	require.NoError(t, err)
	return w
}

func TestNew_RejectsBadSchedule(t *testing.T) {
	s, err := scanner.New(nil)
	require.NoError(t, err)

	_, err = New("every now and then", s, func() string { return "" }, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse watch schedule")
}

func TestNew_AcceptsSecondsAndDescriptors(t *testing.T) {
	s, err := scanner.New(nil)
	require.NoError(t, err)

	for _, schedule := range []string{"@every 5s", "*/30 * * * * *", "0 * * * *", "@hourly"} {
		_, err := New(schedule, s, func() string { return "" }, nil)
		assert.NoError(t, err, schedule)
	}
}

func TestTick_ReportsAddedAndRemoved(t *testing.T) {
	root := t.TempDir()
	addExtension(t, root, "a")
	addExtension(t, root, "b")
	folder := root
	w := newWatcher(t, &folder)

	w.Tick(context.Background())
	baseline := w.Drain()
	assert.Empty(t, baseline.Added, "first scan only sets the baseline")
	require.NotNil(t, baseline.LastScan)
	assert.False(t, baseline.LastScan.IsZero())

	addExtension(t, root, "c")
	require.NoError(t, os.RemoveAll(filepath.Join(root, "a")))
	w.Tick(context.Background())

	state := w.Drain()
	assert.Equal(t, []string{"c"}, state.Added)
	assert.Equal(t, []string{"a"}, state.Removed)
	assert.Equal(t, "@every 1h", state.Schedule)

	again := w.Drain()
	assert.Empty(t, again.Added, "drain clears pending changes")
	assert.Empty(t, again.Removed)
}

func TestTick_AddThenRemoveCancelsOut(t *testing.T) {
	root := t.TempDir()
	folder := root
	w := newWatcher(t, &folder)
	w.Tick(context.Background())

	addExtension(t, root, "x")
	w.Tick(context.Background())
	require.NoError(t, os.RemoveAll(filepath.Join(root, "x")))
	w.Tick(context.Background())

	state := w.Drain()
	assert.Empty(t, state.Added)
	assert.Equal(t, []string{"x"}, state.Removed)
}

func TestTick_FolderChangeResetsBaseline(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	addExtension(t, first, "a")
	addExtension(t, second, "b")

	folder := first
	w := newWatcher(t, &folder)
	w.Tick(context.Background())

	folder = second
	w.Tick(context.Background())

	state := w.Drain()
	assert.Empty(t, state.Added)
	assert.Empty(t, state.Removed)
}

func TestStartStop(t *testing.T) {
	root := t.TempDir()
	folder := root
	w := newWatcher(t, &folder)

	require.NoError(t, w.Start(context.Background()))
	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
	assert.NotNil(t, w.Drain().LastScan, "start performs an initial scan")
}

func TestDrain_OmitsLastScanBeforeFirstScan(t *testing.T) {
	folder := ""
	w := newWatcher(t, &folder)

	data, err := json.Marshal(w.Drain())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "lastScan")

	w.Tick(context.Background())
	data, err = json.Marshal(w.Drain())
	require.NoError(t, err)
	assert.Contains(t, string(data), "lastScan")
}
