package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/extbridge/internal/framing"
	"github.com/rendis/extbridge/pkg/schema"
)

func TestNewApp_Defaults(t *testing.T) {
	t.Setenv("EXTBRIDGE_EXTENSION_FOLDER", "")
	var stderr bytes.Buffer

	a, err := newAppWithStore(context.Background(), &stderr, filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.watcher)
	assert.Equal(t, "", a.dispatcher.Folder())
}

func TestNewApp_WatcherAndFilterFromConfig(t *testing.T) {
	t.Setenv("EXTBRIDGE_EXTENSION_FOLDER", "")
	folder := t.TempDir()
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := `{"extensionFolder":` + quote(folder) + `,"watchEnabled":true,"watchSchedule":"@every 1h","scanFilter":"manifestVersion == 3","filterEngine":"cel"}`
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))

	var stderr bytes.Buffer
	a, err := newAppWithStore(context.Background(), &stderr, path)
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.watcher)
	assert.Equal(t, folder, a.dispatcher.Folder())
}

func TestNewApp_BadScheduleDisablesWatcher(t *testing.T) {
	t.Setenv("EXTBRIDGE_EXTENSION_FOLDER", "")
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"watchEnabled":true,"watchSchedule":"whenever"}`), 0o600))

	var stderr bytes.Buffer
	a, err := newAppWithStore(context.Background(), &stderr, path)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.watcher)
	assert.Contains(t, stderr.String(), "folder watcher disabled")
}

func TestServeNative_StatusRoundTrip(t *testing.T) {
	t.Setenv("EXTBRIDGE_EXTENSION_FOLDER", "")
	var stderr bytes.Buffer
	a, err := newAppWithStore(context.Background(), &stderr, filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	defer a.Close()

	var in, out bytes.Buffer
	require.NoError(t, framing.NewEncoder(&in).Encode(schema.Request{Action: schema.ActionStatus}))
	require.NoError(t, serveNative(context.Background(), a, &in, &out))

	var resp schema.StatusResponse
	require.NoError(t, framing.NewDecoder(&out).Decode(&resp))
	assert.Equal(t, schema.TypeStatus, resp.Type)
	assert.Equal(t, version, resp.Version)
	assert.Equal(t, 0, resp.LoadedCount)
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestServeNative_StopsOnCancelWithInputOpen(t *testing.T) {
	t.Setenv("EXTBRIDGE_EXTENSION_FOLDER", "")
	var stderr bytes.Buffer
	a, err := newAppWithStore(context.Background(), &stderr, filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	defer a.Close()

	in, held := io.Pipe()
	defer held.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- serveNative(ctx, a, in, io.Discard) }()
	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("native loop ignored cancellation while stdin stayed open")
	}
}
