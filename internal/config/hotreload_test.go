package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := writeFile(t, "agent.json5", `{backend: {url: "ws://one:1"}}`)

	w, err := NewWatcher(path)
	require.NoError(t, err)
	w.debounce = 20 * time.Millisecond

	got := make(chan *Config, 4)
	w.OnChange(func(cfg *Config) { got <- cfg })
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte(`{backend: {url: "ws://two:2"}}`), 0o600))

	select {
	case cfg := <-got:
		assert.Equal(t, "ws://two:2", cfg.Backend.URL)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload")
	}
}

func TestWatcher_InvalidReloadKeepsHandlersQuiet(t *testing.T) {
	path := writeFile(t, "agent.json5", `{}`)

	w, err := NewWatcher(path)
	require.NoError(t, err)
	w.debounce = 20 * time.Millisecond

	got := make(chan *Config, 4)
	w.OnChange(func(cfg *Config) { got <- cfg })
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte(`{backend: {url: "http://bad"}}`), 0o600))

	select {
	case <-got:
		t.Fatal("handler called for an invalid config")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, err := NewWatcher(writeFile(t, "agent.json5", `{}`))
	require.NoError(t, err)
	require.NoError(t, w.Start())
	w.Stop()
	w.Stop()
}
