package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)

	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, "https://api.groq.com/openai/v1", cfg.BaseURL)
	assert.Equal(t, DefaultHistoryWindow, cfg.HistoryWindow)
	assert.Equal(t, DefaultCorrectiveRetryCap, cfg.CorrectiveRetryCap)
}

func TestLoadFillsUnsetFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"default_model": "llama-3.3-70b-versatile"}`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "llama-3.3-70b-versatile", cfg.DefaultModel)
	assert.Equal(t, DefaultMinCompletionTokens, cfg.MinCompletionTokens)
	assert.Equal(t, DefaultTemperature, cfg.Temperature)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := Default()
	cfg.ListenAddr = "localhost:9000"
	cfg.HistoryWindow = 40
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", loaded.ListenAddr)
	assert.Equal(t, 40, loaded.HistoryWindow)
}

func TestLoadRejectsInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}
