package config_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/kiranshivaraju/gridrunner/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSave_RoundTrip(t *testing.T) {
	clearEnv(t)

	cfg := config.Default()
	cfg.Corpus = "corpus/fiction.txt"
	cfg.Vectors = "vectors"
	cfg.FastText = "lib/fastText/fasttext"
	cfg.Hostname = "node-1"
	cfg.Queue.Sheets.APIKey = "api_keys/key.json"
	cfg.Queue.Sheets.SpreadsheetID = "sheet"

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, config.Save(path, cfg, false))

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestSave_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"keep": true}`), 0o644))

	err := config.Save(path, config.Default(), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrConfigExists)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"keep": true}`, string(data))
}

func TestSave_Overwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))

	cfg := config.Default()
	cfg.Corpus = "new.txt"
	require.NoError(t, config.Save(path, cfg, true))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "new.txt", raw["corpus"])
	assert.NotContains(t, raw, "spreadshet_id")
}

func TestPreflight(t *testing.T) {
	dir := t.TempDir()
	corpus := filepath.Join(dir, "corpus.txt")
	vectors := filepath.Join(dir, "vectors")
	key := filepath.Join(dir, "key.json")
	fasttext := filepath.Join(dir, "fasttext")

	require.NoError(t, os.WriteFile(corpus, []byte("a b c\n"), 0o644))
	require.NoError(t, os.Mkdir(vectors, 0o755))
	require.NoError(t, os.WriteFile(key, []byte(`{}`), 0o600))
	require.NoError(t, os.WriteFile(fasttext, []byte("#!/bin/sh\n"), 0o755))

	base := func() *config.Config {
		cfg := config.Default()
		cfg.Corpus, cfg.Vectors, cfg.FastText = corpus, vectors, fasttext
		cfg.Queue.Sheets.APIKey = key
		return cfg
	}

	t.Run("all present", func(t *testing.T) {
		require.NoError(t, base().Preflight())
	})

	t.Run("missing corpus", func(t *testing.T) {
		cfg := base()
		cfg.Corpus = filepath.Join(dir, "missing.txt")
		err := cfg.Preflight()
		assert.ErrorIs(t, err, config.ErrConfigMissing)
		assert.Contains(t, err.Error(), "corpus")
	})

	t.Run("vectors is a file", func(t *testing.T) {
		cfg := base()
		cfg.Vectors = corpus
		assert.ErrorIs(t, cfg.Preflight(), config.ErrConfigInvalid)
	})

	t.Run("missing api key", func(t *testing.T) {
		cfg := base()
		cfg.Queue.Sheets.APIKey = filepath.Join(dir, "nokey.json")
		err := cfg.Preflight()
		assert.ErrorIs(t, err, config.ErrConfigMissing)
		assert.Contains(t, err.Error(), "api key")
	})

	t.Run("api key ignored for postgres", func(t *testing.T) {
		cfg := base()
		cfg.Queue.Backend = config.BackendPostgres
		cfg.Queue.Sheets.APIKey = ""
		require.NoError(t, cfg.Preflight())
	})

	t.Run("fasttext not executable", func(t *testing.T) {
		plain := filepath.Join(dir, "plain")
		require.NoError(t, os.WriteFile(plain, []byte("x"), 0o644))
		cfg := base()
		cfg.FastText = plain
		err := cfg.Preflight()
		assert.ErrorIs(t, err, config.ErrConfigInvalid)
		assert.Contains(t, err.Error(), "not executable")
	})
}
