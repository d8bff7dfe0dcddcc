package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/techniquebook/internal/errors"
	"github.com/kimhsiao/techniquebook/internal/logging"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoad_defaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(LoadInput{WorkDir: dir})
	require.NoError(t, err)

	want := Config{
		DataDir:       filepath.Join(dir, "data"),
		MediaDir:      filepath.Join(dir, "data", "media"),
		LogLevel:      "info",
		ThumbnailSize: 200,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, logging.LevelInfo, cfg.Level())
}

func TestLoad_projectFileWithComments(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, FileName), `{
		// where the sqlite file lives
		"data_dir": "store",
		"media_dir": "/var/media",
		"log_level": "debug",
		"seed_file": "seed/techniques.json",
		"thumbnail_size": 96, // trailing commas are fine
	}`)

	cfg, err := Load(LoadInput{WorkDir: dir})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "store"), cfg.DataDir)
	assert.Equal(t, "/var/media", cfg.MediaDir)
	assert.Equal(t, filepath.Join(dir, "seed", "techniques.json"), cfg.SeedFile)
	assert.Equal(t, 96, cfg.ThumbnailSize)
	assert.Equal(t, logging.LevelDebug, cfg.Level())
	assert.Equal(t, filepath.Join(dir, FileName), cfg.Source)
}

func TestLoad_overridesWin(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "custom.json"), `{"data_dir": "from-file", "log_level": "warn"}`)

	cfg, err := Load(LoadInput{
		WorkDir:          dir,
		ConfigPath:       "custom.json",
		DataDirOverride:  "/tmp/override",
		LogLevelOverride: "error",
	})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override", cfg.DataDir)
	assert.Equal(t, filepath.Join("/tmp/override", "media"), cfg.MediaDir)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestLoad_errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		input   LoadInput
	}{
		{name: "missing explicit file", input: LoadInput{ConfigPath: "nope.json"}},
		{name: "bad syntax", content: `{"data_dir": }`},
		{name: "empty data dir", content: `{"data_dir": ""}`},
		{name: "bad level", content: `{"log_level": "loud"}`},
		{name: "thumbnail too small", content: `{"thumbnail_size": 4}`},
		{name: "wrong type", content: `{"thumbnail_size": "big"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.content != "" {
				writeFile(t, filepath.Join(dir, FileName), tt.content)
			}
			tt.input.WorkDir = dir

			_, err := Load(tt.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrConfig), err.Error())
		})
	}
}
