package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Name        string `validate:"required"`
	WaitTimeout time.Duration
	Workers     int `validate:"gte=1"`
}

func writeFile(t *testing.T, path string, content string) {
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadConfig_MergesOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.yaml"), "name: base\nwaitTimeout: 10s\nworkers: 2\n")
	override := filepath.Join(dir, "override.yaml")
	writeFile(t, override, "workers: 8\n")

	var config testConfig
	_, err := loadConfig(&config, dir, []string{"", override})
	require.NoError(t, err)

	assert.Equal(t, "base", config.Name)
	assert.Equal(t, 10*time.Second, config.WaitTimeout)
	assert.Equal(t, 8, config.Workers)
}

func TestLoadConfig_FailsValidation(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.yaml"), "name: base\nworkers: 0\n")

	var config testConfig
	_, err := loadConfig(&config, dir, nil)
	assert.Error(t, err)
}

func TestLoadConfig_MissingBaseFile(t *testing.T) {
	var config testConfig
	_, err := loadConfig(&config, t.TempDir(), nil)
	assert.Error(t, err)
}
