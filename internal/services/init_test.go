package services

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/assetpipe/internal/config"
)

func TestInitProject(t *testing.T) {
	dir := t.TempDir()
	svc := NewInitService()

	result, err := svc.InitProject(InitOptions{ProjectDir: dir})
	require.NoError(t, err)
	assert.Equal(t, []string{
		config.FileName,
		filepath.Join("src", "styles", "site.scss"),
		filepath.Join("src", "styles", "_variables.scss"),
		filepath.Join("src", "index.html"),
	}, result.Created)
	assert.Empty(t, result.Skipped)

	page, err := os.ReadFile(filepath.Join(dir, "src", "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(page), "{{ .Styles }}")

	again, err := svc.InitProject(InitOptions{ProjectDir: dir})
	require.NoError(t, err)
	assert.Empty(t, again.Created)
	assert.Len(t, again.Skipped, 4)

	forced, err := svc.InitProject(InitOptions{ProjectDir: dir, Force: true})
	require.NoError(t, err)
	assert.Len(t, forced.Created, 4)
}

func TestInitProjectMinimal(t *testing.T) {
	dir := t.TempDir()

	result, err := NewInitService().InitProject(InitOptions{ProjectDir: dir, Minimal: true})
	require.NoError(t, err)
	assert.Equal(t, []string{config.FileName}, result.Created)
	assert.NoDirExists(t, filepath.Join(dir, "src"))
}

func TestMarshalConfigRoundTrip(t *testing.T) {
	content, err := MarshalConfig(config.Default())
	require.NoError(t, err)
	assert.Contains(t, string(content), "debounce: 300ms")

	path := filepath.Join(t.TempDir(), config.FileName)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.SetConfigFile(path)
	require.NoError(t, viper.ReadInConfig())

	cfg, err := config.Load()
	require.NoError(t, err)

	defaults := config.Default()
	assert.Equal(t, 300*time.Millisecond, cfg.Development.Debounce)
	assert.Equal(t, defaults.Paths, cfg.Paths)
	assert.Equal(t, defaults.Styles, cfg.Styles)
	assert.Equal(t, defaults.HTML, cfg.HTML)
	assert.Equal(t, defaults.Development, cfg.Development)
}
