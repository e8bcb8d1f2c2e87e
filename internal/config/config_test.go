package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		setup       func()
		expectError bool
		check       func(t *testing.T, cfg *Config)
	}{
		{
			name:  "defaults",
			setup: func() { viper.Reset() },
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, Default(), cfg)
			},
		},
		{
			name: "custom paths",
			setup: func() {
				viper.Reset()
				viper.Set("paths.src", "web")
				viper.Set("paths.build", "dist")
				viper.Set("styles.build", "static/css")
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "web", cfg.Paths.Src)
				assert.Equal(t, "dist", cfg.Paths.Build)
				assert.Equal(t, "static/css", cfg.Styles.Build)
				assert.Equal(t, "styles", cfg.Styles.Group)
			},
		},
		{
			name: "explicit false bools survive defaults",
			setup: func() {
				viper.Reset()
				viper.Set("development.hot_reload", false)
				viper.Set("development.css_injection", false)
				viper.Set("metrics.enabled", false)
			},
			check: func(t *testing.T, cfg *Config) {
				assert.False(t, cfg.Development.HotReload)
				assert.False(t, cfg.Development.CSSInjection)
				assert.True(t, cfg.Development.ErrorOverlay)
				assert.False(t, cfg.Metrics.Enabled)
			},
		},
		{
			name: "empty prefix list disables prefixing",
			setup: func() {
				viper.Reset()
				viper.Set("styles.prefixes", []string{})
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Empty(t, cfg.Styles.Prefixes)
			},
		},
		{
			name: "debounce parses durations",
			setup: func() {
				viper.Reset()
				viper.Set("development.debounce", "150ms")
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 150*time.Millisecond, cfg.Development.Debounce)
			},
		},
		{
			name: "port zero is allowed",
			setup: func() {
				viper.Reset()
				viper.Set("server.port", 0)
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 0, cfg.Server.Port)
			},
		},
		{
			name: "invalid port type",
			setup: func() {
				viper.Reset()
				viper.Set("server.port", "invalid_port")
			},
			expectError: true,
		},
		{
			name: "build root equal to working directory",
			setup: func() {
				viper.Reset()
				viper.Set("paths.build", ".")
			},
			expectError: true,
		},
		{
			name: "build root contains src",
			setup: func() {
				viper.Reset()
				viper.Set("paths.src", "out/src")
				viper.Set("paths.build", "out")
			},
			expectError: true,
		},
		{
			name: "hash format without hash",
			setup: func() {
				viper.Reset()
				viper.Set("styles.hash_format", "{name}{ext}")
			},
			expectError: true,
		},
		{
			name: "unknown log format",
			setup: func() {
				viper.Reset()
				viper.Set("log.format", "xml")
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			defer viper.Reset()

			cfg, err := Load()
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadWithEnvironment(t *testing.T) {
	t.Setenv("ASSETPIPE_SERVER_PORT", "9999")
	t.Setenv("ASSETPIPE_PATHS_BUILD", "public")
	t.Setenv("ASSETPIPE_STYLES_BUILD", "css")
	t.Setenv("ASSETPIPE_DEVELOPMENT_DEBOUNCE", "50ms")
	t.Setenv("ASSETPIPE_DEVELOPMENT_HOT_RELOAD", "false")

	viper.Reset()
	defer viper.Reset()
	BindEnvironment()

	// Nothing but the environment names these keys.
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "public", cfg.Paths.Build)
	assert.Equal(t, "css", cfg.Styles.Build)
	assert.Equal(t, 50*time.Millisecond, cfg.Development.Debounce)
	assert.False(t, cfg.Development.HotReload)
	assert.Equal(t, "src", cfg.Paths.Src)
}

func TestEnvironmentOverridesConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 4000\n  host: 0.0.0.0\n"), 0o644))
	t.Setenv("ASSETPIPE_SERVER_PORT", "5000")

	viper.Reset()
	defer viper.Reset()
	viper.SetConfigFile(path)
	require.NoError(t, viper.ReadInConfig())
	BindEnvironment()

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".assetpipe.yml")
	require.NoError(t, os.WriteFile(file, []byte(`
paths:
  src: site
  build: out
styles:
  compiler:
    command: dart-sass
    args: ["--style=expanded"]
server:
  port: 8081
`), 0o644))

	viper.Reset()
	defer viper.Reset()
	viper.SetConfigFile(file)
	require.NoError(t, viper.ReadInConfig())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "site", cfg.Paths.Src)
	assert.Equal(t, "out", cfg.Paths.Build)
	assert.Equal(t, "dart-sass", cfg.Styles.Compiler.Command)
	assert.Equal(t, []string{"--style=expanded"}, cfg.Styles.Compiler.Args)
	assert.Equal(t, []string{"--embed-source-map"}, cfg.Styles.Compiler.DevArgs)
	assert.Equal(t, 8081, cfg.Server.Port)
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{"src", false},
		{"./build", false},
		{"/tmp/project/build", false},
		{"", true},
		{"../outside", true},
		{"build;rm -rf", true},
		{"$(whoami)", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := validatePath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateServerConfig(t *testing.T) {
	assert.NoError(t, validateServerConfig(&ServerConfig{Port: 3000, Host: "localhost"}))
	assert.Error(t, validateServerConfig(&ServerConfig{Port: 70000}))
	assert.Error(t, validateServerConfig(&ServerConfig{Port: 3000, Host: "localhost;ls"}))
}
