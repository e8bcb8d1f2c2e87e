// Package config provides configuration management for assetpipe using Viper
// for loading from .assetpipe.yml, ASSETPIPE_ environment variables and
// command-line flags.
//
// The defaults mirror a conventional layout: sources under src/, stylesheet
// entry points in src/styles, HTML templates anywhere under src/, and output
// written to build/ with stylesheets published at assets/css.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// FileName is the config file looked up in the working directory.
	FileName = ".assetpipe.yml"
	// EnvPrefix prefixes environment overrides, as in ASSETPIPE_SERVER_PORT.
	EnvPrefix = "ASSETPIPE"
)

type Config struct {
	Paths       PathsConfig       `mapstructure:"paths" yaml:"paths"`
	Styles      StylesConfig      `mapstructure:"styles" yaml:"styles"`
	HTML        HTMLConfig        `mapstructure:"html" yaml:"html"`
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Development DevelopmentConfig `mapstructure:"development" yaml:"development"`
	Log         LogConfig         `mapstructure:"log" yaml:"log"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
}

// PathsConfig holds the source and output roots.
type PathsConfig struct {
	Src   string `mapstructure:"src" yaml:"src"`
	Build string `mapstructure:"build" yaml:"build"`
}

type StylesConfig struct {
	// Src is the entry point pattern, relative to the source root.
	Src string `mapstructure:"src" yaml:"src"`
	// Watch is the pattern whose changes trigger a styles rebuild.
	Watch string `mapstructure:"watch" yaml:"watch"`
	// Build is the output subpath under the build root; it doubles as the
	// public path prefix in rendered <link> tags.
	Build      string         `mapstructure:"build" yaml:"build"`
	Group      string         `mapstructure:"group" yaml:"group"`
	HashFormat string         `mapstructure:"hash_format" yaml:"hash_format"`
	Prefixes   []string       `mapstructure:"prefixes" yaml:"prefixes"`
	Compiler   CompilerConfig `mapstructure:"compiler" yaml:"compiler"`
}

type CompilerConfig struct {
	Command string   `mapstructure:"command" yaml:"command"`
	Args    []string `mapstructure:"args" yaml:"args"`
	DevArgs []string `mapstructure:"dev_args" yaml:"dev_args"`
}

type HTMLConfig struct {
	Src   string `mapstructure:"src" yaml:"src"`
	Watch string `mapstructure:"watch" yaml:"watch"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port" yaml:"port"`
	Host           string   `mapstructure:"host" yaml:"host"`
	Open           bool     `mapstructure:"open" yaml:"open"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

type DevelopmentConfig struct {
	HotReload    bool          `mapstructure:"hot_reload" yaml:"hot_reload"`
	CSSInjection bool          `mapstructure:"css_injection" yaml:"css_injection"`
	ErrorOverlay bool          `mapstructure:"error_overlay" yaml:"error_overlay"`
	Optimize     bool          `mapstructure:"optimize" yaml:"optimize"`
	Debounce     time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			Src:   "src",
			Build: "build",
		},
		Styles: StylesConfig{
			Src:        "styles/*.{scss,css}",
			Watch:      "styles/**/*.{scss,css}",
			Build:      "assets/css",
			Group:      "styles",
			HashFormat: "{name}.{hash}{ext}",
			Prefixes:   []string{"-webkit-", "-ms-"},
			Compiler: CompilerConfig{
				Command: "sass",
				Args:    []string{"--no-source-map"},
				DevArgs: []string{"--embed-source-map"},
			},
		},
		HTML: HTMLConfig{
			Src:   "**/*.html",
			Watch: "**/*.html",
		},
		Server: ServerConfig{
			Port:           3000,
			Host:           "localhost",
			AllowedOrigins: []string{},
		},
		Development: DevelopmentConfig{
			HotReload:    true,
			CSSInjection: true,
			ErrorOverlay: true,
			Debounce:     300 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// SetDefaults registers every key of Default with the global viper instance.
// Unmarshal only decodes keys viper knows about, so environment overrides
// for keys absent from the config file depend on this.
func SetDefaults() {
	d := Default()
	defaults := map[string]any{
		"paths.src":                 d.Paths.Src,
		"paths.build":               d.Paths.Build,
		"styles.src":                d.Styles.Src,
		"styles.watch":              d.Styles.Watch,
		"styles.build":              d.Styles.Build,
		"styles.group":              d.Styles.Group,
		"styles.hash_format":        d.Styles.HashFormat,
		"styles.prefixes":           d.Styles.Prefixes,
		"styles.compiler.command":   d.Styles.Compiler.Command,
		"styles.compiler.args":      d.Styles.Compiler.Args,
		"styles.compiler.dev_args":  d.Styles.Compiler.DevArgs,
		"html.src":                  d.HTML.Src,
		"html.watch":                d.HTML.Watch,
		"server.port":               d.Server.Port,
		"server.host":               d.Server.Host,
		"server.open":               d.Server.Open,
		"server.allowed_origins":    d.Server.AllowedOrigins,
		"development.hot_reload":    d.Development.HotReload,
		"development.css_injection": d.Development.CSSInjection,
		"development.error_overlay": d.Development.ErrorOverlay,
		"development.optimize":      d.Development.Optimize,
		"development.debounce":      d.Development.Debounce,
		"log.level":                 d.Log.Level,
		"log.format":                d.Log.Format,
		"metrics.enabled":           d.Metrics.Enabled,
	}
	for key, value := range defaults {
		viper.SetDefault(key, value)
	}
}

// BindEnvironment makes ASSETPIPE_ variables override config keys, with
// dots in a key written as underscores: ASSETPIPE_PATHS_BUILD.
func BindEnvironment() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// Load reads the configuration from the global viper instance, fills in
// defaults for anything unset and validates the result.
func Load() (*Config, error) {
	SetDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func applyDefaults(config *Config) {
	defaults := Default()

	if config.Paths.Src == "" {
		config.Paths.Src = defaults.Paths.Src
	}
	if config.Paths.Build == "" {
		config.Paths.Build = defaults.Paths.Build
	}

	if config.Styles.Src == "" {
		config.Styles.Src = defaults.Styles.Src
	}
	if config.Styles.Watch == "" {
		config.Styles.Watch = defaults.Styles.Watch
	}
	if config.Styles.Build == "" {
		config.Styles.Build = defaults.Styles.Build
	}
	if config.Styles.Group == "" {
		config.Styles.Group = defaults.Styles.Group
	}
	if config.Styles.HashFormat == "" {
		config.Styles.HashFormat = defaults.Styles.HashFormat
	}
	// Prefixes may be set to an empty list on purpose to disable prefixing.
	if !viper.IsSet("styles.prefixes") {
		config.Styles.Prefixes = defaults.Styles.Prefixes
	}
	if config.Styles.Compiler.Command == "" {
		config.Styles.Compiler.Command = defaults.Styles.Compiler.Command
	}
	if !viper.IsSet("styles.compiler.args") {
		config.Styles.Compiler.Args = defaults.Styles.Compiler.Args
	}
	if !viper.IsSet("styles.compiler.dev_args") {
		config.Styles.Compiler.DevArgs = defaults.Styles.Compiler.DevArgs
	}

	if config.HTML.Src == "" {
		config.HTML.Src = defaults.HTML.Src
	}
	if config.HTML.Watch == "" {
		config.HTML.Watch = defaults.HTML.Watch
	}

	if !viper.IsSet("server.port") {
		config.Server.Port = defaults.Server.Port
	}
	if config.Server.Host == "" {
		config.Server.Host = defaults.Server.Host
	}
	if config.Server.AllowedOrigins == nil {
		config.Server.AllowedOrigins = defaults.Server.AllowedOrigins
	}

	// Bools that default to true have to be checked with IsSet, otherwise an
	// explicit false would be overwritten.
	if !viper.IsSet("development.hot_reload") {
		config.Development.HotReload = defaults.Development.HotReload
	}
	if !viper.IsSet("development.css_injection") {
		config.Development.CSSInjection = defaults.Development.CSSInjection
	}
	if !viper.IsSet("development.error_overlay") {
		config.Development.ErrorOverlay = defaults.Development.ErrorOverlay
	}
	if config.Development.Debounce <= 0 {
		config.Development.Debounce = defaults.Development.Debounce
	}

	if config.Log.Level == "" {
		config.Log.Level = defaults.Log.Level
	}
	if config.Log.Format == "" {
		config.Log.Format = defaults.Log.Format
	}

	if !viper.IsSet("metrics.enabled") {
		config.Metrics.Enabled = defaults.Metrics.Enabled
	}
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validatePathsConfig(&config.Paths); err != nil {
		return fmt.Errorf("paths config: %w", err)
	}

	if err := validateStylesConfig(&config.Styles); err != nil {
		return fmt.Errorf("styles config: %w", err)
	}

	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if config.Log.Format != "text" && config.Log.Format != "json" {
		return fmt.Errorf("log config: unknown format %q", config.Log.Format)
	}

	return nil
}

// validatePathsConfig rejects build roots that a clean would make dangerous
// to remove.
func validatePathsConfig(config *PathsConfig) error {
	if err := validatePath(config.Src); err != nil {
		return fmt.Errorf("invalid src '%s': %w", config.Src, err)
	}
	if err := validatePath(config.Build); err != nil {
		return fmt.Errorf("invalid build '%s': %w", config.Build, err)
	}

	build := filepath.Clean(config.Build)
	if build == "." || build == string(filepath.Separator) {
		return fmt.Errorf("build root %q would remove the working directory on clean", config.Build)
	}

	src := filepath.Clean(config.Src)
	if build == src {
		return fmt.Errorf("build root must differ from src root %q", config.Src)
	}
	if rel, err := filepath.Rel(build, src); err == nil && !strings.HasPrefix(rel, "..") {
		return fmt.Errorf("build root %q contains src root %q", config.Build, config.Src)
	}

	return nil
}

func validateStylesConfig(config *StylesConfig) error {
	if !strings.Contains(config.HashFormat, "{hash}") {
		return fmt.Errorf("hash_format %q must contain {hash}", config.HashFormat)
	}
	if strings.Contains(filepath.Clean(config.Build), "..") {
		return fmt.Errorf("build path contains traversal: %s", config.Build)
	}
	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// Allow 0 for system-assigned ports in testing
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if config.Host != "" {
		dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
		for _, char := range dangerousChars {
			if strings.Contains(config.Host, char) {
				return fmt.Errorf("host contains dangerous character: %s", char)
			}
		}
	}

	return nil
}

// validatePath validates a file path for security
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)

	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}
