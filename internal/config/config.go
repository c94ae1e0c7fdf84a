package config

import (
	"fmt"
	"time"
)

// AppName names the per-user configuration directory.
const AppName = "keysync"

// Config is the complete runtime configuration.
type Config struct {
	Watch    WatchConfig    `mapstructure:"watch"`
	Git      GitConfig      `mapstructure:"git"`
	Autosave AutosaveConfig `mapstructure:"autosave"`
	LSP      LSPConfig      `mapstructure:"lsp"`
	Log      LogConfig      `mapstructure:"log"`
	Paths    PathsConfig    `mapstructure:"paths"`
}

// WatchConfig controls the filesystem watcher and the refresh debounce.
type WatchConfig struct {
	// Debounce is the quiet window after the last change before a refresh fires.
	Debounce time.Duration `mapstructure:"debounce"`

	// MaxDeferral caps how long a continuous stream of changes may postpone a
	// refresh. Zero disables the cap.
	MaxDeferral time.Duration `mapstructure:"max_deferral"`

	// BatchInterval groups raw watcher events into one change event.
	BatchInterval time.Duration `mapstructure:"batch_interval"`

	// Ignore lists extra gitignore-style patterns excluded from watching.
	Ignore []string `mapstructure:"ignore"`
}

// GitConfig controls the git state worker.
type GitConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// AutosaveConfig controls periodic autosave.
type AutosaveConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// LSPConfig controls language server sessions.
type LSPConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// InitTimeout bounds the blocking initialize handshake.
	InitTimeout time.Duration `mapstructure:"init_timeout"`

	// Servers maps a file extension (without the dot) to a server command.
	Servers map[string]ServerConfig `mapstructure:"servers"`
}

// ServerConfig describes how to launch one language server.
type ServerConfig struct {
	Command    string   `mapstructure:"command"`
	Args       []string `mapstructure:"args"`
	LanguageID string   `mapstructure:"language_id"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// PathsConfig overrides resolved directories.
type PathsConfig struct {
	// ConfigDir overrides ConfigDir(AppName) when set.
	ConfigDir string `mapstructure:"config_dir"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Watch: WatchConfig{
			Debounce:      120 * time.Millisecond,
			BatchInterval: 250 * time.Millisecond,
		},
		Git: GitConfig{Enabled: true},
		Autosave: AutosaveConfig{
			Enabled:  true,
			Interval: 2 * time.Second,
		},
		LSP: LSPConfig{
			Enabled:     true,
			InitTimeout: 3 * time.Second,
			Servers: map[string]ServerConfig{
				"rs": {Command: "rust-analyzer", LanguageID: "rust"},
				"go": {Command: "gopls", LanguageID: "go"},
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Watch.Debounce < 0 {
		return &ValidationError{Path: "watch.debounce", Message: "must not be negative", Value: c.Watch.Debounce}
	}
	if c.Watch.MaxDeferral < 0 {
		return &ValidationError{Path: "watch.max_deferral", Message: "must not be negative", Value: c.Watch.MaxDeferral}
	}
	if c.Watch.MaxDeferral > 0 && c.Watch.MaxDeferral < c.Watch.Debounce {
		return &ValidationError{Path: "watch.max_deferral", Message: "must be at least watch.debounce", Value: c.Watch.MaxDeferral}
	}
	if c.Watch.BatchInterval <= 0 {
		return &ValidationError{Path: "watch.batch_interval", Message: "must be positive", Value: c.Watch.BatchInterval}
	}
	if c.Autosave.Enabled && c.Autosave.Interval <= 0 {
		return &ValidationError{Path: "autosave.interval", Message: "must be positive", Value: c.Autosave.Interval}
	}
	if c.LSP.Enabled && c.LSP.InitTimeout <= 0 {
		return &ValidationError{Path: "lsp.init_timeout", Message: "must be positive", Value: c.LSP.InitTimeout}
	}
	for ext, srv := range c.LSP.Servers {
		if srv.Command == "" {
			return &ValidationError{Path: fmt.Sprintf("lsp.servers.%s.command", ext), Message: "must not be empty", Value: srv.Command}
		}
	}
	return nil
}

// ServerFor returns the server configured for a file extension such as "go".
func (c *LSPConfig) ServerFor(ext string) (ServerConfig, bool) {
	srv, ok := c.Servers[ext]
	if !ok {
		return ServerConfig{}, false
	}
	if srv.LanguageID == "" {
		srv.LanguageID = ext
	}
	return srv, true
}

// ResolvedConfigDir returns Paths.ConfigDir or the per-user default.
func (c *Config) ResolvedConfigDir() (string, error) {
	if c.Paths.ConfigDir != "" {
		return c.Paths.ConfigDir, nil
	}
	return ConfigDir(AppName)
}
