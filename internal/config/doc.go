// Package config provides the configuration model for keysync.
//
// Configuration is resolved in three layers, later layers overriding earlier:
//
//  1. Built-in defaults (Default)
//  2. A config file, TOML or YAML chosen by extension
//  3. KEYSYNC_* environment variables
//
// Files and environment are first read into generic maps, merged, and then
// decoded into Config with mapstructure so durations may be written as
// strings such as "120ms".
//
// # Basic Usage
//
//	cfg, err := config.Load("")            // default path under ConfigDir
//	cfg, err := config.Load("keysync.yml") // explicit file
//
// ConfigDir resolves the per-user directory that also holds autosave files.
package config
