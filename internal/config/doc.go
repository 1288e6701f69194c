// Package config loads, normalizes, and validates reel's TOML configuration.
//
// Defaults are overlaid first, then the config file (if present), then
// normalization fills derived values and expands paths, and validation
// rejects unusable combinations once at startup. Render settings here are
// job defaults; per-job overrides are applied by the render package.
package config
