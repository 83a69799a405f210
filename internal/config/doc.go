// Package config loads and merges prsum configuration.
//
// Configuration is resolved in the following order (highest precedence first):
//  1. Command-line flags, passed to [Load] as an overrides map
//  2. Environment variables (PRSUM_PROVIDER, PRSUM_MODEL, PRSUM_MAX_FILES, ...)
//  3. Config file at $XDG_CONFIG_HOME/prsum/config.toml
//  4. Built-in defaults from [Default]
//
// The TOML file is decoded on top of the defaults, so keys it omits keep
// their default values. [SetField] addresses nested keys with a dot, for
// example "cache.ttl_seconds".
package config
