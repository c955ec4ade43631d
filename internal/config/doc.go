// Package config loads, normalizes, and validates Chronicle's TOML
// configuration.
package config
