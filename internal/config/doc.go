// Package config loads, validates, and defaults the TOML configuration that
// wires together webmill's storage directories, encoder parameters, progress
// estimation, and background color detection.
package config
