// Package config loads, normalizes, and validates gameshelf configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// GAMESHELF_STEAM_COUNTRY. The Config type centralizes every knob the daemon
// and CLI need: where the catalog database lives, which file extensions count
// as games, how aggressively scans fan out, and which metadata providers are
// consulted with which priority.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, lower-cased extensions, and clear validation errors.
package config
