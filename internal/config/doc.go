// Package config loads, normalizes and validates scenarr's TOML configuration.
//
// Values start from Default(), are overlaid by the TOML file, then by
// SCENARR_* environment variables (optionally sourced from a .env file) for
// secrets such as API keys and client passwords.
package config
