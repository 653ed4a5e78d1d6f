// Package config loads, normalizes, and validates gebr configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts) and reads TOML files. Besides the fixed sections, every table
// whose name starts with "mpi-" describes one MPI flavor; those are collected
// into Config.MPI keyed by the flavor name.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
