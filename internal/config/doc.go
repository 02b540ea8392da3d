// Package config loads revgate configuration.
//
// Precedence (highest to lowest):
//  1. CLI flags
//  2. Environment variables, REVGATE_ plus the upper-cased key with dots
//     replaced by underscores (REVGATE_PROVIDER, REVGATE_CACHE_ENABLED)
//  3. The repository's .revgate.yaml, or the file named by --config
//  4. Built-in defaults
//
// Each call to [NewViper] builds an independent viper instance; there is no
// package-level configuration state. [Load] decodes and validates it, and a
// Config that fails [Config.Validate] wraps [ErrInvalid].
//
// [NewLogger] sets up the rotating slog file logger.
package config
