// Package cli wires together the Cobra command tree for the revgate binary.
//
// It defines the root command and its subcommands (run, hook, config, cache,
// history, version), binds flags onto the viper config, builds the review
// pipeline, and returns deterministic exit codes for git hooks.
package cli
