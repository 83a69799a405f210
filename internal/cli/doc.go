// Package cli wires together the Cobra command tree for the prsum binary.
//
// It defines the root command and all subcommands (summarize, retry,
// regenerate, failed, export, runs, publish, config, models, cache, version), binds
// flags, reads configuration, runs the summarisation pipeline against git,
// persists reports for later retries, and returns deterministic exit codes.
package cli
