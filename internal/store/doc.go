// Package store persists summary reports so that failed files can be
// retried and the overall summary regenerated in a later invocation.
//
// Reports live in a single SQLite table, one row per run, with the full
// report as a JSON payload checked against an embedded JSON schema on every
// write and read. A lock file next to the database serialises the
// load-mutate-save sequences of concurrent prsum processes.
package store
