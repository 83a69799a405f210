// Package cache provides a file-based cache for generated summaries.
//
// Entries are keyed by a SHA-256 hash of the provider, model, sampling
// settings and the redacted prompt. Only successful generations are stored.
// Expired entries miss on read and are removed by Clear.
//
// The default cache directory is $XDG_CACHE_HOME/prsum (or the
// OS-appropriate equivalent). Writes take an advisory lock on a file in the
// cache directory so concurrent prsum processes do not interleave.
package cache
