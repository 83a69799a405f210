// Package logging builds the slog loggers used for diagnostics.
//
// Diagnostics go to stderr so that rendered reports on stdout stay clean.
// Components attach a "component" attribute; the pipeline adds the run ID
// and file path under the keys defined here.
package logging
