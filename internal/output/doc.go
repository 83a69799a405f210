// Package output renders summary reports for display, export or machine
// consumption.
//
// Four formats are supported:
//   - text     human-readable terminal output (default)
//   - markdown the export document, byte-for-byte stable for a given report
//   - json     full structured report
//   - html     the markdown export rendered to a standalone page
//
// Use [GetWriter] to obtain a [Writer] for a format string, or [WriteReport]
// to write straight to a file or stdout.
package output
