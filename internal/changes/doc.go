// Package changes turns unified-diff text into line-addressable atomic changes.
//
// [Parse] scans a single file's diff and emits one [AtomicChange] per
// non-blank added or removed line, numbered with the literal line numbers
// encoded in the hunk headers and carrying up to two preceding context lines.
// [Merge] collapses a deletion immediately followed by a nearby addition into a
// single modification. [Format] renders the result as the enumerated block that
// is embedded in summarisation prompts, and [MeasureCoverage] estimates how many
// of the changes a generated summary actually mentions.
//
// Parsing never fails: malformed hunk headers are ignored and the parser
// continues with whatever counters it last had.
package changes
