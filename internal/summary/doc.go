// Package summary drives per-file and overall pull request summarisation.
//
// A [Pipeline] selects the changed files worth summarising, turns each file
// diff into atomic changes, asks a [FileSummarizer] for a per-file summary
// and finally asks an [OverallSummarizer] for an aggregate built only from
// the files that succeeded. Failures are recorded per file with a fixed
// placeholder and never abort the batch; only a credential rejection from
// the text-generation service stops the run early.
//
// Failed files can be retried one at a time with [Pipeline.Retry] and the
// aggregate refreshed with [Pipeline.RegenerateOverall]. Retries replace a
// [FileRun] atomically under the report's lock, so concurrent readers using
// [Report.Snapshot] never observe a half-updated entry.
package summary
