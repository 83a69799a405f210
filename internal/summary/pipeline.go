package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/prsum/internal/changes"
	"github.com/dshills/prsum/internal/logging"
	"github.com/dshills/prsum/internal/providers"
)

// DiffSource reads branch differences from version control. FileDiff must
// return "" rather than an error for files without a textual diff.
type DiffSource interface {
	ChangedFiles(ctx context.Context, base, current string) ([]string, error)
	CommitMessages(ctx context.Context, base, current string) ([]string, error)
	FileDiff(ctx context.Context, base, current, path string) (string, error)
}

// FileInput is what a FileSummarizer sees for one file.
type FileInput struct {
	Path    string
	Diff    string
	Changes []changes.AtomicChange
}

// FileSummarizer produces a per-file summary. An empty result counts as a
// failure.
type FileSummarizer interface {
	SummarizeFile(ctx context.Context, in FileInput, timeout time.Duration) (string, error)
}

// OverallInput is what an OverallSummarizer sees.
type OverallInput struct {
	BaseBranch    string
	CurrentBranch string
	Commits       []string
	ChangedFiles  []string
	// Files holds successful summaries only.
	Files []FileSummary
}

// OverallSummarizer produces the aggregate summary.
type OverallSummarizer interface {
	SummarizeOverall(ctx context.Context, in OverallInput, timeout time.Duration) (string, error)
}

// Observer receives progress callbacks. With Concurrency above one the
// callbacks arrive from several goroutines.
type Observer interface {
	FileStarted(path string, index, total int)
	FileDone(run FileRun, index, total int)
	OverallStarted(successes int)
}

// Options configures a Pipeline.
type Options struct {
	// MaxFiles caps how many eligible files are summarised. Zero means no cap.
	MaxFiles int
	// Timeout bounds each summarizer call.
	Timeout time.Duration
	// Concurrency is the number of files summarised at once. Values below
	// two process files strictly in selection order.
	Concurrency      int
	Selector         Selector
	ValidateCoverage bool
	Logger           *slog.Logger
	Observer         Observer
}

// Pipeline runs per-file and overall summarisation over a DiffSource.
type Pipeline struct {
	source  DiffSource
	files   FileSummarizer
	overall OverallSummarizer
	opts    Options
	log     *slog.Logger
}

// New wires a pipeline from its collaborators.
func New(source DiffSource, files FileSummarizer, overall OverallSummarizer, opts Options) *Pipeline {
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &Pipeline{
		source:  source,
		files:   files,
		overall: overall,
		opts:    opts,
		log:     logging.Component(opts.Logger, "pipeline"),
	}
}

// Run lists the changed files and commits between base and current and
// summarises them. Failing to read either list is a hard error.
func (p *Pipeline) Run(ctx context.Context, target Target) (*Report, error) {
	files, err := p.source.ChangedFiles(ctx, target.Base, target.Current)
	if err != nil {
		return nil, fmt.Errorf("listing changed files: %w", err)
	}
	commits, err := p.source.CommitMessages(ctx, target.Base, target.Current)
	if err != nil {
		return nil, fmt.Errorf("listing commits: %w", err)
	}
	return p.Summarize(ctx, target, files, commits)
}

// Summarize selects from changedFiles, summarises each selected file and
// then the whole change set. Per-file failures are recorded in the report.
// A credential rejection stops the run: the partial report is returned
// together with an error for which providers.IsAuthError holds. Cancelling
// ctx also returns the partial report, with Overall set to Interrupted and
// the context's error.
func (p *Pipeline) Summarize(ctx context.Context, target Target, changedFiles, commits []string) (*Report, error) {
	start := time.Now()
	report := NewReport(target, commits, changedFiles)
	log := p.log.With(logging.FieldRunID, report.RunID)

	sel := p.opts.Selector.Select(changedFiles, p.opts.MaxFiles)
	report.Skipped = sel.Skipped
	log.Info("files selected", "selected", len(sel.Selected), "skipped", len(sel.Skipped))

	if len(changedFiles) == 0 {
		report.Overall = NoChanges
		report.Timing.TotalMs = time.Since(start).Milliseconds()
		return report, nil
	}

	var clock stopwatch
	runs, unprocessed, abortErr := p.summarizeFiles(ctx, target, sel.Selected, &clock)

	report.mu.Lock()
	report.Files = runs
	report.Unprocessed = unprocessed
	report.recomputeFailed()
	report.mu.Unlock()

	if abortErr != nil {
		log.Error("run aborted", "error", abortErr, "unprocessed", len(unprocessed))
		report.Overall = abortedOverall(abortErr)
		report.Timing = clock.timing(start)
		return report, abortErr
	}

	text, err := p.overallText(ctx, report, p.opts.Timeout, &clock)
	switch {
	case providers.IsAuthError(err):
		report.Overall = AuthAborted
		report.Timing = clock.timing(start)
		return report, err
	case err != nil && ctx.Err() != nil:
		log.Warn("overall summary interrupted", "error", err)
		report.Overall = Interrupted
		report.Timing = clock.timing(start)
		return report, ctx.Err()
	case err != nil:
		log.Warn("overall summary failed", "error", err)
		report.Overall = OverallFailed
	default:
		report.Overall = text
	}

	report.Timing = clock.timing(start)
	return report, nil
}

// Retry re-summarises one failed file with the given timeout. It is a
// no-op when path is not in the failed set. On success the file's run is
// replaced and the path leaves the failed set; on failure the report is
// left exactly as it was. Only a credential rejection or cancellation is
// returned as an error.
func (p *Pipeline) Retry(ctx context.Context, report *Report, path string, timeout time.Duration) (*Report, error) {
	prev, ok := report.File(path)
	if !ok || prev.Succeeded {
		return report, nil
	}

	var clock stopwatch
	out := p.processFile(ctx, report.Target(), path, timeout, &clock)
	if out.abort != nil {
		return report, out.abort
	}
	if out.run == nil || !out.run.Succeeded {
		p.log.Info("retry failed", logging.FieldFile, path)
		return report, nil
	}
	out.run.Attempts = prev.Attempts + 1

	report.mu.Lock()
	defer report.mu.Unlock()
	i := report.indexOf(path)
	if i < 0 || report.Files[i].Succeeded {
		// A concurrent retry got there first.
		return report, nil
	}
	report.Files[i] = out.run
	report.recomputeFailed()
	report.Timing.LLMMs += clock.llm.Load()
	p.log.Info("retry succeeded", logging.FieldFile, path)
	return report, nil
}

// RegenerateOverall recomputes the aggregate summary from the files that
// currently succeed. Per-file entries are not touched. When the aggregate
// call fails the previous overall summary is kept and the error returned.
func (p *Pipeline) RegenerateOverall(ctx context.Context, report *Report, timeout time.Duration) (*Report, error) {
	var clock stopwatch
	text, err := p.overallText(ctx, report, timeout, &clock)
	if err != nil {
		return report, fmt.Errorf("regenerating overall summary: %w", err)
	}

	report.mu.Lock()
	report.Overall = text
	report.Timing.LLMMs += clock.llm.Load()
	report.mu.Unlock()
	return report, nil
}

// RetryFailed offers every failed file to confirm and retries the accepted
// ones. When at least one recovers the overall summary is regenerated. It
// returns the number of recovered files, also when it stops early on an
// error; the overall summary is then left as it was.
func (p *Pipeline) RetryFailed(ctx context.Context, report *Report, timeout time.Duration, confirm func(path string) bool) (*Report, int, error) {
	before := len(report.FailedPaths())
	for _, path := range report.FailedPaths() {
		if ctx.Err() != nil {
			return report, before - len(report.FailedPaths()), ctx.Err()
		}
		if confirm != nil && !confirm(path) {
			continue
		}
		if _, err := p.Retry(ctx, report, path, timeout); err != nil {
			return report, before - len(report.FailedPaths()), err
		}
	}

	recovered := before - len(report.FailedPaths())
	if recovered == 0 {
		return report, 0, nil
	}
	_, err := p.RegenerateOverall(ctx, report, timeout)
	return report, recovered, err
}

// overallText builds the aggregate from the successful subset. With no
// successes it returns the fixed sentinel without calling the service.
func (p *Pipeline) overallText(ctx context.Context, report *Report, timeout time.Duration, clock *stopwatch) (string, error) {
	succeeded := report.Succeeded()
	p.opts.Observer.OverallStarted(len(succeeded))
	if len(succeeded) == 0 {
		return NoSuccessfulFiles, nil
	}

	snap := report.Snapshot()
	in := OverallInput{
		BaseBranch:    snap.BaseBranch,
		CurrentBranch: snap.CurrentBranch,
		Commits:       snap.Commits,
		ChangedFiles:  snap.ChangedFiles,
	}
	for _, f := range succeeded {
		in.Files = append(in.Files, FileSummary{Path: f.Path, Summary: f.Summary})
	}

	start := time.Now()
	text, err := p.overall.SummarizeOverall(ctx, in, timeout)
	clock.llm.Add(time.Since(start).Milliseconds())
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("empty overall summary")
	}
	return strings.TrimSpace(text), nil
}

// fileOutcome is the result of processing one file. run is nil when the
// file had no diff or was never completed; abort is set for credential
// rejections and cancellation.
type fileOutcome struct {
	run   *FileRun
	abort error
}

func (p *Pipeline) processFile(ctx context.Context, target Target, path string, timeout time.Duration, clock *stopwatch) fileOutcome {
	log := p.log.With(logging.FieldFile, path)

	vcsStart := time.Now()
	diff, err := p.source.FileDiff(ctx, target.Base, target.Current, path)
	clock.vcs.Add(time.Since(vcsStart).Milliseconds())
	if err != nil {
		if ctx.Err() != nil {
			return fileOutcome{abort: ctx.Err()}
		}
		log.Warn("fetching diff failed", "error", err)
		return fileOutcome{run: failedRun(path, "", nil, fmt.Errorf("fetching diff: %w", err))}
	}
	if strings.TrimSpace(diff) == "" {
		log.Debug("empty diff, skipping")
		return fileOutcome{}
	}

	list := changes.Merge(changes.Parse(diff))

	llmStart := time.Now()
	text, err := p.files.SummarizeFile(ctx, FileInput{Path: path, Diff: diff, Changes: list}, timeout)
	clock.llm.Add(time.Since(llmStart).Milliseconds())

	switch {
	case providers.IsAuthError(err):
		return fileOutcome{abort: err}
	case err != nil && ctx.Err() != nil:
		return fileOutcome{abort: ctx.Err()}
	case err != nil:
		log.Warn("summarization failed", "error", err)
		return fileOutcome{run: failedRun(path, diff, list, err)}
	case strings.TrimSpace(text) == "":
		log.Warn("summarization returned no text")
		return fileOutcome{run: failedRun(path, diff, list, errors.New("empty summary"))}
	}

	run := &FileRun{
		Path:      path,
		Diff:      diff,
		Changes:   list,
		Summary:   strings.TrimSpace(text),
		Succeeded: true,
		Attempts:  1,
	}
	if p.opts.ValidateCoverage {
		cov := changes.MeasureCoverage(list, run.Summary)
		run.Coverage = &cov
		if cov.Mentioned < cov.Total {
			log.Debug("summary misses changes", "mentioned", cov.Mentioned, "total", cov.Total)
		}
	}
	return fileOutcome{run: run}
}

func abortedOverall(err error) string {
	if providers.IsAuthError(err) {
		return AuthAborted
	}
	return Interrupted
}

func failedRun(path, diff string, list []changes.AtomicChange, err error) *FileRun {
	return &FileRun{
		Path:     path,
		Diff:     diff,
		Changes:  list,
		Summary:  FailedPlaceholder,
		Error:    err.Error(),
		Attempts: 1,
	}
}

// summarizeFiles processes the selection and returns the completed runs in
// selection order, the paths never completed, and the abort error if any.
func (p *Pipeline) summarizeFiles(ctx context.Context, target Target, selected []string, clock *stopwatch) ([]*FileRun, []string, error) {
	if p.opts.Concurrency < 2 {
		return p.summarizeSequential(ctx, target, selected, clock)
	}
	return p.summarizeConcurrent(ctx, target, selected, clock)
}

func (p *Pipeline) summarizeSequential(ctx context.Context, target Target, selected []string, clock *stopwatch) ([]*FileRun, []string, error) {
	runs := make([]*FileRun, 0, len(selected))
	total := len(selected)
	for i, path := range selected {
		if err := ctx.Err(); err != nil {
			return runs, append([]string(nil), selected[i:]...), err
		}
		p.opts.Observer.FileStarted(path, i, total)
		out := p.processFile(ctx, target, path, p.opts.Timeout, clock)
		if out.abort != nil {
			return runs, append([]string(nil), selected[i:]...), out.abort
		}
		if out.run != nil {
			runs = append(runs, out.run)
			p.opts.Observer.FileDone(*out.run, i, total)
		}
	}
	return runs, nil, nil
}

// summarizeConcurrent fans files out over a bounded worker set. Each worker
// writes only its own slot; slots are merged in selection order afterwards.
func (p *Pipeline) summarizeConcurrent(ctx context.Context, target Target, selected []string, clock *stopwatch) ([]*FileRun, []string, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type slot struct {
		out  fileOutcome
		done bool
	}
	slots := make([]slot, len(selected))
	total := len(selected)

	var (
		wg       sync.WaitGroup
		abortMu  sync.Mutex
		abortErr error
	)
	sem := make(chan struct{}, p.opts.Concurrency)

	for i, path := range selected {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}: // acquire
			case <-runCtx.Done():
				return
			}
			defer func() { <-sem }() // release
			if runCtx.Err() != nil {
				return
			}

			p.opts.Observer.FileStarted(path, i, total)
			out := p.processFile(runCtx, target, path, p.opts.Timeout, clock)
			if out.abort != nil {
				abortMu.Lock()
				if abortErr == nil && providers.IsAuthError(out.abort) {
					abortErr = out.abort
				}
				abortMu.Unlock()
				cancel()
				return
			}
			slots[i] = slot{out: out, done: true}
			if out.run != nil {
				p.opts.Observer.FileDone(*out.run, i, total)
			}
		}(i, path)
	}
	wg.Wait()

	if abortErr == nil && ctx.Err() != nil {
		abortErr = ctx.Err()
	}

	var (
		runs        = make([]*FileRun, 0, len(selected))
		unprocessed []string
	)
	for i, s := range slots {
		switch {
		case !s.done:
			unprocessed = append(unprocessed, selected[i])
		case s.out.run != nil:
			runs = append(runs, s.out.run)
		}
	}
	if abortErr == nil {
		unprocessed = nil
	}
	return runs, unprocessed, abortErr
}

// stopwatch accumulates time spent in collaborators across goroutines.
type stopwatch struct {
	vcs atomic.Int64
	llm atomic.Int64
}

func (s *stopwatch) timing(start time.Time) Timing {
	return Timing{
		VCSMs:   s.vcs.Load(),
		LLMMs:   s.llm.Load(),
		TotalMs: time.Since(start).Milliseconds(),
	}
}

type nopObserver struct{}

func (nopObserver) FileStarted(string, int, int) {}
func (nopObserver) FileDone(FileRun, int, int)   {}
func (nopObserver) OverallStarted(int)           {}
