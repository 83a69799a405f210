package summary

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/prsum/internal/changes"
)

// Fixed texts written into reports.
const (
	// FailedPlaceholder replaces the summary of a file whose summarisation failed.
	FailedPlaceholder = "Summary could not be generated for this file due to LLM timeout or error."
	// NoSuccessfulFiles is the overall summary when no file succeeded.
	NoSuccessfulFiles = "No files could be summarized successfully."
	// OverallFailed is the overall summary when the aggregate call failed.
	OverallFailed = "Error generating overall summary due to LLM timeout or error."
	// NoChanges is the overall summary when the branches do not differ.
	NoChanges = "No changes detected between branches."
	// AuthAborted is the overall summary when the run stopped on a credential rejection.
	AuthAborted = "Summarization stopped: the text-generation service rejected the configured credentials."
	// Interrupted is the overall summary when the run was cancelled before it finished.
	Interrupted = "Summarization interrupted before all files were processed."
)

const (
	toolName      = "prsum"
	schemaVersion = "1.0"
)

// RepoInfo contains repository metadata.
type RepoInfo struct {
	Root string `json:"root"`
	Head string `json:"head"`
}

// Target identifies what is being summarised.
type Target struct {
	Repo    RepoInfo
	Base    string
	Current string
}

// FileRun is the per-file pipeline state. A FileRun stored in a Report is
// never modified; a retry replaces it.
type FileRun struct {
	Path      string                 `json:"path"`
	Diff      string                 `json:"diff"`
	Changes   []changes.AtomicChange `json:"changes"`
	Summary   string                 `json:"summary"`
	Succeeded bool                   `json:"succeeded"`
	Error     string                 `json:"error,omitempty"`
	Attempts  int                    `json:"attempts"`
	Coverage  *changes.Coverage      `json:"coverage,omitempty"`
}

// Counts tallies the run's changes by kind.
func (r FileRun) Counts() changes.KindCounts {
	return changes.Counts(r.Changes)
}

// Timing contains performance metrics.
type Timing struct {
	VCSMs   int64 `json:"vcsMs"`
	LLMMs   int64 `json:"llmMs"`
	TotalMs int64 `json:"totalMs"`
}

// Report is the aggregate result of one pipeline run.
//
// Exported fields may be read directly only while no retry can be in
// flight; concurrent readers should use Snapshot.
type Report struct {
	mu sync.RWMutex

	Tool          string    `json:"tool"`
	Version       string    `json:"version"`
	RunID         string    `json:"runId"`
	CreatedAt     time.Time `json:"createdAt"`
	Repo          RepoInfo  `json:"repo"`
	BaseBranch    string    `json:"baseBranch"`
	CurrentBranch string    `json:"currentBranch"`
	Commits       []string  `json:"commits"`
	ChangedFiles  []string  `json:"changedFiles"`
	// Files holds one entry per summarised file, in selection order.
	Files []*FileRun `json:"files"`
	// Failed always equals the paths of Files entries with Succeeded unset.
	Failed []string `json:"failed"`
	// Skipped lists files left out by the exclusion rules or the file limit.
	Skipped []string `json:"skipped,omitempty"`
	// Unprocessed lists selected files never summarised because the run aborted.
	Unprocessed []string `json:"unprocessed,omitempty"`
	Overall     string   `json:"overall"`
	Timing      Timing   `json:"timing"`
}

// NewReport returns an empty report for target with a fresh run ID.
func NewReport(target Target, commits, changedFiles []string) *Report {
	return &Report{
		Tool:          toolName,
		Version:       schemaVersion,
		RunID:         uuid.NewString(),
		CreatedAt:     time.Now().UTC(),
		Repo:          target.Repo,
		BaseBranch:    target.Base,
		CurrentBranch: target.Current,
		Commits:       nonNil(commits),
		ChangedFiles:  nonNil(changedFiles),
		Files:         []*FileRun{},
		Failed:        []string{},
	}
}

// Target returns the branches and repository the report describes.
func (r *Report) Target() Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Target{Repo: r.Repo, Base: r.BaseBranch, Current: r.CurrentBranch}
}

// File returns a copy of the run for path.
func (r *Report) File(path string) (FileRun, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexOf(path); i >= 0 {
		return *r.Files[i], true
	}
	return FileRun{}, false
}

// IsFailed reports whether path is currently in the failed set.
func (r *Report) IsFailed(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Contains(r.Failed, path)
}

// FailedPaths returns a copy of the failed set.
func (r *Report) FailedPaths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.Failed)
}

// Succeeded returns copies of the successful runs in selection order.
func (r *Report) Succeeded() []FileRun {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []FileRun
	for _, f := range r.Files {
		if f.Succeeded {
			out = append(out, *f)
		}
	}
	return out
}

// Snapshot returns a deep copy that is safe to read without locking.
func (r *Report) Snapshot() *Report {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cp := &Report{
		Tool:          r.Tool,
		Version:       r.Version,
		RunID:         r.RunID,
		CreatedAt:     r.CreatedAt,
		Repo:          r.Repo,
		BaseBranch:    r.BaseBranch,
		CurrentBranch: r.CurrentBranch,
		Commits:       slices.Clone(r.Commits),
		ChangedFiles:  slices.Clone(r.ChangedFiles),
		Files:         make([]*FileRun, len(r.Files)),
		Failed:        slices.Clone(r.Failed),
		Skipped:       slices.Clone(r.Skipped),
		Unprocessed:   slices.Clone(r.Unprocessed),
		Overall:       r.Overall,
		Timing:        r.Timing,
	}
	for i, f := range r.Files {
		run := *f
		cp.Files[i] = &run
	}
	return cp
}

// CheckInvariants verifies that Failed mirrors the unsuccessful runs and
// that every change record is well formed.
func (r *Report) CheckInvariants() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var want []string
	seen := make(map[string]bool, len(r.Files))
	for _, f := range r.Files {
		if seen[f.Path] {
			return fmt.Errorf("duplicate file run for %s", f.Path)
		}
		seen[f.Path] = true
		if !f.Succeeded {
			want = append(want, f.Path)
		}
		for i, c := range f.Changes {
			if err := c.Validate(); err != nil {
				return fmt.Errorf("%s change %d: %w", f.Path, i+1, err)
			}
		}
	}
	if !slices.Equal(want, r.Failed) && !(len(want) == 0 && len(r.Failed) == 0) {
		return fmt.Errorf("failed set %v does not match unsuccessful runs %v", r.Failed, want)
	}
	return nil
}

func (r *Report) indexOf(path string) int {
	return slices.IndexFunc(r.Files, func(f *FileRun) bool { return f.Path == path })
}

// recomputeFailed rebuilds Failed from Files. Callers hold the write lock.
func (r *Report) recomputeFailed() {
	failed := make([]string, 0, len(r.Files))
	for _, f := range r.Files {
		if !f.Succeeded {
			failed = append(failed, f.Path)
		}
	}
	r.Failed = failed
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clone(s)
}
