package gitctx

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Repo is a git working tree that diffs branches by shelling out to git.
type Repo struct {
	Dir string
}

// RepoMeta contains git repository metadata.
type RepoMeta struct {
	Root   string `json:"root"`
	Head   string `json:"head"`
	Branch string `json:"branch"`
}

// Open verifies that dir is inside a git work tree and returns a Repo rooted
// at its top level.
func Open(ctx context.Context, dir string) (*Repo, error) {
	if dir == "" {
		dir = "."
	}
	root, err := gitOutput(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, fmt.Errorf("not a git repository: %w", err)
	}
	return &Repo{Dir: strings.TrimSpace(root)}, nil
}

// Meta collects repository metadata from git.
func (r *Repo) Meta(ctx context.Context) (RepoMeta, error) {
	head, err := r.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		head = "" // new repo with no commits
	}
	branch, err := r.CurrentBranch(ctx)
	if err != nil {
		branch = ""
	}
	return RepoMeta{
		Root:   r.Dir,
		Head:   strings.TrimSpace(head),
		Branch: branch,
	}, nil
}

// CurrentBranch returns the checked-out branch name.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	out, err := r.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse --abbrev-ref HEAD: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// HasRef reports whether ref resolves to a commit.
func (r *Repo) HasRef(ctx context.Context, ref string) bool {
	_, err := r.git(ctx, "rev-parse", "--verify", "--quiet", ref+"^{commit}")
	return err == nil
}

// DetectBaseBranch returns "main" if it exists, then "master", then fallback.
func (r *Repo) DetectBaseBranch(ctx context.Context, fallback string) string {
	for _, b := range []string{"main", "master"} {
		if r.HasRef(ctx, b) {
			return b
		}
	}
	return fallback
}

// Resolve fails when either branch does not name a commit.
func (r *Repo) Resolve(ctx context.Context, base, current string) error {
	var missing []string
	for _, ref := range []string{base, current} {
		if ref == "" || !r.HasRef(ctx, ref) {
			missing = append(missing, fmt.Sprintf("%q", ref))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("cannot resolve branch %s", strings.Join(missing, ", "))
	}
	return nil
}

// ChangedFiles lists paths changed on current since it forked from base.
func (r *Repo) ChangedFiles(ctx context.Context, base, current string) ([]string, error) {
	out, err := r.git(ctx, "diff", "--name-only", base+"..."+current)
	if err != nil {
		return nil, fmt.Errorf("git diff --name-only %s...%s: %w", base, current, err)
	}
	return splitLines(out), nil
}

// CommitMessages returns "<short sha> - <subject>" for each commit on
// current that is not on base, newest first.
func (r *Repo) CommitMessages(ctx context.Context, base, current string) ([]string, error) {
	out, err := r.git(ctx, "log", base+".."+current, "--pretty=format:%h - %s")
	if err != nil {
		return nil, fmt.Errorf("git log %s..%s: %w", base, current, err)
	}
	return splitLines(out), nil
}

// FileDiff returns the unified diff for one path. Diffs without any text
// hunk (binary files, pure mode changes) come back as "".
func (r *Repo) FileDiff(ctx context.Context, base, current, path string) (string, error) {
	out, err := r.git(ctx, "diff", base+"..."+current, "--", path)
	if err != nil {
		return "", fmt.Errorf("git diff %s...%s -- %s: %w", base, current, path, err)
	}
	if !hasHunk(out) {
		return "", nil
	}
	return out, nil
}

func hasHunk(diff string) bool {
	return strings.HasPrefix(diff, "@@") || strings.Contains(diff, "\n@@")
}

func splitLines(out string) []string {
	var lines []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// MatchesAny returns true if the path matches any of the given glob patterns.
func MatchesAny(path string, patterns []string) bool {
	for _, pattern := range patterns {
		matched, err := filepath.Match(pattern, path)
		if err == nil && matched {
			return true
		}
		clean := strings.TrimPrefix(pattern, "**/")
		if clean != pattern {
			matched, err = filepath.Match(clean, filepath.Base(path))
			if err == nil && matched {
				return true
			}
			matched, err = filepath.Match(clean, path)
			if err == nil && matched {
				return true
			}
		}
	}
	return false
}

func (r *Repo) git(ctx context.Context, args ...string) (string, error) {
	return gitOutput(ctx, r.Dir, args...)
}

func gitOutput(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return string(out), fmt.Errorf("%s: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", err
	}
	return string(out), nil
}
