package summary

import (
	"slices"
	"strings"

	"github.com/dshills/prsum/internal/gitctx"
)

var defaultExclusions = []string{
	".github/",
	".devcopilot/",
	"pyproject.toml",
	"package-lock.json",
	"yarn.lock",
	"poetry.lock",
	"pnpm-lock",
	"go.sum",
	"Cargo.lock",
	".min.js",
	".min.css",
	"__pycache__",
	".pyc",
	".yml",
	".yaml",
	"requirements.txt",
	"setup.py",
	"setup.cfg",
	".gitignore",
	"LICENSE",
	"MANIFEST.in",
}

// DefaultExclusions returns the built-in path substrings that mark lockfiles,
// CI configuration and generated artefacts.
func DefaultExclusions() []string {
	return slices.Clone(defaultExclusions)
}

// Selector decides which changed files are summarised.
type Selector struct {
	// Exclusions are path substrings; any match excludes the file.
	Exclusions []string
	// Globs are glob patterns; any match excludes the file.
	Globs []string
}

// Selection is the outcome of Select.
type Selection struct {
	Selected []string
	// Skipped holds excluded and over-limit paths in their listed order.
	Skipped []string
}

// Excluded reports whether path is filtered out.
func (s Selector) Excluded(path string) bool {
	for _, sub := range s.Exclusions {
		if sub != "" && strings.Contains(path, sub) {
			return true
		}
	}
	return gitctx.MatchesAny(path, s.Globs)
}

// Select filters files and keeps the first maxFiles of the rest, in listed
// order. A non-positive maxFiles keeps everything.
func (s Selector) Select(files []string, maxFiles int) Selection {
	var sel Selection
	for _, f := range files {
		switch {
		case s.Excluded(f):
			sel.Skipped = append(sel.Skipped, f)
		case maxFiles > 0 && len(sel.Selected) >= maxFiles:
			sel.Skipped = append(sel.Skipped, f)
		default:
			sel.Selected = append(sel.Selected, f)
		}
	}
	return sel
}
