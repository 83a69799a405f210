package summary

import (
	"fmt"
	"strings"

	"github.com/dshills/prsum/internal/changes"
)

const systemPrompt = "You are an expert code reviewer analyzing git diffs."

const (
	maxPromptCommits = 10
	maxPromptFiles   = 15
	truncationMarker = "... [truncated middle section] ..."
)

// SystemPrompt returns the system prompt shared by both summarisation steps.
func SystemPrompt() string {
	return systemPrompt
}

// BuildFilePrompt asks for a one-paragraph summary that covers every
// atomic change. Long diffs keep only their head and tail.
func BuildFilePrompt(path, diff string, list []changes.AtomicChange, maxDiffLines int) string {
	n := len(list)
	var b strings.Builder

	fmt.Fprintf(&b, "Summarize the code changes for this file. You must mention ALL %d changes listed below.\n\n", n)
	fmt.Fprintf(&b, "File: %s\n\n", path)
	fmt.Fprintf(&b, "Atomic Changes (%d total):\n%s\n\n", n, changes.Format(list))
	b.WriteString("Full Diff Context:\n```\n")
	b.WriteString(TruncateDiff(diff, maxDiffLines))
	b.WriteString("\n```\n\n")
	b.WriteString("Requirements:\n")
	fmt.Fprintf(&b, "- Describe ALL %d atomic changes listed above\n", n)
	b.WriteString("- Be specific: mention variable names, function names, line additions/deletions\n")
	b.WriteString("- **Write a single concise paragraph (1-2 sentences), not a bullet list**\n")
	b.WriteString("- Do not infer or hallucinate changes not shown above\n\n")
	b.WriteString("Summary (concise paragraph):")

	return b.String()
}

// FileSummary pairs a path with its successful summary.
type FileSummary struct {
	Path    string
	Summary string
}

// BuildOverallPrompt asks for a short PR-level summary. Only the summaries
// passed in are quoted; callers pass successful files only.
func BuildOverallPrompt(in OverallInput) string {
	var b strings.Builder

	b.WriteString("Summarize this pull request based only on the information below. Be concise (2-3 sentences total).\n\n")
	fmt.Fprintf(&b, "Branch: %s → %s\n\n", in.CurrentBranch, in.BaseBranch)

	fmt.Fprintf(&b, "Commits: %d\n", len(in.Commits))
	for i, c := range in.Commits {
		if i == maxPromptCommits {
			fmt.Fprintf(&b, "  ... and %d more commits\n", len(in.Commits)-maxPromptCommits)
			break
		}
		fmt.Fprintf(&b, "  - %s\n", c)
	}

	fmt.Fprintf(&b, "Changed files: %d\n", len(in.ChangedFiles))
	for i, f := range in.ChangedFiles {
		if i == maxPromptFiles {
			fmt.Fprintf(&b, "  ... and %d more files\n", len(in.ChangedFiles)-maxPromptFiles)
			break
		}
		fmt.Fprintf(&b, "  - %s\n", f)
	}

	b.WriteString("\nFile summaries:\n\n")
	for i, f := range in.Files {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%d. %s: %s", i+1, f.Path, strings.TrimSpace(f.Summary))
	}
	b.WriteString("\n\nProvide a brief PR summary covering: purpose, main changes, and impact. Keep it under 3 sentences total.\n\n")
	b.WriteString("Summary:")

	return b.String()
}

// TruncateDiff keeps the first and last maxLines/2 lines of a long diff.
func TruncateDiff(diff string, maxLines int) string {
	diff = strings.TrimRight(diff, "\n")
	lines := strings.Split(diff, "\n")
	if maxLines <= 0 || len(lines) <= maxLines {
		return diff
	}
	half := maxLines / 2
	kept := make([]string, 0, 2*half+1)
	kept = append(kept, lines[:half]...)
	kept = append(kept, truncationMarker)
	kept = append(kept, lines[len(lines)-half:]...)
	return strings.Join(kept, "\n")
}
