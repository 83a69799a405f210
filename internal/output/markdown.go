package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/dshills/prsum/internal/summary"
)

// MarkdownWriter writes the export document. The output depends only on
// the report contents; timestamps, timings and run IDs are left out so the
// same report always renders identically.
type MarkdownWriter struct{}

func (m *MarkdownWriter) Write(w io.Writer, report *summary.Report) error {
	_, err := io.WriteString(w, Markdown(report))
	return err
}

// Markdown renders the export document.
func Markdown(report *summary.Report) string {
	r := report.Snapshot()
	var ok, failed []*summary.FileRun
	for _, f := range r.Files {
		if f.Succeeded {
			ok = append(ok, f)
		} else {
			failed = append(failed, f)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# PR Summary: %s → %s\n\n", r.CurrentBranch, r.BaseBranch)

	fmt.Fprintf(&b, "**Commits:** %d  \n", len(r.Commits))
	fmt.Fprintf(&b, "**Total Changed Files:** %d  \n", len(r.ChangedFiles))
	fmt.Fprintf(&b, "**Successfully Summarized:** %d  \n", len(ok))
	if len(failed) > 0 {
		fmt.Fprintf(&b, "**Failed to Summarize:** %d  \n", len(failed))
	}
	b.WriteString("\n---\n\n")

	b.WriteString("## Commits\n\n")
	for _, c := range r.Commits {
		fmt.Fprintf(&b, "- %s\n", c)
	}

	if len(ok) > 0 {
		b.WriteString("\n## Successfully Summarized Files\n\n")
		for _, f := range ok {
			fmt.Fprintf(&b, "### %s\n\n", codeSpan(f.Path))
			fmt.Fprintf(&b, "%s\n\n", f.Summary)
			if f.Coverage != nil {
				fmt.Fprintf(&b, "*Coverage: %d/%d changes (%.1f%%)*\n\n",
					f.Coverage.Mentioned, f.Coverage.Total, f.Coverage.Percent)
			}
		}
	}

	if len(failed) > 0 {
		b.WriteString("\n## Files That Could Not Be Summarized\n\n")
		for _, f := range failed {
			fmt.Fprintf(&b, "### %s\n\n", codeSpan(f.Path))
			fmt.Fprintf(&b, "%s\n\n", blockquote(f.Summary))
		}
	}

	if len(r.Skipped) > 0 || len(r.Unprocessed) > 0 {
		b.WriteString("\n## Files Not Summarized\n\n")
		for _, p := range r.Skipped {
			fmt.Fprintf(&b, "- %s (skipped)\n", codeSpan(p))
		}
		for _, p := range r.Unprocessed {
			fmt.Fprintf(&b, "- %s (not processed)\n", codeSpan(p))
		}
	}

	b.WriteString("\n---\n\n")
	b.WriteString("## Overall Summary\n\n")
	fmt.Fprintf(&b, "%s\n", r.Overall)

	return b.String()
}

// codeSpan wraps s in a backtick fence longer than any backtick run it
// contains. Line breaks become spaces.
func codeSpan(s string) string {
	s = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
	longest, run := 0, 0
	for _, r := range s {
		if r == '`' {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}
	fence := strings.Repeat("`", longest+1)
	if strings.HasPrefix(s, "`") || strings.HasSuffix(s, "`") {
		s = " " + s + " "
	}
	return fence + s + fence
}

// blockquote prefixes every line of s with "> ".
func blockquote(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	for i, l := range lines {
		if l == "" {
			lines[i] = ">"
		} else {
			lines[i] = "> " + l
		}
	}
	return strings.Join(lines, "\n")
}
