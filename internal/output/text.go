package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/dshills/prsum/internal/changes"
	"github.com/dshills/prsum/internal/summary"
)

const wrapWidth = 76

// TextWriter outputs a human-readable report.
type TextWriter struct {
	// Color enables ANSI colours.
	Color bool
}

type palette struct {
	header, ok, warn, path, dim *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		header: color.New(color.FgBlue, color.Bold),
		ok:     color.New(color.FgGreen),
		warn:   color.New(color.FgYellow),
		path:   color.New(color.FgCyan, color.Bold),
		dim:    color.New(color.Faint),
	}
	for _, c := range []*color.Color{p.header, p.ok, p.warn, p.path, p.dim} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (t *TextWriter) Write(w io.Writer, report *summary.Report) error {
	r := report.Snapshot()
	pal := newPalette(t.Color)
	ew := &errWriter{w: w}

	ew.println(pal.header.Sprintf("PR Summary: %s → %s", r.CurrentBranch, r.BaseBranch))
	if r.Repo.Root != "" {
		ew.printf("Repository: %s\n", r.Repo.Root)
	}
	ew.println(statsTable(r))

	if len(r.Commits) > 0 {
		ew.println("")
		ew.println(pal.header.Sprint("Commits"))
		for _, c := range r.Commits {
			ew.printf("  - %s\n", c)
		}
	}

	var failed []*summary.FileRun
	for _, f := range r.Files {
		if !f.Succeeded {
			failed = append(failed, f)
			continue
		}
		ew.println("")
		ew.println(pal.path.Sprint(f.Path))
		if line := countsLine(f); line != "" {
			ew.println(pal.dim.Sprint("  " + line))
		}
		if f.Coverage != nil {
			cov := fmt.Sprintf("  %d/%d changes covered (%.1f%%)", f.Coverage.Mentioned, f.Coverage.Total, f.Coverage.Percent)
			if f.Coverage.Mentioned < f.Coverage.Total {
				ew.println(pal.warn.Sprint(cov))
			} else {
				ew.println(pal.ok.Sprint(cov))
			}
		}
		ew.println(indent(text.WrapSoft(f.Summary, wrapWidth), "  "))
	}

	if len(failed) > 0 {
		ew.println("")
		ew.println(pal.warn.Sprintf("Failed to summarize (%d)", len(failed)))
		for _, f := range failed {
			ew.printf("  %s\n", pal.path.Sprint(f.Path))
			ew.println(indent(text.WrapSoft(f.Summary, wrapWidth-2), "    "))
			if f.Error != "" {
				ew.println(pal.dim.Sprintf("    error: %s", f.Error))
			}
		}
		ew.println(pal.dim.Sprint("\nRun `prsum retry` to try these files again with a longer timeout."))
	}

	if len(r.Skipped) > 0 {
		ew.println("")
		ew.println(pal.dim.Sprintf("Skipped: %s", strings.Join(r.Skipped, ", ")))
	}
	if len(r.Unprocessed) > 0 {
		ew.println(pal.warn.Sprintf("Not processed: %s", strings.Join(r.Unprocessed, ", ")))
	}

	ew.println("")
	ew.println(pal.header.Sprint("Overall Summary"))
	ew.println(indent(text.WrapSoft(r.Overall, wrapWidth), "  "))

	ew.println("")
	ew.println(pal.dim.Sprintf("Run %s completed in %dms (git: %dms, LLM: %dms)",
		ShortID(r.RunID), r.Timing.TotalMs, r.Timing.VCSMs, r.Timing.LLMMs))
	return ew.err
}

func statsTable(r *summary.Report) string {
	var ok, total int
	for _, f := range r.Files {
		if f.Succeeded {
			ok++
		}
		total += len(f.Changes)
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendRows([]table.Row{
		{"Commits", len(r.Commits)},
		{"Changed files", len(r.ChangedFiles)},
		{"Summarized", ok},
		{"Failed", len(r.Failed)},
		{"Atomic changes", total},
	})
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	return tw.Render()
}

// RunsTable renders stored run listings.
func RunsTable(rows [][]string) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Run", "Created", "Branches", "Files", "Failed", "Repository"})
	for _, row := range rows {
		r := make(table.Row, len(row))
		for i, v := range row {
			r[i] = v
		}
		tw.AppendRow(r)
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	return tw.Render()
}

// countsLine describes a file's changes by kind, e.g. "2 Addition, 1 Modification".
func countsLine(f *summary.FileRun) string {
	k := f.Counts()
	var parts []string
	for _, c := range []struct {
		kind changes.Kind
		n    int
	}{
		{changes.KindAddition, k.Additions},
		{changes.KindDeletion, k.Deletions},
		{changes.KindModification, k.Modifications},
	} {
		if c.n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", c.n, c.kind.Label()))
		}
	}
	return strings.Join(parts, ", ")
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}

// ShortID abbreviates a run ID for display.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// errWriter wraps an io.Writer and captures the first error.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) println(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintln(ew.w, s)
}
