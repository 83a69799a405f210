package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/dshills/prsum/internal/summary"
)

// progress prints pipeline events to stderr.
type progress struct {
	mu   sync.Mutex
	w    io.Writer
	ok   *color.Color
	bad  *color.Color
	info *color.Color
}

func newProgress(w io.Writer, colored bool) *progress {
	p := &progress{
		w:    w,
		ok:   color.New(color.FgGreen),
		bad:  color.New(color.FgRed),
		info: color.New(color.FgCyan),
	}
	for _, c := range []*color.Color{p.ok, p.bad, p.info} {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p *progress) FileStarted(path string, index, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "[%d/%d] %s\n", index+1, total, p.info.Sprintf("summarizing %s", path))
}

func (p *progress) FileDone(run summary.FileRun, index, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if run.Succeeded {
		fmt.Fprintf(p.w, "[%d/%d] %s %s (%d changes)\n", index+1, total, p.ok.Sprint("✓"), run.Path, len(run.Changes))
		return
	}
	fmt.Fprintf(p.w, "[%d/%d] %s %s: %s\n", index+1, total, p.bad.Sprint("✗"), run.Path, run.Error)
}

func (p *progress) OverallStarted(successes int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if successes == 0 {
		return
	}
	fmt.Fprintln(p.w, p.info.Sprintf("generating overall summary from %d files", successes))
}

func (p *progress) note(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, p.info.Sprintf(format, args...))
}

func (p *progress) warn(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, p.bad.Sprintf(format, args...))
}

// prompter asks yes/no questions on a terminal.
type prompter struct {
	r *bufio.Reader
	w io.Writer
}

func newPrompter(r io.Reader, w io.Writer) *prompter {
	return &prompter{r: bufio.NewReader(r), w: w}
}

// confirm defaults to no; EOF counts as no.
func (p *prompter) confirm(question string) bool {
	fmt.Fprintf(p.w, "%s [y/N]: ", question)
	line, err := p.r.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(p.w)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
