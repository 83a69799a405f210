package changes

import (
	"regexp"
	"strconv"
	"strings"
)

// MaxContext is the number of preceding unchanged lines captured per change.
const MaxContext = 2

var hunkHeaderRE = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// fileHeaderPrefixes are the git/unified-diff preamble lines that precede a
// file's first hunk.
var fileHeaderPrefixes = []string{
	"diff --git",
	"index ",
	"--- ",
	"+++ ",
	"new file mode",
	"deleted file mode",
	"old mode",
	"new mode",
	"similarity index",
	"rename from",
	"rename to",
	"Binary files",
}

// hunkCursor is the transient parse state for a single Parse call.
type hunkCursor struct {
	oldLine int
	newLine int

	// oldLeft/newLeft count the body lines still expected by the current
	// hunk header. They are only meaningful when bounded is set; a malformed
	// header leaves the cursor unbounded so parsing continues best-effort.
	oldLeft int
	newLeft int
	bounded bool
	inHunk  bool

	context []string
}

func (c *hunkCursor) header(line string) {
	oldLine, newLine, oldLeft, newLeft, ok := parseHunkHeader(line)
	if !ok {
		// Stale counters, same context: best-effort continuation.
		c.inHunk = true
		c.bounded = false
		return
	}
	c.oldLine, c.newLine = oldLine, newLine
	c.oldLeft, c.newLeft = oldLeft, newLeft
	c.bounded = true
	c.inHunk = c.oldLeft > 0 || c.newLeft > 0
	c.context = c.context[:0]
}

// parseHunkHeader reports ok=false for headers that do not match or carry
// numbers out of int range.
func parseHunkHeader(line string) (oldLine, newLine, oldLeft, newLeft int, ok bool) {
	m := hunkHeaderRE.FindStringSubmatch(line)
	if m == nil {
		return 0, 0, 0, 0, false
	}
	var err error
	if oldLine, err = strconv.Atoi(m[1]); err != nil {
		return 0, 0, 0, 0, false
	}
	if newLine, err = strconv.Atoi(m[3]); err != nil {
		return 0, 0, 0, 0, false
	}
	if oldLeft, err = hunkCount(m[2]); err != nil {
		return 0, 0, 0, 0, false
	}
	if newLeft, err = hunkCount(m[4]); err != nil {
		return 0, 0, 0, 0, false
	}
	return oldLine, newLine, oldLeft, newLeft, true
}

func hunkCount(s string) (int, error) {
	if s == "" {
		return 1, nil
	}
	return strconv.Atoi(s)
}

func (c *hunkCursor) pushContext(text string) {
	c.context = append(c.context, text)
	if len(c.context) > MaxContext {
		c.context = c.context[len(c.context)-MaxContext:]
	}
	c.oldLine++
	c.newLine++
	c.consume(true, true)
}

func (c *hunkCursor) snapshot() []string {
	if len(c.context) == 0 {
		return nil
	}
	out := make([]string, len(c.context))
	copy(out, c.context)
	return out
}

func (c *hunkCursor) consume(oldSide, newSide bool) {
	if !c.bounded {
		return
	}
	if oldSide {
		c.oldLeft--
	}
	if newSide {
		c.newLeft--
	}
	if c.oldLeft <= 0 && c.newLeft <= 0 {
		c.inHunk = false
	}
}

// Parse converts one file's unified diff into an ordered list of additions
// and deletions. Blank added or removed lines are not recorded, but they
// still advance the line counters.
func Parse(diff string) []AtomicChange {
	var out []AtomicChange
	var cur hunkCursor

	for _, raw := range strings.Split(diff, "\n") {
		line := strings.TrimSuffix(raw, "\r")

		if strings.HasPrefix(line, "@@") {
			cur.header(line)
			continue
		}
		if strings.HasPrefix(line, "diff --git") {
			cur.inHunk = false
			continue
		}
		if !cur.inHunk {
			continue
		}
		if !cur.bounded && isFileHeader(line) {
			continue
		}

		switch {
		case line == "":
			if cur.bounded {
				cur.pushContext("")
			}
		case strings.HasPrefix(line, " "):
			cur.pushContext(line[1:])
		case strings.HasPrefix(line, "+"):
			if content := strings.TrimSpace(line[1:]); content != "" {
				out = append(out, Addition(cur.newLine, content, cur.snapshot()))
			}
			cur.newLine++
			cur.consume(false, true)
		case strings.HasPrefix(line, "-"):
			if content := strings.TrimSpace(line[1:]); content != "" {
				out = append(out, Deletion(cur.oldLine, content, cur.snapshot()))
			}
			cur.oldLine++
			cur.consume(true, false)
		}
		// "\ No newline at end of file" and anything unrecognised fall through.
	}

	return out
}

func isFileHeader(line string) bool {
	for _, p := range fileHeaderPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}
