package changes

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MinTokenLen is the shortest identifier that counts as a keyword match.
const MinTokenLen = 4

var identRE = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// stopWords are tokens too common in code to prove a summary mentions a change.
var stopWords = map[string]bool{
	"break": true, "case": true, "char": true, "class": true, "const": true,
	"continue": true, "default": true, "defer": true, "elif": true, "else": true,
	"enum": true, "except": true, "export": true, "false": true, "final": true,
	"finally": true, "from": true, "func": true, "function": true, "goto": true,
	"import": true, "lambda": true, "none": true, "null": true, "pass": true,
	"package": true, "private": true, "public": true, "raise": true, "range": true,
	"return": true, "self": true, "static": true, "string": true, "struct": true,
	"switch": true, "this": true, "true": true, "type": true, "void": true,
	"while": true, "with": true, "yield": true, "async": true, "await": true,
	"bool": true, "float": true, "int64": true, "int32": true, "interface": true,
}

// Coverage reports how many changes a summary references.
type Coverage struct {
	Total     int     `json:"total"`
	Mentioned int     `json:"mentioned"`
	Percent   float64 `json:"percent"`
	Missing   []int   `json:"missing,omitempty"` // 1-based positions in the change list
}

// MeasureCoverage estimates which changes the summary mentions. A change is
// mentioned when its content appears verbatim in the summary text (case
// insensitive), or when one of its identifiers of at least MinTokenLen
// characters appears there as a whole word. Modifications match on either
// side. An empty change list is fully covered.
func MeasureCoverage(list []AtomicChange, summary string) Coverage {
	cov := Coverage{Total: len(list)}
	if len(list) == 0 {
		cov.Percent = 100
		return cov
	}

	raw := strings.ToLower(summary)
	plain := strings.ToLower(PlainText(summary))
	words := wordSet(plain + " " + raw)

	for i, c := range list {
		if mentioned(c, raw, plain, words) {
			cov.Mentioned++
			continue
		}
		cov.Missing = append(cov.Missing, i+1)
	}
	cov.Percent = 100 * float64(cov.Mentioned) / float64(cov.Total)
	return cov
}

func mentioned(c AtomicChange, raw, plain string, words map[string]bool) bool {
	var sides []string
	if c.OldContent != nil {
		sides = append(sides, *c.OldContent)
	}
	if c.NewContent != nil {
		sides = append(sides, *c.NewContent)
	}
	for _, s := range sides {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if strings.Contains(plain, s) || strings.Contains(raw, s) {
			return true
		}
		for _, tok := range identRE.FindAllString(s, -1) {
			if len(tok) < MinTokenLen || stopWords[tok] {
				continue
			}
			if words[tok] {
				return true
			}
		}
	}
	return false
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range identRE.FindAllString(s, -1) {
		set[w] = true
	}
	return set
}

// PlainText strips markdown markup from s, keeping the text of inline code
// and code blocks.
func PlainText(s string) string {
	source := []byte(s)
	root := goldmark.DefaultParser().Parse(text.NewReader(source))

	var b strings.Builder
	walker := func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := node.(type) {
		case *ast.Text:
			b.Write(n.Segment.Value(source))
			if n.SoftLineBreak() || n.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(n.Value)
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(source))
			}
			return ast.WalkSkipChildren, nil
		}
		if node.Type() == ast.TypeBlock && node.PreviousSibling() != nil {
			b.WriteByte('\n')
		}
		return ast.WalkContinue, nil
	}
	if err := ast.Walk(root, walker); err != nil {
		return s
	}
	return b.String()
}
