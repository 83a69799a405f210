package output

import (
	"bytes"
	"fmt"
	"html"
	"io"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/dshills/prsum/internal/summary"
)

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// HTMLWriter renders the markdown export as a standalone HTML page. Raw
// HTML inside summaries is not passed through.
type HTMLWriter struct{}

func (h *HTMLWriter) Write(w io.Writer, report *summary.Report) error {
	var body bytes.Buffer
	if err := md.Convert([]byte(Markdown(report)), &body); err != nil {
		return fmt.Errorf("rendering HTML: %w", err)
	}

	t := report.Target()
	title := html.EscapeString(fmt.Sprintf("PR Summary: %s → %s", t.Current, t.Base))
	ew := &errWriter{w: w}
	ew.println("<!DOCTYPE html>")
	ew.println(`<html lang="en">`)
	ew.println("<head>")
	ew.println(`<meta charset="utf-8">`)
	ew.printf("<title>%s</title>\n", title)
	ew.println("<style>body{font-family:sans-serif;max-width:52rem;margin:2rem auto;padding:0 1rem;line-height:1.5}code{background:#f4f4f4;padding:0 .2em}blockquote{color:#8a6d3b;border-left:4px solid #f0ad4e;margin-left:0;padding-left:1rem}</style>")
	ew.println("</head>")
	ew.println("<body>")
	ew.printf("%s", body.String())
	ew.println("</body>")
	ew.println("</html>")
	return ew.err
}
