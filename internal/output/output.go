package output

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/dshills/prsum/internal/summary"
)

// Writer writes a report in a specific format.
type Writer interface {
	Write(w io.Writer, report *summary.Report) error
}

// GetWriter returns a writer for the specified format. The text writer it
// returns never colours its output.
func GetWriter(format string) (Writer, error) {
	switch format {
	case "text":
		return &TextWriter{}, nil
	case "markdown", "md":
		return &MarkdownWriter{}, nil
	case "json":
		return &JSONWriter{}, nil
	case "html":
		return &HTMLWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// Render returns the report in the given format as a string.
func Render(report *summary.Report, format string) (string, error) {
	writer, err := GetWriter(format)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := writer.Write(&buf, report); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// WriteReport writes the report to outPath, or to stdout when outPath is
// empty. Text written to a terminal is coloured.
func WriteReport(report *summary.Report, format, outPath string) error {
	writer, err := GetWriter(format)
	if err != nil {
		return err
	}

	var w io.Writer
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	} else {
		w = os.Stdout
		if tw, ok := writer.(*TextWriter); ok {
			tw.Color = IsTerminal(os.Stdout)
		}
	}

	return writer.Write(w, report)
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
