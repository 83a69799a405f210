package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dshills/prsum/internal/summary"
)

// JSONWriter outputs the full report as JSON.
type JSONWriter struct{}

func (j *JSONWriter) Write(w io.Writer, report *summary.Report) error {
	data, err := json.MarshalIndent(report.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("writing JSON: %w", err)
	}
	_, err = fmt.Fprintln(w)
	return err
}
