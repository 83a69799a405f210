package changes

import (
	"fmt"
	"strings"
)

// NoChanges is what Format returns for an empty list.
const NoChanges = "No atomic changes detected."

// Format renders changes as an enumerated list, one line per change,
// numbered from 1 in input order.
func Format(list []AtomicChange) string {
	if len(list) == 0 {
		return NoChanges
	}

	lines := make([]string, 0, len(list))
	for i, c := range list {
		lines = append(lines, FormatOne(i+1, c))
	}
	return strings.Join(lines, "\n")
}

// FormatOne renders a single enumerated change line.
func FormatOne(idx int, c AtomicChange) string {
	switch c.Kind {
	case KindAddition:
		return fmt.Sprintf("%d. **Added** at line %d: `%s`", idx, deref(c.NewLine), c.New())
	case KindDeletion:
		return fmt.Sprintf("%d. **Removed** at line %d: `%s`", idx, deref(c.OldLine), c.Old())
	default:
		return fmt.Sprintf("%d. **Changed** at line %d: `%s` → `%s`", idx, deref(c.OldLine), c.Old(), c.New())
	}
}
