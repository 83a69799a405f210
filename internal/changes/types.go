package changes

import (
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Kind is the type of an atomic change.
type Kind string

const (
	KindAddition     Kind = "addition"
	KindDeletion     Kind = "deletion"
	KindModification Kind = "modification"
)

var titleCaser = cases.Title(language.English)

// Label returns the display form of the kind ("Addition", "Deletion", ...).
func (k Kind) Label() string {
	return titleCaser.String(string(k))
}

// AtomicChange is one line-level edit extracted from a diff hunk.
type AtomicChange struct {
	Kind       Kind     `json:"kind"`
	OldLine    *int     `json:"oldLine,omitempty"`
	NewLine    *int     `json:"newLine,omitempty"`
	OldContent *string  `json:"oldContent,omitempty"`
	NewContent *string  `json:"newContent,omitempty"`
	Context    []string `json:"context,omitempty"`
}

// Addition builds an addition record at new-version line n.
func Addition(n int, content string, context []string) AtomicChange {
	return AtomicChange{
		Kind:       KindAddition,
		NewLine:    intPtr(n),
		NewContent: strPtr(content),
		Context:    context,
	}
}

// Deletion builds a deletion record at base-version line n.
func Deletion(n int, content string, context []string) AtomicChange {
	return AtomicChange{
		Kind:       KindDeletion,
		OldLine:    intPtr(n),
		OldContent: strPtr(content),
		Context:    context,
	}
}

// Modification builds a modification record from its old and new halves.
func Modification(oldLine int, oldContent string, newLine int, newContent string, context []string) AtomicChange {
	return AtomicChange{
		Kind:       KindModification,
		OldLine:    intPtr(oldLine),
		NewLine:    intPtr(newLine),
		OldContent: strPtr(oldContent),
		NewContent: strPtr(newContent),
		Context:    context,
	}
}

// Line returns the line number the change is anchored at: the new-version
// line for additions and the base-version line otherwise.
func (c AtomicChange) Line() int {
	switch c.Kind {
	case KindAddition:
		return deref(c.NewLine)
	default:
		return deref(c.OldLine)
	}
}

// Old returns the original content, or "" when absent.
func (c AtomicChange) Old() string {
	if c.OldContent == nil {
		return ""
	}
	return *c.OldContent
}

// New returns the new content, or "" when absent.
func (c AtomicChange) New() string {
	if c.NewContent == nil {
		return ""
	}
	return *c.NewContent
}

// Validate checks the per-kind field invariants.
func (c AtomicChange) Validate() error {
	if c.OldLine == nil && c.NewLine == nil {
		return fmt.Errorf("%s change has neither old nor new line", c.Kind)
	}
	switch c.Kind {
	case KindAddition:
		if c.NewLine == nil || c.NewContent == nil || c.OldContent != nil {
			return fmt.Errorf("addition must carry only new line and content")
		}
	case KindDeletion:
		if c.OldLine == nil || c.OldContent == nil || c.NewContent != nil {
			return fmt.Errorf("deletion must carry only old line and content")
		}
	case KindModification:
		if c.OldLine == nil || c.NewLine == nil || c.OldContent == nil || c.NewContent == nil {
			return fmt.Errorf("modification must carry both old and new line and content")
		}
	default:
		return fmt.Errorf("unknown change kind %q", c.Kind)
	}
	return nil
}

// KindCounts tallies changes by kind.
type KindCounts struct {
	Additions     int `json:"additions"`
	Deletions     int `json:"deletions"`
	Modifications int `json:"modifications"`
}

// Total returns the number of counted changes.
func (k KindCounts) Total() int {
	return k.Additions + k.Deletions + k.Modifications
}

// Counts tallies a change list by kind.
func Counts(list []AtomicChange) KindCounts {
	var k KindCounts
	for _, c := range list {
		switch c.Kind {
		case KindAddition:
			k.Additions++
		case KindDeletion:
			k.Deletions++
		case KindModification:
			k.Modifications++
		}
	}
	return k
}

func intPtr(n int) *int { return &n }

func strPtr(s string) *string { return &s }

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
