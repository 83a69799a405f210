package summary

import (
	"fmt"
	"strings"
	"testing"

	"github.com/dshills/prsum/internal/changes"
)

func TestBuildFilePrompt(t *testing.T) {
	diff := "@@ -1,2 +1,2 @@\n def f():\n-    return 1\n+    return 2\n"
	list := changes.Merge(changes.Parse(diff))
	got := BuildFilePrompt("app/f.py", diff, list, 150)

	for _, want := range []string{
		"You must mention ALL 1 changes",
		"File: app/f.py",
		"Atomic Changes (1 total):\n1. **Changed** at line 2: `return 1` → `return 2`",
		"```\n" + strings.TrimRight(diff, "\n") + "\n```",
		"- Describe ALL 1 atomic changes listed above",
		"Summary (concise paragraph):",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q\n%s", want, got)
		}
	}
}

func TestBuildFilePrompt_NoChanges(t *testing.T) {
	got := BuildFilePrompt("x", "", nil, 150)
	if !strings.Contains(got, changes.NoChanges) {
		t.Errorf("prompt should carry the no-changes sentinel:\n%s", got)
	}
}

func TestBuildOverallPrompt_Limits(t *testing.T) {
	in := OverallInput{BaseBranch: "main", CurrentBranch: "feat"}
	for i := 0; i < 12; i++ {
		in.Commits = append(in.Commits, fmt.Sprintf("c%02d - msg", i))
	}
	for i := 0; i < 20; i++ {
		in.ChangedFiles = append(in.ChangedFiles, fmt.Sprintf("f%02d.go", i))
	}
	in.Files = []FileSummary{{Path: "f00.go", Summary: " adds x "}, {Path: "f03.go", Summary: "drops y"}}

	got := BuildOverallPrompt(in)
	checks := []struct {
		want string
		ok   bool
	}{
		{"Branch: feat → main", true},
		{"Commits: 12", true},
		{"c09 - msg", true},
		{"c10 - msg", false},
		{"... and 2 more commits", true},
		{"Changed files: 20", true},
		{"f14.go", true},
		{"  - f15.go", false},
		{"... and 5 more files", true},
		{"1. f00.go: adds x\n\n2. f03.go: drops y", true},
	}
	for _, c := range checks {
		if strings.Contains(got, c.want) != c.ok {
			t.Errorf("Contains(%q) = %v, want %v", c.want, !c.ok, c.ok)
		}
	}
}

func TestTruncateDiff(t *testing.T) {
	var lines []string
	for i := 1; i <= 10; i++ {
		lines = append(lines, fmt.Sprintf("line %d", i))
	}
	diff := strings.Join(lines, "\n") + "\n"

	if got := TruncateDiff(diff, 20); got != strings.TrimRight(diff, "\n") {
		t.Errorf("short diff should be unchanged, got %q", got)
	}
	if got := TruncateDiff(diff, 0); got != strings.TrimRight(diff, "\n") {
		t.Errorf("zero limit should disable truncation, got %q", got)
	}

	got := TruncateDiff(diff, 4)
	want := "line 1\nline 2\n" + truncationMarker + "\nline 9\nline 10"
	if got != want {
		t.Errorf("TruncateDiff = %q, want %q", got, want)
	}
}
