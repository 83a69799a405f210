package gitctx

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

// setupTestRepo creates a temp git repo with a main branch and a feature
// branch that edits, adds and touches a binary file.
func setupTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command(args[0], args[1:]...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test",
			"GIT_AUTHOR_EMAIL=test@test.com",
			"GIT_COMMITTER_NAME=test",
			"GIT_COMMITTER_EMAIL=test@test.com",
		)
		out, err := cmd.CombinedOutput()
		if err != nil {
			t.Fatalf("command %v failed: %v\n%s", args, err, out)
		}
	}
	write := func(name string, data []byte) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	run("git", "init")
	run("git", "checkout", "-b", "main")

	write("main.go", []byte("package main\n\nfunc main() {\n\treturn\n}\n"))
	write("util.go", []byte("package main\n\nfunc helper() {}\n"))
	write("logo.png", []byte{0x89, 'P', 'N', 'G', 0, 0, 1, 2})
	run("git", "add", "-A")
	run("git", "commit", "-m", "init")

	run("git", "checkout", "-b", "feature")
	write("main.go", []byte("package main\n\nfunc main() {\n\tprintln(\"hi\")\n}\n"))
	write("new.go", []byte("package main\n\nvar added = true\n"))
	write("logo.png", []byte{0x89, 'P', 'N', 'G', 0, 0, 3, 4})
	run("git", "add", "-A")
	run("git", "commit", "-m", "feature work")

	return dir
}

func TestRepo_BranchDiff(t *testing.T) {
	dir := setupTestRepo(t)
	ctx := context.Background()

	repo, err := Open(ctx, dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	files, err := repo.ChangedFiles(ctx, "main", "feature")
	if err != nil {
		t.Fatalf("ChangedFiles: %v", err)
	}
	want := []string{"logo.png", "main.go", "new.go"}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("ChangedFiles = %v, want %v", files, want)
	}

	commits, err := repo.CommitMessages(ctx, "main", "feature")
	if err != nil {
		t.Fatalf("CommitMessages: %v", err)
	}
	if len(commits) != 1 || !strings.HasSuffix(commits[0], " - feature work") {
		t.Errorf("CommitMessages = %v", commits)
	}

	diff, err := repo.FileDiff(ctx, "main", "feature", "main.go")
	if err != nil {
		t.Fatalf("FileDiff: %v", err)
	}
	if !strings.Contains(diff, "@@") || !strings.Contains(diff, "+\tprintln(\"hi\")") {
		t.Errorf("unexpected diff:\n%s", diff)
	}
}

func TestRepo_FileDiff_BinaryIsEmpty(t *testing.T) {
	dir := setupTestRepo(t)
	ctx := context.Background()
	repo := &Repo{Dir: dir}

	diff, err := repo.FileDiff(ctx, "main", "feature", "logo.png")
	if err != nil {
		t.Fatalf("FileDiff: %v", err)
	}
	if diff != "" {
		t.Errorf("binary diff should be empty, got:\n%s", diff)
	}

	diff, err = repo.FileDiff(ctx, "main", "feature", "util.go")
	if err != nil || diff != "" {
		t.Errorf("unchanged file: diff=%q err=%v", diff, err)
	}
}

func TestRepo_Branches(t *testing.T) {
	dir := setupTestRepo(t)
	ctx := context.Background()
	repo := &Repo{Dir: dir}

	branch, err := repo.CurrentBranch(ctx)
	if err != nil || branch != "feature" {
		t.Errorf("CurrentBranch = %q, %v", branch, err)
	}
	if got := repo.DetectBaseBranch(ctx, "develop"); got != "main" {
		t.Errorf("DetectBaseBranch = %q, want main", got)
	}
	if err := repo.Resolve(ctx, "main", "feature"); err != nil {
		t.Errorf("Resolve: %v", err)
	}
	if err := repo.Resolve(ctx, "nope", "feature"); err == nil {
		t.Error("expected error for unknown base branch")
	}

	meta, err := repo.Meta(ctx)
	if err != nil {
		t.Fatalf("Meta: %v", err)
	}
	if meta.Branch != "feature" || len(meta.Head) != 40 {
		t.Errorf("unexpected meta: %+v", meta)
	}
}

func TestOpen_NotARepo(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GIT_CEILING_DIRECTORIES", filepath.Dir(dir))
	if _, err := Open(context.Background(), dir); err == nil {
		t.Error("expected error outside a git repository")
	}
}

func TestHasHunk(t *testing.T) {
	if hasHunk("Binary files a/x and b/x differ\n") {
		t.Error("binary notice has no hunk")
	}
	if !hasHunk("diff --git a/x b/x\n@@ -1 +1 @@\n-a\n+b\n") {
		t.Error("expected hunk")
	}
}

func TestMatchesAny(t *testing.T) {
	tests := []struct {
		path     string
		patterns []string
		want     bool
	}{
		{"vendor/lib.go", []string{"vendor/**"}, true},
		{"main.go", []string{"vendor/**"}, false},
		{"foo.gen.go", []string{"**/*.gen.go"}, true},
		{"pkg/foo.gen.go", []string{"**/*.gen.go"}, true},
		{"dist/bundle.js", []string{"**/dist/**"}, true},
		{"main.go", []string{"*.go"}, true},
		{"main.go", nil, false},
	}
	for _, tt := range tests {
		got := MatchesAny(tt.path, tt.patterns)
		if got != tt.want {
			t.Errorf("MatchesAny(%q, %v) = %v, want %v", tt.path, tt.patterns, got, tt.want)
		}
	}
}
