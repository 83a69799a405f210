package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dshills/prsum/internal/changes"
	"github.com/dshills/prsum/internal/summary"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "reports.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleReport(root string) *summary.Report {
	r := summary.NewReport(summary.Target{
		Repo:    summary.RepoInfo{Root: root, Head: "abc123"},
		Base:    "main",
		Current: "feature",
	}, []string{"abc123 - add parser"}, []string{"a.go", "b.go"})

	list := changes.Merge(changes.Parse("@@ -1,2 +1,2 @@\n x\n-old\n+new\n"))
	r.Files = []*summary.FileRun{
		{Path: "a.go", Changes: list, Summary: "changes old to new", Succeeded: true, Attempts: 1},
		{Path: "b.go", Summary: summary.FailedPlaceholder, Error: "timeout", Attempts: 1},
	}
	r.Failed = []string{"b.go"}
	r.Overall = "Updates a.go."
	return r
}

func jsonOf(r *summary.Report) ([]byte, error) {
	return json.Marshal(r.Snapshot())
}

func TestStore_SaveLoad(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	r := sampleReport("/repo")

	if err := s.Save(ctx, r); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx, r.RunID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.RunID != r.RunID || got.Overall != r.Overall || len(got.Files) != 2 {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if !got.IsFailed("b.go") {
		t.Error("failed set lost")
	}
	a, _ := got.File("a.go")
	if len(a.Changes) != 1 || a.Changes[0].Kind != changes.KindModification {
		t.Errorf("changes lost: %+v", a.Changes)
	}

	byPrefix, err := s.Load(ctx, r.RunID[:8])
	if err != nil || byPrefix.RunID != r.RunID {
		t.Errorf("prefix lookup: %v", err)
	}
}

func TestStore_SaveUpdates(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	r := sampleReport("/repo")
	if err := s.Save(ctx, r); err != nil {
		t.Fatal(err)
	}

	r.Files[1] = &summary.FileRun{Path: "b.go", Summary: "now fine", Succeeded: true, Attempts: 2}
	r.Failed = []string{}
	if err := s.Save(ctx, r); err != nil {
		t.Fatal(err)
	}

	runs, err := s.List(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Failed != 0 || runs[0].Files != 2 {
		t.Errorf("List = %+v", runs)
	}
	if !runs[0].UpdatedAt.After(runs[0].CreatedAt) && !runs[0].UpdatedAt.Equal(runs[0].CreatedAt) {
		t.Errorf("updated_at %v before created_at %v", runs[0].UpdatedAt, runs[0].CreatedAt)
	}
}

func TestStore_LoadMissing(t *testing.T) {
	s := openTemp(t)
	if _, err := s.Load(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := s.Latest(context.Background(), "/repo"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_Latest(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	older := sampleReport("/repo")
	older.CreatedAt = time.Now().Add(-time.Hour).UTC()
	newer := sampleReport("/repo")
	other := sampleReport("/other")
	other.CreatedAt = time.Now().Add(time.Minute).UTC()
	for _, r := range []*summary.Report{older, newer, other} {
		if err := s.Save(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Latest(ctx, "/repo")
	if err != nil {
		t.Fatal(err)
	}
	if got.RunID != newer.RunID {
		t.Errorf("Latest = %s, want %s", got.RunID, newer.RunID)
	}
	newest, err := s.Latest(ctx, "")
	if err != nil || newest.RunID != other.RunID {
		t.Errorf("Latest(any repo) = %v, %v", newest, err)
	}

	runs, _ := s.List(ctx, 2)
	if len(runs) != 2 || runs[0].ID != other.RunID {
		t.Errorf("List(2) = %+v", runs)
	}
}

func TestStore_Delete(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	r := sampleReport("/repo")
	s.Save(ctx, r)

	if err := s.Delete(ctx, r.RunID); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, r.RunID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: %v", err)
	}
}

func TestStore_RejectsInvalidReport(t *testing.T) {
	s := openTemp(t)
	r := sampleReport("/repo")
	r.Files[0].Attempts = 0
	err := s.Save(context.Background(), r)
	if err == nil || !strings.Contains(err.Error(), "schema") {
		t.Errorf("expected schema error, got %v", err)
	}
}

func TestDecode_Inconsistent(t *testing.T) {
	r := sampleReport("/repo")
	r.Failed = []string{}
	data, err := jsonOf(r)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Decode(data); err == nil {
		t.Error("expected invariant error for a failed run missing from the failed set")
	}
}

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		ok      bool
	}{
		{"not json", "{", false},
		{"missing fields", `{"tool":"prsum"}`, false},
		{"wrong tool", `{"tool":"x","version":"1","runId":"r","baseBranch":"m","currentBranch":"f","commits":[],"changedFiles":[],"files":[],"failed":[],"overall":""}`, false},
		{"minimal", `{"tool":"prsum","version":"1","runId":"r","baseBranch":"m","currentBranch":"f","commits":[],"changedFiles":[],"files":[],"failed":[],"overall":""}`, true},
		{"bad kind", `{"tool":"prsum","version":"1","runId":"r","baseBranch":"m","currentBranch":"f","commits":[],"changedFiles":["a"],"files":[{"path":"a","summary":"s","succeeded":true,"attempts":1,"changes":[{"kind":"rename"}]}],"failed":[],"overall":""}`, false},
		{"addition without line", `{"tool":"prsum","version":"1","runId":"r","baseBranch":"m","currentBranch":"f","commits":[],"changedFiles":["a"],"files":[{"path":"a","summary":"s","succeeded":true,"attempts":1,"changes":[{"kind":"addition","newContent":"x"}]}],"failed":[],"overall":""}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePayload([]byte(tt.payload))
			if (err == nil) != tt.ok {
				t.Errorf("ValidatePayload err = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestStore_Lock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reports.db")
	a, err := Open(context.Background(), path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := Open(context.Background(), path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	release, err := a.Lock(context.Background())
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	if _, err := b.Lock(ctx); err == nil {
		t.Fatal("second holder should time out while the lock is held")
	}

	release()
	release2, err := b.Lock(context.Background())
	if err != nil {
		t.Fatalf("Lock after release: %v", err)
	}
	release2()
}
