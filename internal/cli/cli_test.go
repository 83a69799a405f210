package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/prsum/internal/changes"
	"github.com/dshills/prsum/internal/config"
	"github.com/dshills/prsum/internal/output"
	"github.com/dshills/prsum/internal/providers"
	"github.com/dshills/prsum/internal/store"
	"github.com/dshills/prsum/internal/summary"
)

// resetFlags resets all package-level flag variables to their zero values.
func resetFlags() {
	flagRepo = ""
	flagLogLevel = ""
	flagBase = ""
	flagCurrent = ""
	flagMaxFiles = 0
	flagTimeout = 0
	flagRetryTimeout = 0
	flagConcurrency = 0
	flagProvider = ""
	flagModel = ""
	flagFormat = ""
	flagOut = ""
	flagExclude = ""
	flagRetryFailed = false
	flagNoStore = false
	flagNoRedact = false
	flagCopy = false
	flagQuiet = false
	flagRunID = ""
	flagAll = false
	flagNoRegenerate = false
	flagLimit = 20
	flagInput = ""
	flagExpiredOnly = false
	flagPR = 0
	flagGitHubRepo = ""
	flagDryRun = false
}

// isolate points every config, cache and data directory at a temp dir and
// resets the flags and exit code.
func isolate(t *testing.T) string {
	t.Helper()
	resetFlags()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	for _, env := range []string{"PRSUM_PROVIDER", "PRSUM_MODEL", "PRSUM_FORMAT", "PRSUM_STORE_PATH"} {
		t.Setenv(env, "")
	}

	saved := exitCode
	t.Cleanup(func() { exitCode = saved })
	exitCode = ExitSuccess
	return dir
}

// storeReport saves a report with one failed file into the isolated store.
func storeReport(t *testing.T) *summary.Report {
	t.Helper()
	cfg := config.Default()
	path, err := cfg.StorePath()
	if err != nil {
		t.Fatal(err)
	}
	st, err := store.Open(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer st.Close()

	r := summary.NewReport(summary.Target{
		Repo:    summary.RepoInfo{Root: "/repo", Head: "abc123"},
		Base:    "main",
		Current: "feature",
	}, []string{"abc123 - add parser"}, []string{"a.go", "b.go"})
	r.Files = []*summary.FileRun{
		{Path: "a.go", Changes: changes.Merge(changes.Parse("@@ -1,2 +1,2 @@\n x\n-old\n+new\n")), Summary: "Renames old to new.", Succeeded: true, Attempts: 1},
		{Path: "b.go", Summary: summary.FailedPlaceholder, Error: "deadline exceeded", Attempts: 1},
	}
	r.Failed = []string{"b.go"}
	r.Overall = "Updates a.go."
	if err := st.Save(context.Background(), r); err != nil {
		t.Fatalf("saving report: %v", err)
	}
	return r
}

// --- splitComma tests ---

func TestSplitComma(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty string", "", nil},
		{"single value", "foo", []string{"foo"}},
		{"multiple values", "a,b,c", []string{"a", "b", "c"}},
		{"whitespace trimmed", " a , b , c ", []string{"a", "b", "c"}},
		{"empty parts skipped", "a,,b", []string{"a", "b"}},
		{"all empty", ",,,", nil},
		{"glob patterns", "*.go,**/*.pb.go", []string{"*.go", "**/*.pb.go"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitComma(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("splitComma(%q) = %v (len %d), want %v (len %d)",
					tt.input, got, len(got), tt.want, len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("splitComma(%q)[%d] = %q, want %q",
						tt.input, i, got[i], tt.want[i])
				}
			}
		})
	}
}

// --- buildOverrides tests ---

func TestBuildOverrides_NoFlags(t *testing.T) {
	resetFlags()
	m := buildOverrides()
	if len(m) != 0 {
		t.Errorf("buildOverrides() with no flags = %v, want empty map", m)
	}
}

func TestBuildOverrides_AllFlags(t *testing.T) {
	resetFlags()
	flagProvider = "openai"
	flagModel = "gpt-4o"
	flagFormat = "json"
	flagBase = "develop"
	flagMaxFiles = 25
	flagTimeout = 60
	flagRetryTimeout = 900
	flagConcurrency = 4

	m := buildOverrides()

	expected := map[string]string{
		"provider":              "openai",
		"model":                 "gpt-4o",
		"format":                "json",
		"base_branch":           "develop",
		"max_files":             "25",
		"timeout_seconds":       "60",
		"retry_timeout_seconds": "900",
		"concurrency":           "4",
	}

	if len(m) != len(expected) {
		t.Fatalf("buildOverrides() returned %d entries, want %d", len(m), len(expected))
	}
	for k, v := range expected {
		if m[k] != v {
			t.Errorf("buildOverrides()[%q] = %q, want %q", k, m[k], v)
		}
	}
}

func TestBuildOverrides_AppliedByConfig(t *testing.T) {
	isolate(t)
	flagMaxFiles = 3
	flagLogLevel = "debug"

	cfg, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxFiles != 3 || cfg.Log.Level != "debug" {
		t.Errorf("overrides not applied: max_files=%d level=%q", cfg.MaxFiles, cfg.Log.Level)
	}
}

func TestLoadConfig_InvalidOverride(t *testing.T) {
	isolate(t)
	flagFormat = "sarif"
	if _, err := loadConfig(); err == nil {
		t.Error("expected an error for an unsupported format")
	}
}

// --- version and models ---

func TestVersionCmd_Execute(t *testing.T) {
	if err := versionCmd.Execute(); err != nil {
		t.Errorf("version command returned error: %v", err)
	}
}

func TestModelsListCmd_Execute(t *testing.T) {
	modelsCmd.SetArgs([]string{"list"})
	if err := modelsCmd.Execute(); err != nil {
		t.Errorf("models list command returned error: %v", err)
	}
}

func TestKnownModels_IncludeDefaults(t *testing.T) {
	for _, info := range knownModels {
		if len(info.Models) == 0 {
			t.Errorf("provider %s has no models", info.Provider)
		}
		found := false
		for _, m := range info.Models {
			if m == providers.DefaultModel(info.Provider) {
				found = true
			}
		}
		if !found {
			t.Errorf("default model for %s missing from the list", info.Provider)
		}
	}
}

// --- config command tests ---

func TestConfigInit_CreatesFile(t *testing.T) {
	dir := isolate(t)

	configCmd.SetArgs([]string{"init"})
	if err := configCmd.Execute(); err != nil {
		t.Fatalf("config init returned error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "config", "prsum", "config.toml"))
	if err != nil {
		t.Fatalf("config init did not create config.toml: %v", err)
	}
	var cfg config.Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("config file is not valid TOML: %v", err)
	}
	if cfg.Provider != "anthropic" || cfg.MaxFiles != 10 {
		t.Errorf("unexpected sample config: %+v", cfg)
	}
}

func TestConfigInit_AlreadyExists(t *testing.T) {
	dir := isolate(t)
	cfgDir := filepath.Join(dir, "config", "prsum")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfgDir, "config.toml"), []byte("provider = \"openai\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	configCmd.SetArgs([]string{"init"})
	if err := configCmd.Execute(); err != nil {
		t.Fatalf("config init with existing file returned error: %v", err)
	}

	data, _ := os.ReadFile(filepath.Join(cfgDir, "config.toml"))
	if string(data) != "provider = \"openai\"\n" {
		t.Errorf("config init overwrote existing file: %q", data)
	}
}

func TestConfigSet_UpdatesFile(t *testing.T) {
	dir := isolate(t)

	configCmd.SetArgs([]string{"set", "cache.ttl_seconds", "60"})
	if err := configCmd.Execute(); err != nil {
		t.Fatalf("config set returned error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "config", "prsum", "config.toml"))
	if err != nil {
		t.Fatalf("cannot read config file: %v", err)
	}
	var cfg config.Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("config file is not valid TOML: %v", err)
	}
	if cfg.Cache.TTLSeconds != 60 {
		t.Errorf("cache.ttl_seconds = %d, want 60", cfg.Cache.TTLSeconds)
	}
}

func TestConfigSet_Rejects(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown key", []string{"set", "unknownKey", "value"}},
		{"missing value", []string{"set", "provider"}},
		{"invalid value", []string{"set", "max_files", "0"}},
		{"not a number", []string{"set", "concurrency", "many"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			configCmd.SetArgs(tt.args)
			if err := configCmd.Execute(); err == nil {
				t.Errorf("config %v should fail", tt.args)
			}
		})
	}
}

func TestConfigShow_Execute(t *testing.T) {
	isolate(t)
	configCmd.SetArgs([]string{"show"})
	if err := configCmd.Execute(); err != nil {
		t.Errorf("config show returned error: %v", err)
	}
}

// --- cache command tests ---

func TestCacheShow_Execute(t *testing.T) {
	isolate(t)
	cacheCmd.SetArgs([]string{"show"})
	if err := cacheCmd.Execute(); err != nil {
		t.Errorf("cache show returned error: %v", err)
	}
}

func TestCacheClear_Execute(t *testing.T) {
	dir := isolate(t)

	cacheDir := filepath.Join(dir, "cache", "prsum")
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cacheDir, "abc123.json"), []byte(`{"key":"test"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cacheCmd.SetArgs([]string{"clear"})
	if err := cacheCmd.Execute(); err != nil {
		t.Errorf("cache clear returned error: %v", err)
	}

	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		t.Fatalf("cannot read cache dir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".json" {
			t.Errorf("cache clear did not remove %s", e.Name())
		}
	}
}

// --- stored run commands ---

func TestExportCmd_StoredRun(t *testing.T) {
	dir := isolate(t)
	r := storeReport(t)
	out := filepath.Join(dir, "summary.md")

	exportCmd.SetArgs([]string{"--run", r.RunID[:8], "--out", out})
	if err := exportCmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if exitCode != ExitSuccess {
		t.Fatalf("exitCode = %d", exitCode)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != output.Markdown(r) {
		t.Errorf("export differs from the stored report:\n%s", data)
	}
}

func TestExportCmd_Input(t *testing.T) {
	dir := isolate(t)
	r := storeReport(t)

	in := filepath.Join(dir, "report.json")
	if err := output.WriteReport(r, "json", in); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "report.html")

	exportCmd.SetArgs([]string{"--input", in, "--format", "html", "--out", out})
	if err := exportCmd.Execute(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "<h2>Overall Summary</h2>") {
		t.Errorf("unexpected html:\n%s", data)
	}
}

func TestExportCmd_InvalidInput(t *testing.T) {
	dir := isolate(t)
	in := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(in, []byte(`{"tool":"other"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	exportCmd.SetArgs([]string{"--input", in, "--out", filepath.Join(dir, "x.md")})
	if err := exportCmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if exitCode != ExitRuntimeError {
		t.Errorf("exitCode = %d, want %d", exitCode, ExitRuntimeError)
	}
}

func TestFailedCmd_UnknownRun(t *testing.T) {
	isolate(t)
	storeReport(t)

	failedCmd.SetArgs([]string{"--run", "does-not-exist"})
	if err := failedCmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if exitCode != ExitRuntimeError {
		t.Errorf("exitCode = %d, want %d", exitCode, ExitRuntimeError)
	}
}

func TestFailedCmd_Execute(t *testing.T) {
	isolate(t)
	r := storeReport(t)

	failedCmd.SetArgs([]string{"--run", r.RunID})
	if err := failedCmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if exitCode != ExitSuccess {
		t.Errorf("exitCode = %d", exitCode)
	}
}

func TestRetryCmd_NotAFailedFile(t *testing.T) {
	isolate(t)
	r := storeReport(t)

	retryCmd.SetArgs([]string{"--run", r.RunID, "a.go"})
	if err := retryCmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if exitCode != ExitSuccess {
		t.Errorf("exitCode = %d", exitCode)
	}

	cfg := config.Default()
	path, _ := cfg.StorePath()
	st, err := store.Open(context.Background(), path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	got, err := st.Load(context.Background(), r.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsFailed("b.go") || got.Overall != r.Overall {
		t.Error("stored report changed")
	}
}

func TestRunsCmd_Execute(t *testing.T) {
	isolate(t)
	r := storeReport(t)

	runsCmd.SetArgs([]string{})
	if err := runsCmd.Execute(); err != nil {
		t.Fatal(err)
	}

	runsCmd.SetArgs([]string{"delete", r.RunID[:8]})
	if err := runsCmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if exitCode != ExitSuccess {
		t.Fatalf("exitCode = %d", exitCode)
	}

	failedCmd.SetArgs([]string{"--run", r.RunID})
	if err := failedCmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if exitCode != ExitRuntimeError {
		t.Errorf("deleted run still loadable")
	}
}

func TestRunRows(t *testing.T) {
	rows := runRows([]store.RunInfo{{
		ID:            "0123456789abcdef",
		BaseBranch:    "main",
		CurrentBranch: "feature",
		Files:         3,
		Failed:        1,
		RepoRoot:      "/repo",
	}})
	if len(rows) != 1 {
		t.Fatalf("rows = %d", len(rows))
	}
	want := []string{"01234567", "feature → main", "3", "1", "/repo"}
	got := []string{rows[0][0], rows[0][2], rows[0][3], rows[0][4], rows[0][5]}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("column %d = %q, want %q", i, got[i], want[i])
		}
	}
}

// --- terminal helpers ---

func TestPrompter_Confirm(t *testing.T) {
	var out bytes.Buffer
	p := newPrompter(strings.NewReader("y\nno\n YES \n"), &out)

	for i, want := range []bool{true, false, true, false} {
		if got := p.confirm("Retry?"); got != want {
			t.Errorf("answer %d = %v, want %v", i, got, want)
		}
	}
	if !strings.Contains(out.String(), "Retry? [y/N]: ") {
		t.Errorf("prompt not written: %q", out.String())
	}
}

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	p := newProgress(&buf, false)

	p.FileStarted("a.go", 0, 2)
	p.FileDone(summary.FileRun{Path: "a.go", Succeeded: true, Changes: make([]changes.AtomicChange, 2)}, 0, 2)
	p.FileDone(summary.FileRun{Path: "b.go", Error: "timeout"}, 1, 2)
	p.OverallStarted(1)

	out := buf.String()
	for _, want := range []string{
		"[1/2] summarizing a.go",
		"[1/2] ✓ a.go (2 changes)",
		"[2/2] ✗ b.go: timeout",
		"generating overall summary from 1 files",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("progress missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("colour codes written with colour disabled")
	}
}

// --- exit code constants tests ---

func TestExitCodes(t *testing.T) {
	tests := []struct {
		name string
		code int
		want int
	}{
		{"ExitSuccess", ExitSuccess, 0},
		{"ExitUsageError", ExitUsageError, 2},
		{"ExitAuthError", ExitAuthError, 3},
		{"ExitRuntimeError", ExitRuntimeError, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.code != tt.want {
				t.Errorf("%s = %d, want %d", tt.name, tt.code, tt.want)
			}
		})
	}
}

// --- publish command tests ---

func TestPublishCmd(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		token string
		want  int
	}{
		{"dry run", []string{"--dry-run"}, "", ExitSuccess},
		{"invalid repo flag", []string{"--github-repo", "noslash"}, "x", ExitUsageError},
		{"missing token", []string{"--github-repo", "owner/name"}, "", ExitAuthError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			t.Setenv("GITHUB_TOKEN", tt.token)
			r := storeReport(t)

			publishCmd.SetArgs(append([]string{"--run", r.RunID}, tt.args...))
			if err := publishCmd.Execute(); err != nil {
				t.Fatal(err)
			}
			if exitCode != tt.want {
				t.Errorf("exitCode = %d, want %d", exitCode, tt.want)
			}
		})
	}
}
