package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dshills/prsum/internal/cache"
	"github.com/dshills/prsum/internal/config"
	"github.com/dshills/prsum/internal/gitctx"
	"github.com/dshills/prsum/internal/logging"
	"github.com/dshills/prsum/internal/providers"
	"github.com/dshills/prsum/internal/redact"
	"github.com/dshills/prsum/internal/store"
	"github.com/dshills/prsum/internal/summary"
)

// loadConfig resolves the effective config with command-line overrides.
func loadConfig() (config.Config, error) {
	overrides := buildOverrides()
	if flagLogLevel != "" {
		overrides["log.level"] = flagLogLevel
	}
	return config.Load(overrides)
}

func newLogger(cfg config.Config) (*slog.Logger, error) {
	return logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
}

// newPipeline wires the LLM summarizer, response cache and redaction policy
// around source. obs may be nil.
func newPipeline(cfg config.Config, source summary.DiffSource, log *slog.Logger, obs summary.Observer) (*summary.Pipeline, error) {
	gen, err := providers.New(cfg.Provider, cfg.Model, log)
	if err != nil {
		return nil, err
	}

	opts := summary.LLMOptions{
		Model:              cfg.Model,
		Temperature:        cfg.Temperature,
		OverallTemperature: cfg.OverallTemperature,
		MaxTokens:          cfg.MaxTokens,
		OverallMaxTokens:   cfg.OverallMaxTokens,
		MaxDiffLines:       cfg.MaxDiffLines,
		Redact: redact.Policy{
			Secrets: cfg.Privacy.RedactSecrets,
			Paths:   cfg.Privacy.RedactPaths,
		},
		Logger: log,
	}
	if opts.Model == "" {
		opts.Model = providers.DefaultModel(cfg.Provider)
	}
	if cfg.Cache.Enabled {
		c, err := cache.New(true, cfg.Cache.Dir, cfg.Cache.TTLSeconds)
		if err != nil {
			log.Warn("response cache unavailable", "error", err)
		} else {
			opts.Cache = c
		}
	}
	llm := summary.NewLLMSummarizer(gen, opts)

	return summary.New(source, llm, llm, summary.Options{
		MaxFiles:    cfg.MaxFiles,
		Timeout:     cfg.Timeout(),
		Concurrency: cfg.Concurrency,
		Selector: summary.Selector{
			Exclusions: cfg.Exclude,
			Globs:      cfg.ExcludeGlobs,
		},
		ValidateCoverage: cfg.ValidateCoverage,
		Logger:           log,
		Observer:         obs,
	}), nil
}

func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (*store.Store, error) {
	path, err := cfg.StorePath()
	if err != nil {
		return nil, err
	}
	return store.Open(ctx, path, log)
}

// repoRoot returns the top level of the repository named by --repo, or ""
// when it is not inside one.
func repoRoot(ctx context.Context) string {
	repo, err := gitctx.Open(ctx, flagRepo)
	if err != nil {
		return ""
	}
	return repo.Dir
}

// loadReport returns the stored report with the given ID prefix, or the
// latest report for the current repository when id is empty.
func loadReport(ctx context.Context, st *store.Store, id string) (*summary.Report, error) {
	if id != "" {
		return st.Load(ctx, id)
	}
	report, err := st.Latest(ctx, repoRoot(ctx))
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("no stored summary for this repository; run `prsum summarize` first")
	}
	return report, err
}

// openReportRepo opens the repository a stored report was produced from.
func openReportRepo(ctx context.Context, report *summary.Report) (*gitctx.Repo, error) {
	dir := report.Target().Repo.Root
	if dir == "" {
		dir = flagRepo
	}
	return gitctx.Open(ctx, dir)
}

// fail reports err on stderr and sets the exit code from its class.
func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if providers.IsAuthError(err) {
		exitCode = ExitAuthError
		return
	}
	exitCode = ExitRuntimeError
}
