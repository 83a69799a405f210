package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/dshills/prsum/internal/config"
	"github.com/dshills/prsum/internal/gitctx"
	"github.com/dshills/prsum/internal/output"
	"github.com/dshills/prsum/internal/store"
	"github.com/dshills/prsum/internal/summary"
)

// Summarize flags
var (
	flagBase         string
	flagCurrent      string
	flagMaxFiles     int
	flagTimeout      int
	flagRetryTimeout int
	flagConcurrency  int
	flagProvider     string
	flagModel        string
	flagFormat       string
	flagOut          string
	flagExclude      string
	flagRetryFailed  bool
	flagNoStore      bool
	flagNoRedact     bool
	flagCopy         bool
	flagQuiet        bool
)

func buildOverrides() map[string]string {
	m := make(map[string]string)
	if flagProvider != "" {
		m["provider"] = flagProvider
	}
	if flagModel != "" {
		m["model"] = flagModel
	}
	if flagFormat != "" {
		m["format"] = flagFormat
	}
	if flagBase != "" {
		m["base_branch"] = flagBase
	}
	if flagMaxFiles > 0 {
		m["max_files"] = strconv.Itoa(flagMaxFiles)
	}
	if flagTimeout > 0 {
		m["timeout_seconds"] = strconv.Itoa(flagTimeout)
	}
	if flagRetryTimeout > 0 {
		m["retry_timeout_seconds"] = strconv.Itoa(flagRetryTimeout)
	}
	if flagConcurrency > 0 {
		m["concurrency"] = strconv.Itoa(flagConcurrency)
	}
	return m
}

func splitComma(s string) []string {
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Summarize the changes between two branches",
	Long: "Summarize every changed file between the base branch and the current branch, then " +
		"write an overall pull-request summary. Files that fail are recorded and can be retried " +
		"with --retry-failed or later with `prsum retry`.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if flagExclude != "" {
			cfg.ExcludeGlobs = append(cfg.ExcludeGlobs, splitComma(flagExclude)...)
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		runSummarize(ctx, cfg)
		return nil
	},
}

func runSummarize(ctx context.Context, cfg config.Config) {
	if flagNoRedact {
		cfg.Privacy.RedactSecrets = false
		fmt.Fprintln(os.Stderr, "WARNING: secret redaction is disabled")
	}
	log, err := newLogger(cfg)
	if err != nil {
		fail(err)
		return
	}

	repo, err := gitctx.Open(ctx, flagRepo)
	if err != nil {
		fail(err)
		return
	}
	target, err := resolveTarget(ctx, repo, cfg)
	if err != nil {
		fail(err)
		return
	}

	prog := newProgress(os.Stderr, output.IsTerminal(os.Stderr))
	var obs summary.Observer
	if !flagQuiet {
		obs = prog
		prog.note("summarizing %s → %s", target.Current, target.Base)
	}
	p, err := newPipeline(cfg, repo, log, obs)
	if err != nil {
		fail(err)
		return
	}

	report, runErr := p.Run(ctx, target)
	if report == nil {
		fail(runErr)
		return
	}

	var st *store.Store
	if cfg.Store.Enabled && !flagNoStore {
		st, err = openStore(ctx, cfg, log)
		if err != nil {
			log.Warn("report store unavailable", "error", err)
		} else {
			defer st.Close()
			saveReport(ctx, st, report, log)
		}
	}

	if err := output.WriteReport(report, cfg.Format, flagOut); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
		exitCode = ExitRuntimeError
		return
	}
	if flagCopy {
		copyMarkdown(report)
	}
	if runErr != nil {
		fail(runErr)
		return
	}

	if flagRetryFailed && len(report.FailedPaths()) > 0 {
		retryInteractively(ctx, p, report, cfg, st, log, prog)
	}
}

// resolveTarget fills in the branches from config and git and checks that
// both exist.
func resolveTarget(ctx context.Context, repo *gitctx.Repo, cfg config.Config) (summary.Target, error) {
	base := cfg.BaseBranch
	if base == "" {
		base = repo.DetectBaseBranch(ctx, "main")
	}
	current := flagCurrent
	if current == "" {
		b, err := repo.CurrentBranch(ctx)
		if err != nil {
			return summary.Target{}, err
		}
		current = b
	}
	if err := repo.Resolve(ctx, base, current); err != nil {
		return summary.Target{}, err
	}
	meta, err := repo.Meta(ctx)
	if err != nil {
		return summary.Target{}, err
	}
	return summary.Target{
		Repo:    summary.RepoInfo{Root: meta.Root, Head: meta.Head},
		Base:    base,
		Current: current,
	}, nil
}

// retryInteractively offers each failed file for another attempt with the
// retry timeout, then refreshes the stored report and the output file.
func retryInteractively(ctx context.Context, p *summary.Pipeline, report *summary.Report, cfg config.Config, st *store.Store, log *slog.Logger, prog *progress) {
	failed := report.FailedPaths()
	fmt.Fprintf(os.Stderr, "\n%d file(s) could not be summarized.\n", len(failed))

	ask := newPrompter(os.Stdin, os.Stderr)
	_, recovered, err := p.RetryFailed(ctx, report, cfg.RetryTimeout(), func(path string) bool {
		ok := ask.confirm(fmt.Sprintf("Retry %s with a %s timeout?", path, cfg.RetryTimeout()))
		if ok {
			prog.note("retrying %s", path)
		}
		return ok
	})

	if recovered > 0 {
		prog.note("recovered %d of %d file(s)", recovered, len(failed))
		if st != nil {
			saveReport(ctx, st, report, log)
		}
		if err == nil {
			fmt.Fprintf(os.Stdout, "\nUpdated overall summary:\n%s\n", report.Snapshot().Overall)
		} else {
			prog.warn("overall summary not refreshed; run `prsum regenerate` to update it")
		}
		if flagOut != "" {
			if werr := output.WriteReport(report, cfg.Format, flagOut); werr != nil {
				fmt.Fprintf(os.Stderr, "Error writing output: %v\n", werr)
				exitCode = ExitRuntimeError
			}
		}
	}
	if err != nil {
		fail(err)
	}
}

// saveReport persists report even after ctx was cancelled, so an
// interrupted run can still be retried.
func saveReport(ctx context.Context, st *store.Store, report *summary.Report, log *slog.Logger) {
	if err := st.Save(context.WithoutCancel(ctx), report); err != nil {
		log.Warn("saving report", "error", err)
		fmt.Fprintf(os.Stderr, "WARNING: report not saved: %v\n", err)
		return
	}
	if !flagQuiet {
		fmt.Fprintf(os.Stderr, "Saved as run %s\n", output.ShortID(report.RunID))
	}
}

func copyMarkdown(report *summary.Report) {
	if err := clipboard.WriteAll(output.Markdown(report)); err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: could not copy to clipboard: %v\n", err)
		return
	}
	if !flagQuiet {
		fmt.Fprintln(os.Stderr, "Markdown summary copied to clipboard.")
	}
}

func init() {
	f := summarizeCmd.Flags()
	f.StringVar(&flagBase, "base", "", "Base branch (default: config, then main or master)")
	f.StringVar(&flagCurrent, "current", "", "Branch to summarize (default: checked-out branch)")
	f.IntVar(&flagMaxFiles, "max-files", 0, "Maximum number of files to summarize")
	f.IntVar(&flagTimeout, "timeout", 0, "Per-file LLM timeout in seconds")
	f.IntVar(&flagRetryTimeout, "retry-timeout", 0, "Timeout in seconds used when retrying failed files")
	f.IntVar(&flagConcurrency, "concurrency", 0, "Number of files summarized at once")
	f.StringVar(&flagProvider, "provider", "", "LLM provider (anthropic, openai, groq, gemini, ollama, lmstudio)")
	f.StringVar(&flagModel, "model", "", "Model name")
	f.StringVar(&flagFormat, "format", "", "Output format (text, markdown, json, html)")
	f.StringVar(&flagOut, "out", "", "Output file path (default: stdout)")
	f.StringVar(&flagExclude, "exclude", "", "Additional glob patterns to skip (comma-separated)")
	f.BoolVar(&flagRetryFailed, "retry-failed", false, "Interactively retry failed files after the run")
	f.BoolVar(&flagNoStore, "no-store", false, "Do not save the report for later retries")
	f.BoolVar(&flagNoRedact, "no-redact", false, "Disable secret redaction (use with caution)")
	f.BoolVar(&flagCopy, "copy", false, "Copy the markdown summary to the clipboard")
	f.BoolVar(&flagQuiet, "quiet", false, "Suppress progress output")
}
