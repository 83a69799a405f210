package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/prsum/internal/config"
	"github.com/dshills/prsum/internal/output"
	"github.com/dshills/prsum/internal/summary"
)

// Stored-run flags
var (
	flagRunID        string
	flagAll          bool
	flagNoRegenerate bool
)

var retryCmd = &cobra.Command{
	Use:   "retry [path...]",
	Short: "Retry failed files of a stored run",
	Long: "Retry files that could not be summarized in a stored run, using the retry timeout. " +
		"Without paths each failed file is offered interactively; --all retries every one. When " +
		"at least one file recovers the overall summary is regenerated.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		runRetry(ctx, cfg, args)
		return nil
	},
}

func runRetry(ctx context.Context, cfg config.Config, paths []string) {
	log, err := newLogger(cfg)
	if err != nil {
		fail(err)
		return
	}
	st, err := openStore(ctx, cfg, log)
	if err != nil {
		fail(err)
		return
	}
	defer st.Close()

	release, err := st.Lock(ctx)
	if err != nil {
		fail(err)
		return
	}
	defer release()

	report, err := loadReport(ctx, st, flagRunID)
	if err != nil {
		fail(err)
		return
	}
	failed := report.FailedPaths()
	if len(failed) == 0 {
		fmt.Fprintf(os.Stdout, "Run %s has no failed files.\n", output.ShortID(report.RunID))
		return
	}

	prog := newProgress(os.Stderr, output.IsTerminal(os.Stderr))
	if len(paths) == 0 {
		paths = chooseRetries(failed)
	}
	var todo []string
	for _, path := range paths {
		if !report.IsFailed(path) {
			prog.warn("%s is not a failed file in run %s", path, output.ShortID(report.RunID))
			continue
		}
		todo = append(todo, path)
	}
	if len(todo) == 0 {
		return
	}

	repo, err := openReportRepo(ctx, report)
	if err != nil {
		fail(err)
		return
	}
	p, err := newPipeline(cfg, repo, log, nil)
	if err != nil {
		fail(err)
		return
	}

	for _, path := range todo {
		prog.note("retrying %s with a %s timeout", path, cfg.RetryTimeout())
		if _, err := p.Retry(ctx, report, path, cfg.RetryTimeout()); err != nil {
			saveReport(ctx, st, report, log)
			fail(err)
			return
		}
		if report.IsFailed(path) {
			prog.warn("✗ %s still failing", path)
		} else {
			fmt.Fprintf(os.Stderr, "%s %s\n", prog.ok.Sprint("✓"), path)
		}
	}

	recovered := len(failed) - len(report.FailedPaths())
	var regenErr error
	if recovered > 0 && !flagNoRegenerate {
		prog.note("regenerating overall summary")
		_, regenErr = p.RegenerateOverall(ctx, report, cfg.RetryTimeout())
	}
	saveReport(ctx, st, report, log)

	fmt.Fprintf(os.Stdout, "Recovered %d of %d file(s); %d still failing.\n",
		recovered, len(todo), len(report.FailedPaths()))
	if regenErr != nil {
		fail(regenErr)
		return
	}
	writeIfRequested(report, cfg)
}

// chooseRetries returns the failed paths to retry: all of them with --all,
// otherwise the ones confirmed on the terminal.
func chooseRetries(failed []string) []string {
	if flagAll {
		return failed
	}
	ask := newPrompter(os.Stdin, os.Stderr)
	var chosen []string
	for _, path := range failed {
		if ask.confirm(fmt.Sprintf("Retry %s?", path)) {
			chosen = append(chosen, path)
		}
	}
	return chosen
}

// writeIfRequested writes the report when --out or --format was given.
func writeIfRequested(report *summary.Report, cfg config.Config) {
	if flagOut == "" && flagFormat == "" {
		return
	}
	if err := output.WriteReport(report, cfg.Format, flagOut); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
		exitCode = ExitRuntimeError
	}
}

var regenerateCmd = &cobra.Command{
	Use:   "regenerate",
	Short: "Regenerate the overall summary of a stored run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		runRegenerate(ctx, cfg)
		return nil
	},
}

func runRegenerate(ctx context.Context, cfg config.Config) {
	log, err := newLogger(cfg)
	if err != nil {
		fail(err)
		return
	}
	st, err := openStore(ctx, cfg, log)
	if err != nil {
		fail(err)
		return
	}
	defer st.Close()

	release, err := st.Lock(ctx)
	if err != nil {
		fail(err)
		return
	}
	defer release()

	report, err := loadReport(ctx, st, flagRunID)
	if err != nil {
		fail(err)
		return
	}
	repo, err := openReportRepo(ctx, report)
	if err != nil {
		fail(err)
		return
	}
	p, err := newPipeline(cfg, repo, log, nil)
	if err != nil {
		fail(err)
		return
	}

	if _, err := p.RegenerateOverall(ctx, report, cfg.Timeout()); err != nil {
		fail(err)
		return
	}
	saveReport(ctx, st, report, log)

	if flagOut == "" && flagFormat == "" {
		fmt.Fprintln(os.Stdout, report.Snapshot().Overall)
		return
	}
	writeIfRequested(report, cfg)
}

func init() {
	for _, cmd := range []*cobra.Command{retryCmd, regenerateCmd} {
		cmd.Flags().StringVar(&flagRunID, "run", "", "Run ID or unique prefix (default: latest run for this repository)")
		cmd.Flags().StringVar(&flagProvider, "provider", "", "LLM provider")
		cmd.Flags().StringVar(&flagModel, "model", "", "Model name")
		cmd.Flags().StringVar(&flagFormat, "format", "", "Also write the updated report in this format")
		cmd.Flags().StringVar(&flagOut, "out", "", "Output file path for the updated report")
	}
	retryCmd.Flags().IntVar(&flagRetryTimeout, "timeout", 0, "Timeout in seconds for each retried file")
	retryCmd.Flags().BoolVar(&flagAll, "all", false, "Retry every failed file without asking")
	retryCmd.Flags().BoolVar(&flagNoRegenerate, "no-regenerate", false, "Do not regenerate the overall summary")
	regenerateCmd.Flags().IntVar(&flagTimeout, "timeout", 0, "LLM timeout in seconds")
}
