package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/prsum/internal/config"
	"github.com/dshills/prsum/internal/output"
	"github.com/dshills/prsum/internal/store"
	"github.com/dshills/prsum/internal/summary"
)

var (
	flagLimit int
	flagInput string
)

var failedCmd = &cobra.Command{
	Use:   "failed",
	Short: "List the files a stored run could not summarize",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		report, err := storedReport(cmd.Context(), cfg)
		if err != nil {
			fail(err)
			return nil
		}
		printFailed(report)
		return nil
	},
}

func printFailed(report *summary.Report) {
	r := report.Snapshot()
	if len(r.Failed) == 0 {
		fmt.Fprintf(os.Stdout, "Run %s has no failed files.\n", output.ShortID(r.RunID))
		return
	}
	fmt.Fprintf(os.Stdout, "Run %s: %d failed file(s)\n", output.ShortID(r.RunID), len(r.Failed))
	for _, f := range r.Files {
		if f.Succeeded {
			continue
		}
		fmt.Fprintf(os.Stdout, "  %s (attempts: %d)\n", f.Path, f.Attempts)
		if f.Error != "" {
			fmt.Fprintf(os.Stdout, "    %s\n", f.Error)
		}
	}
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a stored run or a saved JSON report",
	Long: "Render a stored run, or a JSON report written with --format json, as markdown " +
		"(the default), text, json or html. JSON input is validated before rendering.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		format := flagFormat
		if format == "" {
			format = "markdown"
		}

		var report *summary.Report
		if flagInput != "" {
			report, err = readReportFile(flagInput)
		} else {
			report, err = storedReport(cmd.Context(), cfg)
		}
		if err != nil {
			fail(err)
			return nil
		}
		if err := output.WriteReport(report, format, flagOut); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
			exitCode = ExitRuntimeError
		}
		return nil
	},
}

func readReportFile(path string) (*summary.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	report, err := store.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return report, nil
}

// storedReport loads the run named by --run, or the latest one for the
// current repository.
func storedReport(ctx context.Context, cfg config.Config) (*summary.Report, error) {
	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return loadReport(ctx, st, flagRunID)
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		log, err := newLogger(cfg)
		if err != nil {
			return err
		}
		st, err := openStore(ctx, cfg, log)
		if err != nil {
			fail(err)
			return nil
		}
		defer st.Close()

		runs, err := st.List(ctx, flagLimit)
		if err != nil {
			fail(err)
			return nil
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stdout, "No stored runs.")
			return nil
		}
		fmt.Fprintln(os.Stdout, output.RunsTable(runRows(runs)))
		return nil
	},
}

func runRows(runs []store.RunInfo) [][]string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			output.ShortID(r.ID),
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			fmt.Sprintf("%s → %s", r.CurrentBranch, r.BaseBranch),
			fmt.Sprint(r.Files),
			fmt.Sprint(r.Failed),
			r.RepoRoot,
		})
	}
	return rows
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <run>",
	Short: "Delete a stored run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		log, err := newLogger(cfg)
		if err != nil {
			return err
		}
		st, err := openStore(ctx, cfg, log)
		if err != nil {
			fail(err)
			return nil
		}
		defer st.Close()

		report, err := st.Load(ctx, args[0])
		if err != nil {
			fail(err)
			return nil
		}
		if err := st.Delete(ctx, report.RunID); err != nil {
			fail(err)
			return nil
		}
		fmt.Fprintf(os.Stdout, "Deleted run %s\n", output.ShortID(report.RunID))
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{failedCmd, exportCmd} {
		cmd.Flags().StringVar(&flagRunID, "run", "", "Run ID or unique prefix (default: latest run for this repository)")
	}
	exportCmd.Flags().StringVar(&flagInput, "input", "", "Render a JSON report file instead of a stored run")
	exportCmd.Flags().StringVar(&flagFormat, "format", "", "Output format (markdown, text, json, html)")
	exportCmd.Flags().StringVar(&flagOut, "out", "", "Output file path (default: stdout)")

	runsCmd.Flags().IntVar(&flagLimit, "limit", 20, "Maximum number of runs to list (0 for all)")
	runsCmd.AddCommand(runsDeleteCmd)
}
