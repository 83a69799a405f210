package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/prsum/internal/github"
	"github.com/dshills/prsum/internal/output"
)

var (
	flagPR         int
	flagGitHubRepo string
	flagDryRun     bool
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Post a stored summary to its GitHub pull request",
	Long: "Post the markdown summary of a stored run as a comment on the open pull request for " +
		"its branch. Publishing again, for example after `prsum retry`, edits the same comment.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		report, err := storedReport(ctx, cfg)
		if err != nil {
			fail(err)
			return nil
		}
		markdown := output.Markdown(report)
		if flagDryRun {
			fmt.Fprint(os.Stdout, github.CommentBody(markdown))
			return nil
		}

		owner, repo, err := githubRepo(cmd, report.Target().Repo.Root)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\nUse --github-repo owner/name to specify it.\n", err)
			exitCode = ExitUsageError
			return nil
		}

		client, err := github.NewClient()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = ExitAuthError
			return nil
		}

		pr := flagPR
		if pr == 0 {
			pr, err = client.FindPullRequest(ctx, owner, repo, report.Target().Current)
			if err != nil {
				publishFailed(err)
				return nil
			}
		}

		comment, created, err := client.PublishSummary(ctx, owner, repo, pr, markdown)
		if err != nil {
			publishFailed(err)
			return nil
		}
		verb := "Updated"
		if created {
			verb = "Posted"
		}
		fmt.Fprintf(os.Stdout, "%s summary on %s/%s#%d %s\n", verb, owner, repo, pr, comment.HTMLURL)
		return nil
	},
}

func githubRepo(cmd *cobra.Command, root string) (string, string, error) {
	if flagGitHubRepo != "" {
		owner, repo, ok := strings.Cut(flagGitHubRepo, "/")
		if !ok || owner == "" || repo == "" {
			return "", "", fmt.Errorf("invalid --github-repo %q", flagGitHubRepo)
		}
		return owner, repo, nil
	}
	if root == "" {
		root = repoRoot(cmd.Context())
	}
	return github.DetectRepo(cmd.Context(), root)
}

func publishFailed(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if errors.Is(err, github.ErrUnauthorized) {
		exitCode = ExitAuthError
		return
	}
	exitCode = ExitRuntimeError
}

func init() {
	publishCmd.Flags().StringVar(&flagRunID, "run", "", "Run ID or unique prefix (default: latest run for this repository)")
	publishCmd.Flags().IntVar(&flagPR, "pr", 0, "Pull request number (default: the open pull request for the run's branch)")
	publishCmd.Flags().StringVar(&flagGitHubRepo, "github-repo", "", "GitHub repository as owner/name (default: from the origin remote)")
	publishCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Print the comment instead of posting it")
}
