// Package github publishes prsum summaries to GitHub pull requests.
//
// It finds the open pull request for a branch, then creates or edits a single
// marker-tagged issue comment holding the markdown export, so a summary
// refreshed after retries replaces the earlier one. Authentication uses the
// GITHUB_TOKEN environment variable.
package github
