// Prsum is a local CLI that summarises the changes on a branch with LLM
// providers, one file at a time, and then writes an overall pull-request
// summary.
//
// Files that time out or fail are recorded in a stored report so they can be
// retried later with a longer timeout and folded back into the summary.
//
// Usage:
//
//	prsum summarize                      # current branch against main/master
//	prsum summarize --base develop --format markdown --out PR.md
//	prsum failed                         # list files that could not be summarized
//	prsum retry --all --timeout 900      # retry them, then regenerate the overall summary
//	prsum export --format html --out PR.html
package main
