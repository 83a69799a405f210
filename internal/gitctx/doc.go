// Package gitctx reads branch diffs and commit metadata from a git repository.
//
// [Repo] shells out to git: changed paths and per-file diffs are taken
// against the merge base (base...current), commit subjects from
// base..current. Files whose diff carries no text hunk are reported as an
// empty diff rather than an error.
package gitctx
