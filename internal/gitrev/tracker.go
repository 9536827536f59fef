// Package gitrev probes a local git checkout's branch, commit, and
// upstream drift, ported from the original's GitRepositoryTracker so the
// heartbeat loop can populate Bot's tracked_branch/current_commit_hash/
// latest_available_commit_hash/commits_behind fields (spec §3, §4.5 step 3).
package gitrev

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrNotARepo is returned when repoPath has no .git directory.
var ErrNotARepo = fmt.Errorf("gitrev: not a git repository")

// Status is one point-in-time reading of the tracked branch's position
// relative to its remote.
type Status struct {
	Branch        string
	LocalCommit   string
	RemoteCommit  string
	CommitsBehind int
}

// Tracker wraps the git CLI against one checkout.
type Tracker struct {
	RepoPath string
	Remote   string
	Branch   string
}

// New constructs a Tracker. remote/branch default to "origin"/"main" per
// spec §6.1 if empty.
func New(repoPath, remote, branch string) *Tracker {
	if remote == "" {
		remote = "origin"
	}
	if branch == "" {
		branch = "main"
	}
	return &Tracker{RepoPath: repoPath, Remote: remote, Branch: branch}
}

// CheckStatus fetches the tracked remote (pruning stale refs) then reads
// local HEAD, the remote branch tip, and the commit count between them.
func (t *Tracker) CheckStatus(ctx context.Context) (*Status, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return nil, fmt.Errorf("gitrev: git not found: %w", err)
	}

	gitDir := filepath.Join(t.RepoPath, ".git")
	if out, err := t.run(ctx, "rev-parse", "--git-dir"); err != nil {
		return nil, fmt.Errorf("%w: %s (%v)", ErrNotARepo, gitDir, err)
	} else if strings.TrimSpace(out) == "" {
		return nil, ErrNotARepo
	}

	if _, err := t.run(ctx, "fetch", "--prune", t.Remote, t.Branch); err != nil {
		return nil, fmt.Errorf("gitrev: fetch: %w", err)
	}

	localCommit, err := t.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("gitrev: rev-parse HEAD: %w", err)
	}

	remoteRef := t.Remote + "/" + t.Branch
	remoteCommit, err := t.run(ctx, "rev-parse", remoteRef)
	if err != nil {
		return nil, fmt.Errorf("gitrev: rev-parse %s: %w", remoteRef, err)
	}

	countOut, err := t.run(ctx, "rev-list", "--count", strings.TrimSpace(localCommit)+".."+strings.TrimSpace(remoteCommit))
	if err != nil {
		return nil, fmt.Errorf("gitrev: rev-list --count: %w", err)
	}
	behind, err := strconv.Atoi(strings.TrimSpace(countOut))
	if err != nil {
		return nil, fmt.Errorf("gitrev: parse commits behind: %w", err)
	}

	return &Status{
		Branch:        t.Branch,
		LocalCommit:   strings.TrimSpace(localCommit),
		RemoteCommit:  strings.TrimSpace(remoteCommit),
		CommitsBehind: behind,
	}, nil
}

func (t *Tracker) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = t.RepoPath
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w (%s)", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
