// Package repo manages local clones of project repositories: cloning,
// updating, checking out commits, and summarizing diffs. Every
// operation shells out to the system git binary; working-tree access
// for a given clone path is serialized so concurrent builds of the
// same project cannot interleave clone/update/checkout calls against
// each other.
package repo

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Manager runs git operations against local clone paths.
type Manager struct {
	defaultTimeout time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Manager. defaultTimeout bounds any git invocation that
// does not specify its own context deadline.
func New(defaultTimeout time.Duration) *Manager {
	if defaultTimeout <= 0 {
		defaultTimeout = 5 * time.Minute
	}
	return &Manager{
		defaultTimeout: defaultTimeout,
		locks:          make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex serializing working-tree operations for a
// single clone path, creating one on first use.
func (m *Manager) lockFor(localPath string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[localPath]
	if !ok {
		l = &sync.Mutex{}
		m.locks[localPath] = l
	}
	return l
}

// Clone performs a shallow clone of remoteURL's branch into localPath.
// If localPath already contains a working tree, it is removed first —
// clone is destructive re-clone, not an incremental update.
func (m *Manager) Clone(ctx context.Context, remoteURL, localPath, branch string) error {
	lock := m.lockFor(localPath)
	lock.Lock()
	defer lock.Unlock()

	if _, err := os.Stat(localPath); err == nil {
		if err := os.RemoveAll(localPath); err != nil {
			return fmt.Errorf("repo: removing existing clone at %s: %w", localPath, err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("repo: preparing parent directory: %w", err)
	}

	args := []string{"clone", "--depth", "1"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, remoteURL, localPath)

	if _, _, err := m.run(ctx, "", args...); err != nil {
		return fmt.Errorf("repo: clone %s: %w", remoteURL, err)
	}
	return nil
}

// Update fetches origin and hard-resets localPath to origin/<branch>
// (origin/HEAD, the remote's default branch, if branch is empty).
func (m *Manager) Update(ctx context.Context, localPath, branch string) error {
	lock := m.lockFor(localPath)
	lock.Lock()
	defer lock.Unlock()

	if _, _, err := m.run(ctx, localPath, "fetch", "--depth", "1", "origin"); err != nil {
		return fmt.Errorf("repo: fetch at %s: %w", localPath, err)
	}

	ref := branch
	if ref == "" {
		ref = "HEAD"
	}
	if _, _, err := m.run(ctx, localPath, "reset", "--hard", "origin/"+strings.TrimPrefix(ref, "origin/")); err != nil {
		return fmt.Errorf("repo: reset to origin/%s at %s: %w", ref, localPath, err)
	}
	return nil
}

// Checkout moves localPath's working tree to commitHash.
func (m *Manager) Checkout(ctx context.Context, localPath, commitHash string) error {
	lock := m.lockFor(localPath)
	lock.Lock()
	defer lock.Unlock()

	if _, _, err := m.run(ctx, localPath, "checkout", commitHash); err != nil {
		return fmt.Errorf("repo: checkout %s at %s: %w", commitHash, localPath, err)
	}
	return nil
}

// LatestCommit returns the hash HEAD currently points to.
func (m *Manager) LatestCommit(ctx context.Context, localPath string) (string, error) {
	lock := m.lockFor(localPath)
	lock.Lock()
	defer lock.Unlock()

	stdout, _, err := m.run(ctx, localPath, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("repo: rev-parse HEAD at %s: %w", localPath, err)
	}
	return strings.TrimSpace(stdout), nil
}

// DiffSummary reports per-file line-change counts between two commits.
type DiffSummary struct {
	Files     []FileDiff
	Additions int
	Deletions int
}

// FileDiff is the change count for a single file in a DiffSummary.
type FileDiff struct {
	Path      string
	Additions int
	Deletions int
}

// Diff summarizes the changes between two commits (or refs) in
// localPath without mutating the working tree.
func (m *Manager) Diff(ctx context.Context, localPath, from, to string) (*DiffSummary, error) {
	lock := m.lockFor(localPath)
	lock.Lock()
	defer lock.Unlock()

	stdout, _, err := m.run(ctx, localPath, "diff", "--numstat", from, to)
	if err != nil {
		return nil, fmt.Errorf("repo: diff %s..%s at %s: %w", from, to, localPath, err)
	}

	summary := &DiffSummary{}
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 3)
		if len(fields) != 3 {
			continue
		}
		add, _ := strconv.Atoi(fields[0])
		del, _ := strconv.Atoi(fields[1])
		summary.Files = append(summary.Files, FileDiff{Path: fields[2], Additions: add, Deletions: del})
		summary.Additions += add
		summary.Deletions += del
	}
	return summary, nil
}

// run executes `git <args>` with dir as its working directory (skipped
// when dir is empty, for operations like clone that have no working
// tree yet), bounded by the manager's default timeout.
func (m *Manager) run(ctx context.Context, dir string, args ...string) (stdout, stderr string, err error) {
	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	runErr := cmd.Run()
	stdout, stderr = outBuf.String(), errBuf.String()

	if ctx.Err() == context.DeadlineExceeded {
		return stdout, stderr, fmt.Errorf("git %s timed out after %s", strings.Join(args, " "), m.defaultTimeout)
	}
	if runErr != nil {
		return stdout, stderr, fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), runErr, strings.TrimSpace(stderr))
	}
	return stdout, stderr, nil
}
