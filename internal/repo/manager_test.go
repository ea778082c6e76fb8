package repo

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available in test environment")
	}
}

// newRemote creates a bare-ish local repo with one commit, usable as a
// clone source via a file:// style plain path.
func newRemote(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com")
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}
	run("init", "-b", "main")
	if err := os.WriteFile(filepath.Join(dir, "idf_component.yml"), []byte("name: demo\n"), 0o644); err != nil {
		t.Fatalf("write seed file: %v", err)
	}
	run("add", ".")
	run("commit", "-m", "initial")
	return dir
}

func TestCloneAndLatestCommit(t *testing.T) {
	requireGit(t)
	remote := newRemote(t)
	dest := filepath.Join(t.TempDir(), "clone")

	m := New(30 * time.Second)
	if err := m.Clone(context.Background(), remote, dest, "main"); err != nil {
		t.Fatalf("Clone: %v", err)
	}

	commit, err := m.LatestCommit(context.Background(), dest)
	if err != nil {
		t.Fatalf("LatestCommit: %v", err)
	}
	if len(commit) != 40 {
		t.Errorf("commit hash length = %d, want 40", len(commit))
	}
}

func TestCloneIsDestructive(t *testing.T) {
	requireGit(t)
	remote := newRemote(t)
	dest := filepath.Join(t.TempDir(), "clone")

	m := New(30 * time.Second)
	if err := m.Clone(context.Background(), remote, dest, "main"); err != nil {
		t.Fatalf("first Clone: %v", err)
	}

	stray := filepath.Join(dest, "stray.txt")
	if err := os.WriteFile(stray, []byte("leftover"), 0o644); err != nil {
		t.Fatalf("write stray file: %v", err)
	}

	if err := m.Clone(context.Background(), remote, dest, "main"); err != nil {
		t.Fatalf("second Clone: %v", err)
	}
	if _, err := os.Stat(stray); !os.IsNotExist(err) {
		t.Error("stray file survived a re-clone; clone should be destructive")
	}
}

func TestUpdateFastForwards(t *testing.T) {
	requireGit(t)
	remote := newRemote(t)
	dest := filepath.Join(t.TempDir(), "clone")

	m := New(30 * time.Second)
	if err := m.Clone(context.Background(), remote, dest, "main"); err != nil {
		t.Fatalf("Clone: %v", err)
	}
	first, err := m.LatestCommit(context.Background(), dest)
	if err != nil {
		t.Fatalf("LatestCommit: %v", err)
	}

	cmd := exec.Command("git", "commit", "--allow-empty", "-m", "second")
	cmd.Dir = remote
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("seeding second commit: %v: %s", err, out)
	}

	if err := m.Update(context.Background(), dest, "main"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	second, err := m.LatestCommit(context.Background(), dest)
	if err != nil {
		t.Fatalf("LatestCommit after update: %v", err)
	}
	if second == first {
		t.Error("commit did not advance after Update")
	}
}

func TestCheckoutMovesWorkingTree(t *testing.T) {
	requireGit(t)
	remote := newRemote(t)
	dest := filepath.Join(t.TempDir(), "clone")

	m := New(30 * time.Second)
	if err := m.Clone(context.Background(), remote, dest, "main"); err != nil {
		t.Fatalf("Clone: %v", err)
	}
	first, err := m.LatestCommit(context.Background(), dest)
	if err != nil {
		t.Fatalf("LatestCommit: %v", err)
	}

	if err := m.Checkout(context.Background(), dest, first); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	current, err := m.LatestCommit(context.Background(), dest)
	if err != nil {
		t.Fatalf("LatestCommit after checkout: %v", err)
	}
	if current != first {
		t.Errorf("commit after checkout = %s, want %s", current, first)
	}
}

func TestDiffCountsChanges(t *testing.T) {
	requireGit(t)
	remote := newRemote(t)
	dest := filepath.Join(t.TempDir(), "clone")

	m := New(30 * time.Second)
	if err := m.Clone(context.Background(), remote, dest, "main"); err != nil {
		t.Fatalf("Clone: %v", err)
	}
	from, err := m.LatestCommit(context.Background(), dest)
	if err != nil {
		t.Fatalf("LatestCommit: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dest, "idf_component.yml"), []byte("name: demo\nversion: 2\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dest
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com")
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}
	run("commit", "-am", "bump version")
	to, err := m.LatestCommit(context.Background(), dest)
	if err != nil {
		t.Fatalf("LatestCommit: %v", err)
	}

	summary, err := m.Diff(context.Background(), dest, from, to)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if len(summary.Files) != 1 {
		t.Fatalf("changed files = %d, want 1", len(summary.Files))
	}
	if summary.Files[0].Path != "idf_component.yml" {
		t.Errorf("changed file = %q, want idf_component.yml", summary.Files[0].Path)
	}
}

func TestConcurrentOperationsOnSamePathSerialize(t *testing.T) {
	requireGit(t)
	remote := newRemote(t)
	dest := filepath.Join(t.TempDir(), "clone")

	m := New(30 * time.Second)
	if err := m.Clone(context.Background(), remote, dest, "main"); err != nil {
		t.Fatalf("Clone: %v", err)
	}

	done := make(chan error, 2)
	go func() { _, err := m.LatestCommit(context.Background(), dest); done <- err }()
	go func() { _, err := m.LatestCommit(context.Background(), dest); done <- err }()

	for i := 0; i < 2; i++ {
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("concurrent LatestCommit: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for concurrent operations")
		}
	}
}
