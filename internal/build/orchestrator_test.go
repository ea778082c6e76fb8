package build

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nugget/thane-forge/internal/store"
	"github.com/nugget/thane-forge/internal/workflow"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "build_test.db")
	s, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newActiveProject(t *testing.T, st *store.Store, clonePath string) *store.Project {
	t.Helper()
	p := &store.Project{
		Name:       "firmware-demo",
		RemoteURL:  "https://example.com/firmware-demo.git",
		Slug:       "acme/firmware-demo",
		Branch:     "main",
		ClonePath:  clonePath,
		TargetChip: "esp32",
		State:      store.ProjectActive,
	}
	if err := st.CreateProject(p); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	return p
}

func newPendingBuild(t *testing.T, st *store.Store, projectID string) *store.Build {
	t.Helper()
	b := &store.Build{ProjectID: projectID, CommitHash: "abc123", TriggeredBy: store.TriggerManual}
	got, err := st.CreateBuild(b)
	if err != nil {
		t.Fatalf("CreateBuild: %v", err)
	}
	return got
}

type fakeEngine struct {
	result *workflow.Result
	err    error
}

func (f *fakeEngine) Run(ctx context.Context, projectPath, target string, flashDevice, runQEMU bool, jobID string) (*workflow.Result, error) {
	return f.result, f.err
}

func writeManifest(t *testing.T, dir string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, manifestFile), []byte("project(demo)\n"), 0o644); err != nil {
		t.Fatalf("writing manifest: %v", err)
	}
}

func TestExecuteBuildSucceeds(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir)

	st := newTestStore(t)
	project := newActiveProject(t, st, dir)
	b := newPendingBuild(t, st, project.ID)

	eng := &fakeEngine{result: &workflow.Result{Success: true, Phases: []string{"setup_project", "qa_analysis"}, Artifacts: map[string]any{}}}
	o := New(nil, st, eng)

	if err := o.ExecuteBuild(context.Background(), b.ID, false, true); err != nil {
		t.Fatalf("ExecuteBuild: %v", err)
	}

	got, err := st.GetBuild(b.ID)
	if err != nil {
		t.Fatalf("GetBuild: %v", err)
	}
	if got.State != store.BuildSuccess {
		t.Errorf("State = %q, want %q", got.State, store.BuildSuccess)
	}
	if got.StartedAt == nil || got.CompletedAt == nil {
		t.Error("expected started_at and completed_at to be stamped")
	}
	if got.TestResults == "" {
		t.Error("expected test_results to be recorded")
	}
}

func TestExecuteBuildRejectsInactiveProject(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir)

	st := newTestStore(t)
	project := newActiveProject(t, st, dir)
	project.State = store.ProjectPending
	if err := st.UpdateProject(project); err != nil {
		t.Fatalf("UpdateProject: %v", err)
	}
	b := newPendingBuild(t, st, project.ID)

	eng := &fakeEngine{result: &workflow.Result{Success: true}}
	o := New(nil, st, eng)

	if err := o.ExecuteBuild(context.Background(), b.ID, false, true); err != nil {
		t.Fatalf("ExecuteBuild: %v", err)
	}

	got, err := st.GetBuild(b.ID)
	if err != nil {
		t.Fatalf("GetBuild: %v", err)
	}
	if got.State != store.BuildFailed {
		t.Errorf("State = %q, want %q", got.State, store.BuildFailed)
	}
	if got.StartedAt != nil {
		t.Error("expected started_at to remain unset for a rejected build")
	}
}

func TestExecuteBuildRejectsMissingManifest(t *testing.T) {
	dir := t.TempDir()

	st := newTestStore(t)
	project := newActiveProject(t, st, dir)
	b := newPendingBuild(t, st, project.ID)

	eng := &fakeEngine{result: &workflow.Result{Success: true}}
	o := New(nil, st, eng)

	if err := o.ExecuteBuild(context.Background(), b.ID, false, true); err != nil {
		t.Fatalf("ExecuteBuild: %v", err)
	}

	got, err := st.GetBuild(b.ID)
	if err != nil {
		t.Fatalf("GetBuild: %v", err)
	}
	if got.State != store.BuildFailed {
		t.Errorf("State = %q, want %q", got.State, store.BuildFailed)
	}
}

func TestExecuteBuildRecordsWorkflowFailure(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir)

	st := newTestStore(t)
	project := newActiveProject(t, st, dir)
	b := newPendingBuild(t, st, project.ID)

	eng := &fakeEngine{result: &workflow.Result{Success: false, Phases: []string{"setup_project"}, Artifacts: map[string]any{}}}
	o := New(nil, st, eng)

	if err := o.ExecuteBuild(context.Background(), b.ID, false, true); err != nil {
		t.Fatalf("ExecuteBuild: %v", err)
	}

	got, err := st.GetBuild(b.ID)
	if err != nil {
		t.Fatalf("GetBuild: %v", err)
	}
	if got.State != store.BuildFailed {
		t.Errorf("State = %q, want %q", got.State, store.BuildFailed)
	}
}

func TestRetryBuildRejectsNonFailedBuild(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir)

	st := newTestStore(t)
	project := newActiveProject(t, st, dir)
	b := newPendingBuild(t, st, project.ID)

	o := New(nil, st, &fakeEngine{result: &workflow.Result{Success: true}})

	if err := o.RetryBuild(context.Background(), b.ID, false, true); err != ErrNotFailed {
		t.Errorf("RetryBuild error = %v, want %v", err, ErrNotFailed)
	}
}

func TestRetryBuildResetsAndReexecutes(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir)

	st := newTestStore(t)
	project := newActiveProject(t, st, dir)
	b := newPendingBuild(t, st, project.ID)

	failingEngine := &fakeEngine{result: &workflow.Result{Success: false, Artifacts: map[string]any{}}}
	o := New(nil, st, failingEngine)
	if err := o.ExecuteBuild(context.Background(), b.ID, false, true); err != nil {
		t.Fatalf("ExecuteBuild: %v", err)
	}

	o.engine = &fakeEngine{result: &workflow.Result{Success: true, Artifacts: map[string]any{}}}
	if err := o.RetryBuild(context.Background(), b.ID, false, true); err != nil {
		t.Fatalf("RetryBuild: %v", err)
	}

	got, err := st.GetBuild(b.ID)
	if err != nil {
		t.Fatalf("GetBuild: %v", err)
	}
	if got.State != store.BuildSuccess {
		t.Errorf("State = %q, want %q", got.State, store.BuildSuccess)
	}
}
