// Package build drives one build record from trigger to terminal
// status: validating the project, invoking the workflow engine, and
// persisting the outcome.
package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nugget/thane-forge/internal/store"
	"github.com/nugget/thane-forge/internal/workflow"
)

// ErrNotFailed is returned by RetryBuild when the build is not currently failed.
var ErrNotFailed = errors.New("build: cannot retry a build that is not in failed state")

// manifestFile is the file whose presence marks a clone as a buildable
// project. Mirrors the toolchain's own required-file check.
const manifestFile = "CMakeLists.txt"

// engine is the subset of *workflow.Engine the orchestrator drives,
// declared here so tests can substitute a fake.
type engine interface {
	Run(ctx context.Context, projectPath, target string, flashDevice, runQEMU bool, jobID string) (*workflow.Result, error)
}

// Orchestrator executes builds against the persistent store, recording
// every transition so a crash mid-build still leaves an inspectable
// record.
type Orchestrator struct {
	logger *slog.Logger
	store  *store.Store
	engine engine
}

// New creates an Orchestrator.
func New(logger *slog.Logger, st *store.Store, eng engine) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{logger: logger, store: st, engine: eng}
}

// ExecuteBuild validates the project, runs the workflow, and persists
// the outcome. It returns an error only for conditions the caller
// cannot recover from (build or project not found, or a failure to
// write the build record); a failed workflow is reported as a terminal
// build state, not a Go error.
func (o *Orchestrator) ExecuteBuild(ctx context.Context, buildID string, flashDevice, runQEMU bool) error {
	b, err := o.store.GetBuild(buildID)
	if err != nil {
		return fmt.Errorf("build: loading %s: %w", buildID, err)
	}
	project, err := o.store.GetProject(b.ProjectID)
	if err != nil {
		return fmt.Errorf("build: loading project %s: %w", b.ProjectID, err)
	}

	if reason := o.validateProject(project); reason != "" {
		b.State = store.BuildFailed
		b.BuildOutput = reason
		if err := o.store.UpdateBuild(b); err != nil {
			return fmt.Errorf("build: recording validation failure: %w", err)
		}
		o.logger.Warn("build rejected, project not ready", "build_id", buildID, "reason", reason)
		return nil
	}

	b.State = store.BuildRunning
	started := time.Now()
	b.StartedAt = &started
	if err := o.store.UpdateBuild(b); err != nil {
		return fmt.Errorf("build: recording start: %w", err)
	}
	o.logger.Info("build starting", "build_id", buildID, "project", project.Name, "target", project.TargetChip)

	result, runErr := o.runWorkflow(ctx, project, flashDevice, runQEMU, buildID)

	completed := time.Now()
	b.CompletedAt = &completed
	if b.StartedAt != nil {
		b.DurationSec = completed.Sub(*b.StartedAt).Seconds()
	}

	if runErr != nil {
		b.State = store.BuildFailed
		b.BuildOutput = runErr.Error()
		o.logger.Error("build raised an exception", "build_id", buildID, "error", runErr)
	} else {
		if result.Success {
			b.State = store.BuildSuccess
		} else {
			b.State = store.BuildFailed
		}
		b.BuildOutput = fmt.Sprintf("phases: %v", result.Phases)
		if testJSON, err := marshalTestResults(result); err == nil {
			b.TestResults = testJSON
		}
		if artifacts, ok := result.Artifacts["build"]; ok {
			b.ArtifactsPath = fmt.Sprintf("%v", artifacts)
		}
		o.logger.Info("build finished", "build_id", buildID, "state", b.State, "qa_iterations", result.QAIterations)
	}

	if err := o.store.UpdateBuild(b); err != nil {
		return fmt.Errorf("build: recording completion: %w", err)
	}
	return nil
}

func (o *Orchestrator) runWorkflow(ctx context.Context, project *store.Project, flashDevice, runQEMU bool, buildID string) (result *workflow.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("build: workflow panicked: %v", r)
		}
	}()
	return o.engine.Run(ctx, project.ClonePath, project.TargetChip, flashDevice, runQEMU, buildID)
}

// validateProject returns a non-empty rejection reason, or "" if the
// project is ready to build.
func (o *Orchestrator) validateProject(p *store.Project) string {
	if p.State != store.ProjectActive {
		return fmt.Sprintf("project status is %q, must be %q", p.State, store.ProjectActive)
	}
	if p.ClonePath == "" {
		return "project has no clone path"
	}
	if _, err := os.Stat(p.ClonePath); err != nil {
		return fmt.Sprintf("clone path does not exist: %s", p.ClonePath)
	}
	if _, err := os.Stat(filepath.Join(p.ClonePath, manifestFile)); err != nil {
		return fmt.Sprintf("project is missing %s", manifestFile)
	}
	return ""
}

// RetryBuild rejects unless the build is currently failed, resets its
// recorded run state, and re-enters ExecuteBuild.
func (o *Orchestrator) RetryBuild(ctx context.Context, buildID string, flashDevice, runQEMU bool) error {
	b, err := o.store.GetBuild(buildID)
	if err != nil {
		return fmt.Errorf("build: loading %s: %w", buildID, err)
	}
	if b.State != store.BuildFailed {
		return ErrNotFailed
	}

	b.State = store.BuildPending
	b.StartedAt = nil
	b.CompletedAt = nil
	b.DurationSec = 0
	b.BuildOutput = ""
	b.TestResults = ""
	b.ArtifactsPath = ""
	if err := o.store.UpdateBuild(b); err != nil {
		return fmt.Errorf("build: resetting %s: %w", buildID, err)
	}

	o.logger.Info("retrying failed build", "build_id", buildID)
	return o.ExecuteBuild(ctx, buildID, flashDevice, runQEMU)
}

// Stats proxies the store's aggregate build statistics for a project
// (or every project, when projectID is empty).
func (o *Orchestrator) Stats(projectID string) (*store.BuildStats, error) {
	return o.store.Stats(projectID)
}
