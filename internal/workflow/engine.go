// Package workflow implements the build-validate-repair pipeline run
// for a single firmware build: validating project structure, setting
// the target chip, compiling, optionally flashing hardware and/or
// running the simulator, running diagnostics, analyzing the results,
// and repairing and retrying when quality analysis finds a blocking
// issue.
//
// Scheduling proceeds in discrete readiness passes. Each pass selects
// every task whose dependencies have completed, runs the sequential
// ones one at a time in plan order, then launches the parallel ones
// together and waits for all of them to settle before starting the
// next pass. A pass that selects nothing ends the run: any task still
// pending at that point is blocked behind a failed dependency.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nugget/thane-forge/internal/events"
	"github.com/nugget/thane-forge/internal/llm"
	"github.com/nugget/thane-forge/internal/router"
	"github.com/nugget/thane-forge/internal/toolchain"
)

// toolchainClient is the subset of *toolchain.Runner the engine drives.
// Declaring it here lets tests substitute a fake without spawning real
// subprocesses.
type toolchainClient interface {
	SetTarget(ctx context.Context, projectPath, target string) (*toolchain.Result, error)
	Build(ctx context.Context, projectPath string) (*toolchain.Result, error)
	Flash(ctx context.Context, projectPath, device string) (*toolchain.Result, error)
	Simulate(ctx context.Context, projectPath string, startup time.Duration) (*toolchain.Result, error)
	Doctor(ctx context.Context, projectPath string) (*toolchain.Result, error)
	ReadFile(projectPath, relativePath string) (string, error)
	WriteFile(projectPath, relativePath, content string) error
	ListProjectFiles(projectPath string) ([]string, error)
}

// Config holds the bounds the engine enforces while running a workflow.
type Config struct {
	QAIterationBound int
	MaxParallelTasks int
	SimulatorStartup time.Duration
	FlashDevicePath  string
	DefaultModel     string
}

// Engine runs workflow instances against a project checkout.
type Engine struct {
	logger    *slog.Logger
	bus       *events.Bus
	toolchain toolchainClient
	llm       llm.Client
	router    *router.Router
	cfg       Config
}

// New creates an Engine. bus may be nil, in which case no progress
// events are published.
func New(logger *slog.Logger, bus *events.Bus, tc toolchainClient, llmClient llm.Client, rtr *router.Router, cfg Config) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QAIterationBound <= 0 {
		cfg.QAIterationBound = 3
	}
	if cfg.MaxParallelTasks <= 0 {
		cfg.MaxParallelTasks = 4
	}
	if cfg.SimulatorStartup <= 0 {
		cfg.SimulatorStartup = 3 * time.Second
	}
	return &Engine{
		logger:    logger,
		bus:       bus,
		toolchain: tc,
		llm:       llmClient,
		router:    rtr,
		cfg:       cfg,
	}
}

// Run executes one workflow for projectPath against target, optionally
// flashing a connected device and/or starting the simulator, and
// returns once every task has reached a terminal status or the plan
// deadlocks.
func (e *Engine) Run(ctx context.Context, projectPath, target string, flashDevice, runQEMU bool, jobID string) (*Result, error) {
	state := newState(projectPath, target, flashDevice, runQEMU, jobID)
	buildPlan(state)

	for {
		sequential, parallel := state.selectReady()
		if len(sequential) == 0 && len(parallel) == 0 {
			break
		}

		for _, t := range sequential {
			e.runTask(ctx, state, t)
		}

		e.runParallelGroup(ctx, state, parallel)

		if qa := state.currentQA(); qa != nil && qa.Status == TaskCompleted && !qaPassed(qa) {
			e.scheduleRepair(state, qa)
		}
	}

	return e.summarize(state), nil
}

// runParallelGroup launches every task in group concurrently, bounded
// by MaxParallelTasks, and waits for all of them to finish. A task
// failing in the group does not cancel its siblings.
func (e *Engine) runParallelGroup(ctx context.Context, state *State, group []*Task) {
	if len(group) == 0 {
		return
	}
	sem := make(chan struct{}, e.cfg.MaxParallelTasks)
	var wg sync.WaitGroup
	for _, t := range group {
		t := t
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			e.runTask(ctx, state, t)
		}()
	}
	wg.Wait()
}

// runTask executes a single task's handler, recovering from any panic
// inside it and mapping both panics and returned errors to a failed
// task status rather than propagating them out of the engine.
func (e *Engine) runTask(ctx context.Context, state *State, t *Task) {
	t.Status = TaskRunning
	t.StartedAt = time.Now()
	e.emitPhase(events.KindWorkflowPhaseStarted, state, t)
	e.emitLog(state, t, "INFO", fmt.Sprintf("starting %s", t.ID))
	e.emitProgress(state, t)

	err := e.invoke(ctx, state, t)

	t.CompletedAt = time.Now()
	if err != nil {
		t.Status = TaskFailed
		t.Error = err.Error()
		e.emitLog(state, t, "ERROR", fmt.Sprintf("%s failed: %s", t.ID, err.Error()))
	} else {
		t.Status = TaskCompleted
		e.emitLog(state, t, "SUCCESS", fmt.Sprintf("%s completed", t.ID))
	}
	e.emitProgress(state, t)
	e.emitPhase(events.KindWorkflowPhaseComplete, state, t)
}

// invoke dispatches to the handler for t.Action, converting a panic
// inside the handler into a plain error so one broken handler never
// takes down the engine.
func (e *Engine) invoke(ctx context.Context, state *State, t *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("workflow: task %s panicked: %v", t.ID, r)
		}
	}()

	switch t.Action {
	case ActionValidateStructure:
		return e.handleValidateStructure(ctx, state, t)
	case ActionSetTarget:
		return e.handleSetTarget(ctx, state, t)
	case ActionBuildFirmware:
		return e.handleBuildFirmware(ctx, state, t)
	case ActionFlashDevice:
		return e.handleFlashDevice(ctx, state, t)
	case ActionRunSimulation:
		return e.handleRunSimulation(ctx, state, t)
	case ActionHardwareCheck:
		return e.handleHardwareCheck(ctx, state, t)
	case ActionQAAnalysis:
		return e.handleQAAnalysis(ctx, state, t)
	case ActionFixIssues:
		return e.handleFixIssues(ctx, state, t)
	default:
		return fmt.Errorf("workflow: unknown action %q", t.Action)
	}
}

func (e *Engine) summarize(state *State) *Result {
	success := true
	phases := make([]string, 0, len(state.taskOrder))
	for _, id := range state.taskOrder {
		t := state.task(id)
		phases = append(phases, id)
		if t.Status != TaskCompleted {
			success = false
		}
	}
	if qa := state.currentQA(); qa != nil && !qaPassed(qa) {
		success = false
	}
	return &Result{
		Success:      success,
		Phases:       phases,
		QAIterations: state.QAIterations,
		Artifacts:    state.Artifacts,
	}
}

func (e *Engine) emitPhase(kind events.Kind, state *State, t *Task) {
	if e.bus == nil {
		return
	}
	_ = e.bus.Publish(context.Background(), events.Event{
		Kind:  kind,
		JobID: state.JobID,
		At:    time.Now(),
		Payload: map[string]any{
			"task_id": t.ID,
			"action":  string(t.Action),
		},
	})
}

func (e *Engine) emitProgress(state *State, t *Task) {
	if e.bus == nil {
		return
	}
	_ = e.bus.Publish(context.Background(), events.Event{
		Kind:  events.KindJobProgress,
		JobID: state.JobID,
		At:    time.Now(),
		Payload: map[string]any{
			"task_id": t.ID,
			"status":  string(t.Status),
		},
	})
}

// emitLog records a log-entry event and mirrors it to the structured
// logger. severity is one of "INFO", "SUCCESS", "ERROR" or "WARNING".
func (e *Engine) emitLog(state *State, t *Task, severity, message string) {
	if e.bus != nil {
		_ = e.bus.Publish(context.Background(), events.Event{
			Kind:  events.KindLogEntry,
			JobID: state.JobID,
			At:    time.Now(),
			Payload: map[string]any{
				"task_id":  t.ID,
				"severity": severity,
				"message":  message,
			},
		})
	}

	level := slog.LevelInfo
	if severity == "ERROR" {
		level = slog.LevelError
	} else if severity == "WARNING" {
		level = slog.LevelWarn
	}
	e.logger.Log(context.Background(), level, message, "task_id", t.ID, "job_id", state.JobID)
}
