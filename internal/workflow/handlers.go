package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nugget/thane-forge/internal/llm"
	"github.com/nugget/thane-forge/internal/toolchain"
)

// entryPointFile is the conventional firmware entry point the repair
// loop targets for issues the simulator surfaces without any file
// attribution of its own (the simulator's output is plain console
// text, not compiler diagnostics).
const entryPointFile = "main/main.c"

// requiredManifests lists the files a project must contain for
// validate_structure to pass.
var requiredManifests = []string{"CMakeLists.txt", "idf_component.yml"}

func (e *Engine) handleValidateStructure(ctx context.Context, state *State, t *Task) error {
	names, err := e.toolchain.ListProjectFiles(state.ProjectPath)
	if err != nil {
		return err
	}
	present := make(map[string]bool, len(names))
	for _, n := range names {
		present[n] = true
	}
	var missing []string
	for _, m := range requiredManifests {
		if !present[m] {
			missing = append(missing, m)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("workflow: project is missing required files: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (e *Engine) handleSetTarget(ctx context.Context, state *State, t *Task) error {
	res, err := e.toolchain.SetTarget(ctx, state.ProjectPath, state.Target)
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("workflow: set-target failed for target %q", state.Target)
	}
	return nil
}

func (e *Engine) handleBuildFirmware(ctx context.Context, state *State, t *Task) error {
	res, err := e.toolchain.Build(ctx, state.ProjectPath)
	state.setArtifact("build", res)
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("workflow: build failed")
	}
	return nil
}

func (e *Engine) handleFlashDevice(ctx context.Context, state *State, t *Task) error {
	res, err := e.toolchain.Flash(ctx, state.ProjectPath, e.cfg.FlashDevicePath)
	state.setArtifact("flash", res)
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("workflow: flash failed")
	}
	return nil
}

func (e *Engine) handleRunSimulation(ctx context.Context, state *State, t *Task) error {
	res, err := e.toolchain.Simulate(ctx, state.ProjectPath, e.cfg.SimulatorStartup)
	state.setArtifact("qemu_output", res)
	if err != nil {
		return err
	}
	return nil
}

func (e *Engine) handleHardwareCheck(ctx context.Context, state *State, t *Task) error {
	res, err := e.toolchain.Doctor(ctx, state.ProjectPath)
	state.setArtifact("doctor", res)
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("workflow: hardware diagnostics reported a problem")
	}
	return nil
}

// handleQAAnalysis inspects the artifacts produced by earlier tasks
// and reports issues. The task itself never fails: a failing analysis
// is recorded as issues on the task, and the caller decides whether to
// enter the repair loop.
func (e *Engine) handleQAAnalysis(ctx context.Context, state *State, t *Task) error {
	// build_firmware is a strict prerequisite of qa_analysis (directly
	// or via flash_device/run_simulation), so its result is always
	// present by the time this handler runs; the exit code alone can
	// still read Success while the compiler logged an error, so the
	// build artifact's output is inspected below too. hardware_check is
	// a sibling, not a prerequisite, so its doctor output has no
	// ordering guarantee relative to this task and is deliberately not
	// consulted here.
	//
	// retest_N's only prerequisite is rebuild_N, which says nothing
	// about runtime behavior, so re-testing means re-running the
	// simulator before analyzing its output again.
	if strings.HasPrefix(t.ID, "retest_") && state.RunQEMU {
		res, err := e.toolchain.Simulate(ctx, state.ProjectPath, e.cfg.SimulatorStartup)
		state.setArtifact("qemu_output", res)
		if err != nil {
			return err
		}
	}

	if build, ok := state.artifact("build").(*toolchain.Result); ok && build != nil {
		output := strings.ToLower(build.Stdout + build.Stderr)
		if strings.Contains(output, "error") {
			t.Issues = append(t.Issues, Issue{
				Severity:  "high",
				Component: "build",
				Message:   "build output contains an error",
				File:      entryPointFile,
			})
		}
	}

	if qemu, ok := state.artifact("qemu_output").(*toolchain.Result); ok && qemu != nil {
		output := strings.ToLower(qemu.Stdout + qemu.Stderr)
		switch {
		case strings.Contains(output, "abort") || strings.Contains(output, "error"):
			t.Issues = append(t.Issues, Issue{
				Severity:  "error",
				Component: "simulator",
				Message:   "simulator output contains an abort or error",
				File:      entryPointFile,
			})
		case !strings.Contains(output, "hello world"):
			t.Issues = append(t.Issues, Issue{
				Severity:  "high",
				Component: "application",
				Message:   "simulator output did not contain the expected startup marker",
				File:      entryPointFile,
			})
		}
	}

	return nil
}

// qaPassed reports whether QA analysis found no issues at all; any
// recorded issue, regardless of severity, is blocking.
func qaPassed(t *Task) bool {
	return len(t.Issues) == 0
}

// fixPrompt is grounded on the repair-loop guidance described for the
// developer agent: give the model the failing file's current content
// plus the issue that was found in it.
func fixPrompt(issue Issue, currentContent string) []llm.Message {
	return []llm.Message{
		{
			Role:    "system",
			Content: "You are a firmware developer fixing a build or runtime issue. Respond only with JSON: {\"diagnosis\": string, \"fixed_code\": string, \"changes\": [string], \"confidence\": number}. Set fixed_code to the full corrected file contents, or leave it empty if you cannot determine a fix.",
		},
		{
			Role: "user",
			Content: fmt.Sprintf("Issue in component %q: %s\n\nCurrent file contents:\n%s",
				issue.Component, issue.Message, currentContent),
		},
	}
}

// handleFixIssues asks the language model for a fix for each issue
// that names a file, applies any fix it is confident enough to return,
// and reports success if at least one fix was applied.
func (e *Engine) handleFixIssues(ctx context.Context, state *State, t *Task) error {
	applied := 0
	for _, issue := range t.Issues {
		if issue.File == "" {
			continue
		}
		current, err := e.toolchain.ReadFile(state.ProjectPath, issue.File)
		if err != nil {
			continue
		}

		model, provider, decision := e.router.Route(ctx, e.cfg.DefaultModel)
		resp, err := e.llm.Complete(ctx, model, fixPrompt(issue, current))
		if err != nil {
			e.router.RecordOutcome(decision.RequestID, 0, 0, false)
			continue
		}
		e.router.RecordOutcome(decision.RequestID, 0, resp.InputTokens+resp.OutputTokens, true)
		_ = provider

		var fix Fix
		if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &fix); err != nil {
			continue
		}
		if strings.TrimSpace(fix.FixedCode) == "" {
			continue
		}
		if err := e.toolchain.WriteFile(state.ProjectPath, issue.File, fix.FixedCode); err != nil {
			continue
		}
		applied++
	}
	if applied == 0 {
		return fmt.Errorf("workflow: no fix could be applied for the reported issues")
	}
	return nil
}

// extractJSON trims leading/trailing prose a model sometimes wraps a
// JSON object in, returning the span from the first '{' to the last
// '}' (or s unchanged when there is no such span).
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}
