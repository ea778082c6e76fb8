package workflow

import "fmt"

// scheduleRepair appends one fix/rebuild/retest triple to the plan
// when QA analysis found a blocking issue and the iteration bound has
// not been reached. The new tasks run sequentially, after whatever is
// already pending, so the next readiness pass picks up fix_issues_n
// first.
func (e *Engine) scheduleRepair(state *State, qa *Task) {
	if state.QAIterations >= e.cfg.QAIterationBound {
		e.emitLog(state, qa, "WARNING", fmt.Sprintf("qa_analysis failed and the repair bound (%d) was reached", e.cfg.QAIterationBound))
		return
	}
	state.QAIterations++
	n := state.QAIterations

	fixID := fmt.Sprintf("fix_issues_%d", n)
	rebuildID := fmt.Sprintf("rebuild_%d", n)
	retestID := fmt.Sprintf("retest_%d", n)

	fixTask := &Task{ID: fixID, Action: ActionFixIssues, Role: RoleDeveloper, DependsOn: []string{qa.ID}}
	fixTask.Issues = append([]Issue(nil), qa.Issues...)
	state.addTask(fixTask)
	state.addTask(&Task{ID: rebuildID, Action: ActionBuildFirmware, Role: RoleBuilder, DependsOn: []string{fixID}})
	state.addTask(&Task{ID: retestID, Action: ActionQAAnalysis, Role: RoleQA, DependsOn: []string{rebuildID}})

	state.latestQA = retestID
}
