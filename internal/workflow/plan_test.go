package workflow

import "testing"

func containsID(ids []string, id string) bool {
	for _, i := range ids {
		if i == id {
			return true
		}
	}
	return false
}

func TestPlanIncludesFlashAndSimulationWhenRequested(t *testing.T) {
	state := newState("/proj", "esp32", true, true, "job-1")
	buildPlan(state)

	if state.task("flash_device") == nil {
		t.Fatal("expected flash_device task to be present")
	}
	if state.task("run_simulation") == nil {
		t.Fatal("expected run_simulation task to be present")
	}

	hw := state.task("hardware_check")
	if !containsID(hw.DependsOn, "flash_device") || !containsID(hw.DependsOn, "run_simulation") {
		t.Errorf("hardware_check.DependsOn = %v, want both parallel prerequisites", hw.DependsOn)
	}
	qa := state.task("qa_analysis")
	if !containsID(qa.DependsOn, "flash_device") || !containsID(qa.DependsOn, "run_simulation") {
		t.Errorf("qa_analysis.DependsOn = %v, want both parallel prerequisites", qa.DependsOn)
	}
}

func TestPlanSkipsUnrequestedParallelTasks(t *testing.T) {
	state := newState("/proj", "esp32", false, false, "job-1")
	buildPlan(state)

	if state.task("flash_device") != nil {
		t.Error("flash_device should not be scheduled when not requested")
	}
	if state.task("run_simulation") != nil {
		t.Error("run_simulation should not be scheduled when not requested")
	}

	hw := state.task("hardware_check")
	if !containsID(hw.DependsOn, "build_firmware") {
		t.Errorf("hardware_check.DependsOn = %v, want build_firmware as fallback prerequisite", hw.DependsOn)
	}
}

func TestPlanOnlyFlashRequested(t *testing.T) {
	state := newState("/proj", "esp32", true, false, "job-1")
	buildPlan(state)

	qa := state.task("qa_analysis")
	if len(qa.DependsOn) != 1 || qa.DependsOn[0] != "flash_device" {
		t.Errorf("qa_analysis.DependsOn = %v, want only flash_device", qa.DependsOn)
	}
}
