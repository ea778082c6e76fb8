package workflow

// buildPlan constructs the fixed task graph for one workflow run.
// flash_device and run_simulation are included only when requested;
// hardware_check and qa_analysis always run and depend on whichever of
// those two tasks were actually scheduled.
func buildPlan(state *State) {
	state.addTask(&Task{ID: "setup_project", Action: ActionValidateStructure, Role: RoleProjectManager})
	state.addTask(&Task{ID: "set_target", Action: ActionSetTarget, Role: RoleProjectManager, DependsOn: []string{"setup_project"}})
	state.addTask(&Task{ID: "build_firmware", Action: ActionBuildFirmware, Role: RoleBuilder, DependsOn: []string{"set_target"}})

	var parallelPrereqs []string

	if state.FlashDevice {
		state.addTask(&Task{
			ID:        "flash_device",
			Action:    ActionFlashDevice,
			Role:      RoleTester,
			DependsOn: []string{"build_firmware"},
			Parallel:  true,
		})
		parallelPrereqs = append(parallelPrereqs, "flash_device")
	}

	if state.RunQEMU {
		state.addTask(&Task{
			ID:        "run_simulation",
			Action:    ActionRunSimulation,
			Role:      RoleTester,
			DependsOn: []string{"build_firmware"},
			Parallel:  true,
		})
		parallelPrereqs = append(parallelPrereqs, "run_simulation")
	}

	if len(parallelPrereqs) == 0 {
		parallelPrereqs = []string{"build_firmware"}
	}

	state.addTask(&Task{
		ID:        "hardware_check",
		Action:    ActionHardwareCheck,
		Role:      RoleDoctor,
		DependsOn: append([]string(nil), parallelPrereqs...),
		Parallel:  true,
	})
	state.addTask(&Task{
		ID:        "qa_analysis",
		Action:    ActionQAAnalysis,
		Role:      RoleQA,
		DependsOn: append([]string(nil), parallelPrereqs...),
		Parallel:  true,
	})
}
