package workflow

// ready reports whether every dependency of t has completed
// successfully. A task blocked on a failed or skipped dependency never
// becomes ready; it is left pending, which is what drives the
// no-progress deadlock exit at the end of a run.
func (s *State) ready(t *Task) bool {
	if t.Status != TaskPending {
		return false
	}
	for _, dep := range t.DependsOn {
		d := s.task(dep)
		if d == nil || d.Status != TaskCompleted {
			return false
		}
	}
	return true
}

// selectReady partitions the currently ready pending tasks into a
// sequential group (run one at a time, in the order they were added to
// the plan) and a parallel group (run concurrently, waited on
// together).
func (s *State) selectReady() (sequential, parallel []*Task) {
	for _, id := range s.taskOrder {
		t := s.task(id)
		if !s.ready(t) {
			continue
		}
		if t.Parallel {
			parallel = append(parallel, t)
		} else {
			sequential = append(sequential, t)
		}
	}
	return sequential, parallel
}
