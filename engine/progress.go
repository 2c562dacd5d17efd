package engine

import "github.com/flowmesh/workflow/primitive"

// shortestPathToTerminal returns the minimum number of edges from stepID to
// any terminal step, via Next or Transitions. A terminal step itself is
// distance 0. Returns 0 for an unreachable step too, since progress must
// never be allowed to make Total smaller than Current (see computeProgress).
func shortestPathToTerminal(steps map[string]StepDefinition, stepID string) int {
	type item struct {
		id   string
		dist int
	}
	visited := map[string]bool{stepID: true}
	queue := []item{{id: stepID, dist: 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		step, ok := steps[cur.id]
		if !ok {
			continue
		}
		if step.Terminal {
			return cur.dist
		}
		for _, next := range step.outboundTargets() {
			if visited[next] {
				continue
			}
			visited[next] = true
			queue = append(queue, item{id: next, dist: cur.dist + 1})
		}
	}
	return 0
}

// computeProgress implements spec.md §4.7's progress formula:
// current = len(stepHistory)+1, total = current + shortestPathToTerminal.
// Terminal info steps suppress progress entirely (returns nil), as do steps
// marked SuppressProgress and workflows with ShowProgress() == false.
func computeProgress(def WorkflowDefinition, state *WorkflowState) *primitive.Progress {
	if !def.ShowProgress() {
		return nil
	}
	step, ok := def.Steps[state.CurrentStep]
	if !ok {
		return nil
	}
	if step.SuppressProgress {
		return nil
	}
	if step.Terminal && step.Kind == StepInfo {
		return nil
	}

	current := len(state.StepHistory) + 1
	total := current + shortestPathToTerminal(def.Steps, state.CurrentStep)
	return &primitive.Progress{Current: current, Total: total}
}
