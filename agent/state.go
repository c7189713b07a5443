package agent

// AgentState names a node in the orchestration state machine (spec.md §4.H):
//
//	IDLE → INTAKE → CONTEXT_BUILDING → PLANNING | EXECUTING
//	EXECUTING → VERIFYING → EXECUTING | SUMMARIZING
//	EXECUTING → PLANNING (replan)
//	SUMMARIZING → DONE
//	any → DONE (fatal error, budget exhaustion, user cancel)
type AgentState string

const (
	StateIdle            AgentState = "idle"
	StateIntake          AgentState = "intake"
	StateContextBuilding AgentState = "context_building"
	StatePlanning        AgentState = "planning"
	StateExecuting       AgentState = "executing"
	StateVerifying       AgentState = "verifying"
	StateSummarizing     AgentState = "summarizing"
	StateDone            AgentState = "done"
)

// setState transitions the agent and emits a `state` event recording both
// the previous and new state (spec.md's event list).
func (a *Agent) setState(s AgentState) {
	prev := a.state
	a.state = s
	a.emit(EventState, map[string]any{"from": string(prev), "to": string(s)})
}
