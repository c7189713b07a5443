package agent

import "time"

// EventKind enumerates the event taxonomy from spec.md §4.H, used for both
// UI rendering and audit trail correlation.
type EventKind string

const (
	EventUserMessage       EventKind = "user_message"
	EventLLMRequest        EventKind = "llm_request"
	EventLLMResponse       EventKind = "llm_response"
	EventToolCallParsed    EventKind = "tool_call_parsed"
	EventToolResult        EventKind = "tool_result"
	EventConfirmWrite      EventKind = "confirm_write"
	EventConfirmExec       EventKind = "confirm_exec"
	EventPolicyDenyCmd     EventKind = "policy_deny_cmd"
	EventStutteringDetect  EventKind = "stuttering_detected"
	EventPlanGenerated     EventKind = "plan_generated"
	EventPlanStepStart     EventKind = "plan_step_start"
	EventPlanStepDone      EventKind = "plan_step_done"
	EventPlanStepBlocked   EventKind = "plan_step_blocked"
	EventReplanGenerated   EventKind = "replan_generated"
	EventFinalVerify       EventKind = "final_verify"
	EventStopReason        EventKind = "stop_reason"
	EventDisplay           EventKind = "display"
	EventState             EventKind = "state"
)

// Event is one entry in the session's event stream (spec.md §3's "Event"
// data-model shape).
type Event struct {
	StepIndex int            `json:"step_index"`
	Kind      EventKind      `json:"kind"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// eventBusCapacity bounds the buffered channel; a slow subscriber drops
// events rather than blocking the agent task (spec.md §5: "non-blocking
// expected, bounded channel").
const eventBusCapacity = 256

// EventBus fans out agent events to subscribers (ui.Terminal, audit.Sink)
// without letting a slow subscriber stall the agent loop.
type EventBus struct {
	ch      chan Event
	dropped int
}

// NewEventBus constructs an EventBus with its default buffer capacity.
func NewEventBus() *EventBus {
	return &EventBus{ch: make(chan Event, eventBusCapacity)}
}

// Publish enqueues an event, non-blocking; if the buffer is full the event
// is dropped and counted rather than stalling the caller.
func (b *EventBus) Publish(e Event) {
	if b == nil {
		return
	}
	select {
	case b.ch <- e:
	default:
		b.dropped++
	}
}

// Events returns the read side of the bus for subscribers to range over.
func (b *EventBus) Events() <-chan Event {
	return b.ch
}

// Dropped returns the number of events dropped due to a full buffer.
func (b *EventBus) Dropped() int {
	return b.dropped
}

// emit publishes an event on the agent's bus (if attached) and forwards it
// to the audit sink (if attached), tagging it with the current step index.
func (a *Agent) emit(kind EventKind, data map[string]any) {
	evt := Event{StepIndex: a.stepIndex, Kind: kind, Data: data, Timestamp: time.Now()}
	a.events.Publish(evt)
	if a.auditSink != nil {
		a.auditSink.Emit(a.stepIndex, string(kind), data)
	}
}
