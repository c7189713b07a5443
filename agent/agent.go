// Package agent implements the agentic loop that orchestrates LLM conversations
// with tool execution, context management, session persistence, and checkpointing.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/lowkaihon/cli-coding-agent/audit"
	"github.com/lowkaihon/cli-coding-agent/llm"
	"github.com/lowkaihon/cli-coding-agent/planner"
	"github.com/lowkaihon/cli-coding-agent/tools"
	"github.com/lowkaihon/cli-coding-agent/ui"
)

// MaxIterationsPerTurn limits the number of LLM round-trips per user message
// to prevent runaway tool-use loops. Named max_iterations in spec.md §4.H
// (default 20 there; this module uses 50).
const MaxIterationsPerTurn = 50

// DefaultMaxReplans bounds EXECUTING→PLANNING transitions over the life of
// an Agent; the replan counter is never reset between turns.
const DefaultMaxReplans = 3

// Agent orchestrates the LLM conversation and tool execution loop.
type Agent struct {
	client         llm.LLMClient
	tools          *tools.Registry
	messages       []llm.Message
	workDir        string
	contextWindow  int
	lastTokensUsed int // TotalTokens from most recent API response
	sessionID      string
	sessionCreated time.Time
	checkpoints    []Checkpoint             // ordered by turn
	fileOriginals  map[string]*FileSnapshot // pre-session state of each modified file
	term           UI                       // stored for sub-agent visibility
	tasks          []Task

	state      AgentState
	stepIndex  int
	events     *EventBus
	auditSink  *audit.Sink
	planner    *planner.Planner
	plan       *planner.Plan
	replans    int
	maxReplans int
	watcher    *fsnotify.Watcher
	ctxManager *Manager
}

// New creates a new Agent with the system prompt initialized.
func New(client llm.LLMClient, registry *tools.Registry, workDir string, contextWindow int) *Agent {
	a := &Agent{
		client:         client,
		tools:          registry,
		workDir:        workDir,
		contextWindow:  contextWindow,
		sessionID:      generateSessionID(),
		sessionCreated: time.Now(),
		fileOriginals:  make(map[string]*FileSnapshot),
		state:          StateIdle,
		events:         NewEventBus(),
		maxReplans:     DefaultMaxReplans,
	}
	a.messages = []llm.Message{
		llm.TextMessage("system", a.systemPrompt()),
	}

	// Wire the explore sub-agent callback into the tool registry
	registry.SetExploreFunc(a.runExplore)
	registry.SetTaskCallbacks(tools.TaskCallbacks{
		WriteTasks: a.WriteTasks,
		UpdateTask: a.UpdateTask,
		ReadTasks:  a.TaskSummary,
	})

	return a
}

// SetClient swaps the LLM client and context window (e.g., after /model).
func (a *Agent) SetClient(client llm.LLMClient, contextWindow int) {
	a.client = client
	a.contextWindow = contextWindow
}

// WithAudit attaches the session's audit sink; every emitted event is also
// appended to the audit trail (spec.md §4.I).
func (a *Agent) WithAudit(s *audit.Sink) *Agent {
	a.auditSink = s
	return a
}

// WithPlanner attaches the planner used by Plan/Replan for explicit
// DAG-based plan generation (spec.md §4.G), independent of the LLM's own
// ad hoc write_tasks calls.
func (a *Agent) WithPlanner(p *planner.Planner) *Agent {
	a.planner = p
	return a
}

// WithMaxReplans overrides DefaultMaxReplans (wired from config's
// limits.max_replans).
func (a *Agent) WithMaxReplans(n int) *Agent {
	if n > 0 {
		a.maxReplans = n
	}
	return a
}

// Events returns the agent's event bus for UI/audit subscribers.
func (a *Agent) Events() *EventBus {
	return a.events
}

// State returns the agent's current state-machine node.
func (a *Agent) State() AgentState {
	return a.state
}

// StartWatching enables the optional fsnotify-based external-edit watcher
// (spec.md §5's "Background workers" addition). Call after New; safe to
// skip entirely (the agent runs fine without it).
func (a *Agent) StartWatching() {
	a.watchExternalEdits(nil)
}

// Plan generates a fresh execution plan for request via the planner
// package, transitioning PLANNING (spec.md §4.H) and emitting
// plan_generated.
func (a *Agent) Plan(ctx context.Context, request string) (*planner.Plan, error) {
	if a.planner == nil {
		return nil, fmt.Errorf("no planner configured")
	}
	a.setState(StatePlanning)
	p, err := a.planner.Plan(ctx, request, a.plan)
	if err != nil {
		return nil, err
	}
	a.plan = p
	a.emit(EventPlanGenerated, map[string]any{"plan_id": p.ID.String(), "title": p.Title, "steps": len(p.Steps)})
	a.setState(StateExecuting)
	return p, nil
}

// Replan asks the planner for a replacement plan when a step is blocked,
// bounded by maxReplans to prevent livelock (spec.md §4.G/§4.H).
func (a *Agent) Replan(ctx context.Context, progress, reason string) (*planner.Plan, error) {
	if a.planner == nil {
		return nil, fmt.Errorf("no planner configured")
	}
	if a.replans >= a.maxReplans {
		return nil, fmt.Errorf("replan budget exhausted (%d/%d)", a.replans, a.maxReplans)
	}
	a.replans++
	a.setState(StatePlanning)
	p, err := a.planner.Replan(ctx, a.plan, progress, reason)
	if err != nil {
		return nil, err
	}
	a.plan = p
	a.emit(EventReplanGenerated, map[string]any{"plan_id": p.ID.String(), "reason": reason, "attempt": a.replans})
	a.setState(StateExecuting)
	return p, nil
}

// Run processes a user message through the agent loop (spec.md §4.H's
// IDLE→INTAKE→CONTEXT_BUILDING→EXECUTING→...→DONE state machine).
func (a *Agent) Run(ctx context.Context, userMessage string, term UI) error {
	a.term = term
	a.setState(StateIntake)
	a.messages = append(a.messages, llm.TextMessage("user", userMessage))
	a.emit(EventUserMessage, map[string]any{"length": len(userMessage)})

	// Start escape listener for Esc key cancellation
	opCtx, listener, escErr := term.StartEscapeListener(ctx)
	if escErr != nil {
		// No TTY or raw mode unavailable — fall back to parent context
		opCtx = ctx
		listener = noopInterrupter{}
	}
	defer listener.Stop()

	a.setState(StateContextBuilding)
	a.setState(StateExecuting)

	for iteration := 0; iteration < MaxIterationsPerTurn; iteration++ {
		a.stepIndex++
		a.compactIfNeeded(opCtx, term)
		term.PrintSpinner()

		a.emit(EventLLMRequest, map[string]any{"iteration": iteration, "message_count": len(a.messages)})
		events, err := a.client.StreamMessage(opCtx, a.messages, a.tools.Definitions())
		if err != nil {
			term.ClearSpinner()
			if opCtx.Err() != nil {
				fmt.Println()
				return a.done("user_cancel")
			}
			return a.fatal(fmt.Errorf("LLM request failed: %w", err))
		}

		spinnerCleared := false
		clearSpinner := func() {
			if !spinnerCleared {
				term.ClearSpinner()
				spinnerCleared = true
			}
		}

		resp, err := llm.AccumulateStream(events, func(text string) {
			clearSpinner()
			term.PrintAssistant(text)
		})
		clearSpinner() // ensure cleared after stream ends (e.g. tool-only responses)
		if err != nil {
			if opCtx.Err() != nil {
				fmt.Println()
				return a.done("user_cancel")
			}
			return a.fatal(fmt.Errorf("stream error: %w", err))
		}

		if resp.Usage.TotalTokens > 0 {
			a.lastTokensUsed = resp.Usage.TotalTokens
		}
		a.emit(EventLLMResponse, map[string]any{"finish_reason": resp.FinishReason, "tool_calls": len(resp.Message.ToolCalls)})

		if resp.Message.Content != nil && detectStutter(*resp.Message.Content) {
			truncated := truncateStutter(*resp.Message.Content)
			resp.Message.Content = &truncated
			a.emit(EventStutteringDetect, map[string]any{"iteration": iteration})
		}

		a.messages = append(a.messages, resp.Message)

		switch resp.FinishReason {
		case "length":
			term.PrintAssistantDone()
			term.PrintWarning("Response was truncated due to token limit.")
			return a.done("length")
		case "stop":
			// A text-only reply ends the turn unless its text carries a
			// tool call for the fallback below.
			if _, ok := extractToolCallFromText(resp.Message.ContentString()); !ok {
				term.PrintAssistantDone()
				return a.done("complete")
			}
		}

		toolCalls := resp.Message.ToolCalls
		if len(toolCalls) == 0 {
			// Structured tool-call protocol is primary; fall back to the
			// three-way free-text extraction for models that ignore it.
			if resp.Message.Content != nil {
				if parsed, ok := extractToolCallFromText(*resp.Message.Content); ok {
					toolCalls = []llm.ToolCall{{
						ID:       fmt.Sprintf("parsed-%d", iteration),
						Type:     "function",
						Function: llm.FunctionCall{Name: parsed.Tool, Arguments: string(parsed.Args)},
					}}
					a.messages[len(a.messages)-1].ToolCalls = toolCalls
					a.emit(EventToolCallParsed, map[string]any{"tool": parsed.Tool, "source": "text_fallback"})
				}
			}
		}

		if len(toolCalls) == 0 {
			term.PrintAssistantDone()
			return a.done("complete")
		}

		// Print newline after any streamed text before tool output
		if resp.Message.Content != nil && *resp.Message.Content != "" {
			fmt.Println()
		}

		results := a.executeToolCalls(opCtx, toolCalls, term, listener)
		if opCtx.Err() != nil {
			// Cancelled during tool execution — still record any results we got
			for _, r := range results {
				if r.output != "" {
					a.messages = append(a.messages, llm.ToolResultMessage(r.id, r.output))
				}
			}
			fmt.Println()
			return a.done("user_cancel")
		}
		for _, r := range results {
			a.messages = append(a.messages, llm.ToolResultMessage(r.id, r.output))
		}
	}

	a.emit(EventStopReason, map[string]any{"reason": "max_tool_calls_reached"})
	a.setState(StateDone)
	return fmt.Errorf("agent loop exceeded maximum iterations (%d)", MaxIterationsPerTurn)
}

// done transitions to DONE, emits stop_reason, and returns nil — matching
// spec.md's "Any state → DONE" edges for the non-error completion paths.
func (a *Agent) done(reason string) error {
	a.emit(EventStopReason, map[string]any{"reason": reason})
	a.setState(StateDone)
	if reason == "user_cancel" {
		return context.Canceled
	}
	return nil
}

// fatal transitions to DONE on an unrecoverable error.
func (a *Agent) fatal(err error) error {
	a.emit(EventStopReason, map[string]any{"reason": "fatal_error", "error": err.Error()})
	a.setState(StateDone)
	return err
}

type toolResult struct {
	id     string
	output string
}

// executeToolCalls runs tool calls, parallelizing read-only ones.
func (a *Agent) executeToolCalls(ctx context.Context, calls []llm.ToolCall, term UI, listener ui.Interrupter) []toolResult {
	results := make([]toolResult, len(calls))

	// Check if all calls are read-only
	allReadOnly := true
	for _, tc := range calls {
		if !a.tools.IsReadOnly(tc.Function.Name) {
			allReadOnly = false
			break
		}
	}

	if allReadOnly && len(calls) > 1 {
		// Execute read-only tools concurrently. errgroup gives the same
		// wait-for-all-to-finish ergonomics as sync.WaitGroup; tool errors
		// are captured into the result string rather than propagated as
		// errgroup errors, so one failing read-only tool never cancels its
		// siblings (this is fan-out-with-limits, not fail-fast).
		for i, tc := range calls {
			term.PrintToolCall(tc.Function.Name, tc.Function.Arguments)
			results[i].id = tc.ID
		}

		var g errgroup.Group
		for i, tc := range calls {
			if !json.Valid([]byte(tc.Function.Arguments)) {
				results[i].output = tools.FormatFeedback(tools.NewInvalidArgsError(tc.Function.Arguments))
				continue
			}
			idx, tc := i, tc
			g.Go(func() error {
				input := json.RawMessage(tc.Function.Arguments)
				output, err := a.tools.Execute(ctx, tc.Function.Name, input)
				if err != nil {
					output = tools.FormatFeedback(err)
				}
				results[idx].output = output
				a.emit(EventToolResult, map[string]any{"tool": tc.Function.Name, "id": tc.ID})
				return nil
			})
		}
		_ = g.Wait()

		for _, r := range results {
			term.PrintToolResult(r.output)
		}
	} else {
		// Execute sequentially (write tools need confirmation one at a time)
		for i, tc := range calls {
			results[i].id = tc.ID

			if !json.Valid([]byte(tc.Function.Arguments)) {
				results[i].output = tools.FormatFeedback(tools.NewInvalidArgsError(tc.Function.Arguments))
				term.PrintToolCall(tc.Function.Name, "invalid JSON")
				continue
			}

			term.PrintToolCall(tc.Function.Name, tc.Function.Arguments)

			input := json.RawMessage(tc.Function.Arguments)
			output, toolErr := a.tools.Execute(ctx, tc.Function.Name, input)

			if toolErr != nil {
				if confirm, ok := toolErr.(*tools.NeedsConfirmation); ok {
					output = a.handleConfirmation(confirm, term, listener)
				} else {
					if te, ok := toolErr.(*tools.ToolError); ok && (te.Code == tools.ErrToolBlocked || te.Code == tools.ErrPolicyDenied) {
						a.emit(EventPolicyDenyCmd, map[string]any{"tool": tc.Function.Name, "reason": te.Message})
					}
					output = tools.FormatFeedback(toolErr)
				}
			}

			term.PrintToolResult(output)
			a.emit(EventToolResult, map[string]any{"tool": tc.Function.Name, "id": tc.ID})
			results[i].output = output
		}
	}

	return results
}

func (a *Agent) handleConfirmation(confirm *tools.NeedsConfirmation, term UI, listener ui.Interrupter) string {
	switch confirm.Tool {
	case "write":
		if confirm.Preview == "" {
			term.PrintFilePreview(confirm.Path, confirm.NewContent)
		} else {
			term.PrintDiff(confirm.Path, confirm.Preview, confirm.NewContent)
		}
		a.emit(EventConfirmWrite, map[string]any{"path": confirm.Path})
	case "edit":
		term.PrintDiff(confirm.Path, confirm.Preview, confirm.NewContent)
		a.emit(EventConfirmWrite, map[string]any{"path": confirm.Path})
	case "bash":
		fmt.Println()
		a.emit(EventConfirmExec, map[string]any{"path": confirm.Path})
	}

	// Pause raw mode so fmt.Scanln works for y/n input
	listener.Pause()
	approved := term.ConfirmAction(fmt.Sprintf("Apply %s to %s?", confirm.Tool, confirm.Path))
	listener.Resume()

	if !approved {
		return tools.FormatFeedback(tools.NewDeniedError(confirm.Tool, confirm.Path))
	}

	// Capture file state before modification for checkpointing
	if confirm.Tool == "write" || confirm.Tool == "edit" {
		a.captureFileBeforeModification(confirm.Path)
	}

	result, err := confirm.Execute()
	if err != nil {
		return tools.FormatFeedback(err)
	}
	return result
}

// compactIfNeeded checks if conversation tokens exceed 80% of the context window
// and, if so, first drops low-priority history through the context manager
// (when one is set); if that does not bring the total under the threshold,
// it asks the LLM to produce a summary to replace the history.
func (a *Agent) compactIfNeeded(ctx context.Context, term UI) {
	if a.contextWindow <= 0 {
		return
	}

	threshold := int(float64(a.contextWindow) * (1 - ContextBuffer))
	current := a.lastTokensUsed
	if current == 0 {
		current = EstimateTotalTokens(a.messages)
	}
	if current <= threshold {
		return
	}

	if a.ctxManager != nil {
		term.PrintWarning("Context is large, dropping low-priority history...")
		if a.compactViaManager(threshold) {
			return
		}
	}

	term.PrintWarning("Context is large, compacting conversation...")
	a.doCompact(ctx, term)
}

// recentExchangeWindow is the number of trailing user/assistant turns kept
// at PriorityRecent regardless of token pressure (spec.md §4.E default 5).
const recentExchangeWindow = 5

// classifyPriority buckets a message in a.messages by position into the
// priority lattice: the system prompt is protected, the trailing exchanges
// are recent, tool traffic is working, and everything else is relevant.
func (a *Agent) classifyPriority(index int) Priority {
	if index == 0 {
		return PriorityProtected
	}

	// An exchange starts at a user message; the recent window begins at the
	// recentExchangeWindow-th user message counted from the end.
	recentFrom := 1
	users := 0
	for i := len(a.messages) - 1; i >= 1; i-- {
		if a.messages[i].Role == "user" {
			users++
			if users == recentExchangeWindow {
				recentFrom = i
				break
			}
		}
	}
	if index >= recentFrom {
		return PriorityRecent
	}

	msg := a.messages[index]
	if msg.Role == "tool" || len(msg.ToolCalls) > 0 {
		return PriorityWorking
	}
	return PriorityRelevant
}

// compactViaManager rebuilds the priority lattice from the current message
// slice and drops archival/relevant/working entries (in that order) until
// the estimated token total fits threshold, without invoking the LLM.
// Returns true if compaction succeeded without needing doCompact's
// summarization fallback.
func (a *Agent) compactViaManager(threshold int) bool {
	a.ctxManager.Clear(false)
	for i, msg := range a.messages {
		a.ctxManager.Add(msg, a.classifyPriority(i))
	}

	a.ctxManager.Compact(threshold, true)
	rendered := a.ctxManager.Render()
	if len(rendered) == 0 || rendered[0].Role != "system" {
		return false
	}

	a.messages = rendered
	a.lastTokensUsed = 0
	return EstimateTotalTokens(a.messages) <= threshold
}

// Compact forces an LLM-based compaction of the conversation history.
func (a *Agent) Compact(ctx context.Context, term UI) error {
	if len(a.messages) <= 1 {
		term.PrintWarning("Nothing to compact.")
		return nil
	}
	term.PrintWarning("Compacting conversation...")
	a.doCompact(ctx, term)
	return nil
}

// Clear resets the conversation history to just the system prompt.
func (a *Agent) Clear(term UI) {
	a.messages = []llm.Message{a.messages[0]}
	a.checkpoints = nil
	a.lastTokensUsed = 0
	if a.ctxManager != nil {
		a.ctxManager.Clear(false)
		a.ctxManager.Add(a.messages[0], PriorityProtected)
	}
	term.PrintWarning("Conversation cleared.")
}

// doCompact performs the actual LLM-based compaction.
func (a *Agent) doCompact(ctx context.Context, term UI) {
	history := serializeHistory(a.messages)
	compactMessages := []llm.Message{
		llm.TextMessage("system", compactionPrompt()),
		llm.TextMessage("user", history),
	}

	resp, err := a.client.SendMessage(ctx, compactMessages, nil)
	if err != nil {
		term.PrintWarning("Compaction failed, continuing with full history.")
		return
	}

	summary := ""
	if resp.Message.Content != nil {
		summary = *resp.Message.Content
	}

	// Replace history: keep system prompt, add summary, preserve last user message
	systemMsg := a.messages[0]

	var lastUserMsg *llm.Message
	for i := len(a.messages) - 1; i >= 0; i-- {
		if a.messages[i].Role == "user" {
			lastUserMsg = &a.messages[i]
			break
		}
	}

	a.messages = []llm.Message{systemMsg}
	if summary != "" {
		a.messages = append(a.messages, llm.TextMessage("user",
			"[Conversation compacted] Here is a summary of our conversation so far:\n\n"+summary))
	}
	if lastUserMsg != nil {
		a.messages = append(a.messages, *lastUserMsg)
	}

	a.lastTokensUsed = 0
	term.PrintWarning("Context compacted successfully.")
}

// MaxExploreIterations is the iteration limit for the explore sub-agent.
const MaxExploreIterations = 30

// runExplore spawns a child agent with read-only tools to research the codebase.
// It uses non-streaming SendMessage to avoid interleaved terminal output.
func (a *Agent) runExplore(ctx context.Context, task string) (string, error) {
	roRegistry := tools.NewReadOnlyRegistry(a.workDir)
	toolDefs := roRegistry.Definitions()

	messages := []llm.Message{
		llm.TextMessage("system", exploreSystemPrompt(a.workDir)),
		llm.TextMessage("user", task),
	}

	totalSteps := 0

	for iteration := 0; iteration < MaxExploreIterations; iteration++ {
		resp, err := a.client.SendMessage(ctx, messages, toolDefs)
		if err != nil {
			return "", fmt.Errorf("explore sub-agent LLM error: %w", err)
		}

		messages = append(messages, resp.Message)

		// If no tool calls, the sub-agent is done — return its final text
		if len(resp.Message.ToolCalls) == 0 {
			if a.term != nil {
				a.term.PrintSubAgentStatus(fmt.Sprintf("Explore complete (%d tool calls)", totalSteps))
			}
			return resp.Message.ContentString(), nil
		}

		// Print all tool calls, then execute in parallel
		for _, tc := range resp.Message.ToolCalls {
			totalSteps++
			if a.term != nil {
				a.term.PrintSubAgentToolCall(tc.Function.Name, tc.Function.Arguments)
			}
		}

		outputs := make([]string, len(resp.Message.ToolCalls))
		var g errgroup.Group
		for i, tc := range resp.Message.ToolCalls {
			idx, tc := i, tc
			g.Go(func() error {
				input := json.RawMessage(tc.Function.Arguments)
				output, toolErr := roRegistry.Execute(ctx, tc.Function.Name, input)
				if toolErr != nil {
					output = tools.FormatFeedback(toolErr)
				}
				outputs[idx] = output
				return nil
			})
		}
		_ = g.Wait()

		for i, tc := range resp.Message.ToolCalls {
			messages = append(messages, llm.ToolResultMessage(tc.ID, outputs[i]))
		}
	}

	if a.term != nil {
		a.term.PrintSubAgentStatus(fmt.Sprintf("Explore reached max iterations (%d tool calls)", totalSteps))
	}
	return "Explore sub-agent reached maximum iterations without completing.", nil
}

func exploreSystemPrompt(workDir string) string {
	return fmt.Sprintf(`You are an exploration sub-agent. Your job is to thoroughly research the codebase to answer the given question.

Working directory: %s

This is a READ-ONLY exploration task. You only have access to: glob, grep, ls, read.

Guidelines:
- Use glob for broad file pattern matching (prefer over repeated ls calls)
- Use grep for searching file contents with regex
- Use read when you know the specific file path
- Use ls only when you need to see directory structure

You are meant to be a fast agent. To achieve this:
- Make efficient use of your tools — be smart about how you search
- Wherever possible, call multiple tools in parallel. When you find several files to read, read them ALL in one response instead of one at a time
- Start broad (glob, grep) then narrow down to specific reads

When you have gathered enough information, provide a clear, structured summary of your findings. Do not ask follow-up questions — just research and report.`, workDir)
}

// ContextStats holds context usage statistics.
type ContextStats struct {
	TotalTokens   int // actual from API, or estimated
	ContextWindow int
	Threshold     int
	MessageCount  int
	SystemTokens  int // system prompt estimate
	ToolDefTokens int // tool definitions estimate
	MessageTokens int // all user + assistant + tool result messages
	ActualTokens  int // from latest API response (0 if no call yet)
}

// ContextUsage returns current context usage statistics.
func (a *Agent) ContextUsage() ContextStats {
	stats := ContextStats{
		ContextWindow: a.contextWindow,
		Threshold:     int(float64(a.contextWindow) * (1 - ContextBuffer)),
		MessageCount:  len(a.messages),
		ActualTokens:  a.lastTokensUsed,
	}
	for _, msg := range a.messages {
		tokens := EstimateTokens(msg)
		if msg.Role == "system" {
			stats.SystemTokens += tokens
		} else {
			stats.MessageTokens += tokens
		}
	}
	stats.ToolDefTokens = EstimateToolDefTokens(a.tools.Definitions())
	stats.TotalTokens = stats.ActualTokens
	if stats.TotalTokens == 0 {
		stats.TotalTokens = stats.SystemTokens + stats.ToolDefTokens + stats.MessageTokens
	}
	return stats
}

func (a *Agent) systemPrompt() string {
	var sb strings.Builder

	// Section 1: Identity
	sb.WriteString(`You are Pilot, an AI coding assistant running in the terminal. You help users with software engineering tasks. Use the instructions below and the tools available to you to assist the user.

IMPORTANT: Assist with authorized security testing, defensive security, CTF challenges, and educational contexts. Refuse requests for destructive techniques, DoS attacks, mass targeting, supply chain compromise, or detection evasion for malicious purposes.

# Doing tasks
The user will primarily request you to perform software engineering tasks. These include solving bugs, adding new functionality, refactoring code, explaining code, and more.
- NEVER propose changes to code you haven't read. If a user asks about or wants you to modify a file, read it first. Understand existing code before suggesting modifications.
- Be careful not to introduce security vulnerabilities such as command injection, XSS, SQL injection, and other OWASP top 10 vulnerabilities. If you notice that you wrote insecure code, immediately fix it.
- Avoid over-engineering. Only make changes that are directly requested or clearly necessary. Keep solutions simple and focused.
  - Don't add features, refactor code, or make "improvements" beyond what was asked. A bug fix doesn't need surrounding code cleaned up. A simple feature doesn't need extra configurability. Don't add docstrings, comments, or type annotations to code you didn't change. Only add comments where the logic isn't self-evident.
  - Don't add error handling, fallbacks, or validation for scenarios that can't happen. Trust internal code and framework guarantees. Only validate at system boundaries (user input, external APIs). Don't use feature flags or backwards-compatibility shims when you can just change the code.
  - Don't create helpers, utilities, or abstractions for one-time operations. Don't design for hypothetical future requirements. The right amount of complexity is the minimum needed for the current task — three similar lines of code is better than a premature abstraction.
- Avoid backwards-compatibility hacks like renaming unused ` + "`_vars`" + `, re-exporting types, adding ` + "`// removed`" + ` comments for removed code, etc. If something is unused, delete it completely.

# Executing actions with care

Carefully consider the reversibility and blast radius of actions. Generally you can freely take local, reversible actions like editing files or running tests. But for actions that are hard to reverse, affect shared systems beyond your local environment, or could otherwise be risky or destructive, check with the user before proceeding. The cost of pausing to confirm is low, while the cost of an unwanted action (lost work, unintended messages sent, deleted branches) can be very high.

Examples of risky actions that warrant user confirmation:
- Destructive operations: deleting files/branches, dropping database tables, killing processes, rm -rf, overwriting uncommitted changes
- Hard-to-reverse operations: force-pushing, git reset --hard, amending published commits, removing or downgrading packages/dependencies
- Actions visible to others or that affect shared state: pushing code, creating/closing/commenting on PRs or issues, sending messages, modifying shared infrastructure

When you encounter an obstacle, do not use destructive actions as a shortcut. Try to identify root causes and fix underlying issues rather than bypassing safety checks (e.g. --no-verify). If you discover unexpected state like unfamiliar files, branches, or configuration, investigate before deleting or overwriting, as it may represent the user's in-progress work. When in doubt, ask before acting.

# Tool usage policy
- You can call multiple tools in a single response. If you intend to call multiple tools and there are no dependencies between them, make all independent tool calls in parallel. However, if some tool calls depend on previous calls, do NOT call these tools in parallel — call them sequentially instead.
- Use dedicated tools instead of bash for file operations: read for reading files (not cat/head/tail), edit for editing (not sed/awk), write for creating files (not echo/cat with heredoc). Reserve bash exclusively for system commands and terminal operations that require shell execution.
- NEVER use bash echo or other command-line tools to communicate with the user. Output all communication directly in your response text.
- Do not create files unless they're absolutely necessary for achieving your goal. ALWAYS prefer editing an existing file to creating a new one, including markdown files.
- For broad codebase exploration questions (project structure, how a feature works, finding patterns across files), use the explore tool to delegate the research to a focused sub-agent. This keeps the main conversation focused and avoids cluttering context with intermediate search results.

# Tone and style
- Only use emojis if the user explicitly requests it.
- Your output will be displayed on a command line interface. Responses should be short and concise. You can use Github-flavored markdown for formatting.
- Do not use a colon before tool calls. Text like "Let me read the file:" followed by a tool call should just be "Let me read the file." with a period.
- Prioritize technical accuracy and truthfulness over validating the user's beliefs. Provide direct, objective technical info without unnecessary praise or emotional validation. Disagree when necessary — objective guidance and respectful correction are more valuable than false agreement.
- Never give time estimates or predictions for how long tasks will take. Focus on what needs to be done, not how long it might take.

# Git workflow
When asked to create git commits:
- Only commit when the user explicitly requests it
- NEVER force-push, reset --hard, use --no-verify, or amend unless the user explicitly asks
- Prefer staging specific files over ` + "`git add -A`" + ` or ` + "`git add .`" + `
- NEVER use interactive flags (` + "`-i`" + `) since they require interactive input
- Use HEREDOC for multi-line commit messages
When asked to create pull requests:
- Use ` + "`gh pr create`" + ` with a clear title and structured body
- Keep PR titles short (under 70 characters)

`)

	// Section: Working directory
	sb.WriteString("# Environment\n\nWorking directory: ")
	sb.WriteString(a.workDir)
	sb.WriteString("\n\n")

	// Section: Memory
	sb.WriteString(`# Memory

Project knowledge is stored in MEMORY.md at the project root. This file is human-editable and version-controlled.
To persist important context (conventions, architecture decisions, gotchas), use the edit tool to update MEMORY.md.
`)

	// Inject project memory if available
	memoryPath := filepath.Join(a.workDir, "MEMORY.md")
	if data, err := os.ReadFile(memoryPath); err == nil && len(data) > 0 {
		sb.WriteString("\n## Project Memory (MEMORY.md)\n\n")
		sb.WriteString(string(data))
		sb.WriteString("\n")
	}

	return sb.String()
}
