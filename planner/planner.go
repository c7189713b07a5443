// Package planner implements spec.md §4.G: plan generation, JSON-schema
// validation of the model's plan response, and DAG (dependency graph)
// validation. It is grounded on agent.doCompact/runExplore's pattern of
// issuing a second, purpose-built LLM call and parsing the text response.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/lowkaihon/cli-coding-agent/llm"
)

// planSchemaJSON is the embedded JSON Schema a plan response must satisfy,
// mirroring how tools/registry.go embeds each tool's argument schema as a
// json.RawMessage literal.
const planSchemaJSON = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["title", "steps"],
  "properties": {
    "title": {"type": "string"},
    "steps": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["id", "description"],
        "properties": {
          "id": {"type": "string"},
          "description": {"type": "string"},
          "dependencies": {"type": "array", "items": {"type": "string"}},
          "expected_tool": {"type": "string"}
        }
      }
    }
  }
}`

var planSchema = mustCompileSchema(planSchemaJSON)

func mustCompileSchema(raw string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("plan.json", mustUnmarshalAny(raw)); err != nil {
		panic(fmt.Sprintf("planner: invalid embedded schema: %v", err))
	}
	sch, err := c.Compile("plan.json")
	if err != nil {
		panic(fmt.Sprintf("planner: invalid embedded schema: %v", err))
	}
	return sch
}

func mustUnmarshalAny(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		panic(fmt.Sprintf("planner: malformed schema literal: %v", err))
	}
	return v
}

// PlanStep is one node in a Plan's dependency graph.
type PlanStep struct {
	ID           string   `json:"id"`
	Description  string   `json:"description"`
	Dependencies []string `json:"dependencies,omitempty"`
	ExpectedTool string   `json:"expected_tool,omitempty"`
	Done         bool     `json:"-"`
}

// Plan is a DAG of steps, per spec.md §9's design note ("plan as DAG, not
// a linear list").
type Plan struct {
	ID    uuid.UUID  `json:"id"`
	Title string     `json:"title"`
	Steps []PlanStep `json:"steps"`
}

// StepByID returns the step with the given id, or nil.
func (p *Plan) StepByID(id string) *PlanStep {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}

// Ready reports whether every dependency of step is marked Done.
func (p *Plan) Ready(step PlanStep) bool {
	for _, depID := range step.Dependencies {
		dep := p.StepByID(depID)
		if dep == nil || !dep.Done {
			return false
		}
	}
	return true
}

// Validate checks id uniqueness and acyclicity via Kahn's algorithm,
// returning the execution order (a valid topological sort) on success.
// No graph library is used here — see DESIGN.md: the DAG is small and a
// general graph dependency would be over-engineering for one sort.
func (p *Plan) Validate() ([]string, error) {
	seen := make(map[string]bool, len(p.Steps))
	for _, s := range p.Steps {
		if s.ID == "" {
			return nil, fmt.Errorf("plan step has empty id")
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("duplicate step id %q", s.ID)
		}
		seen[s.ID] = true
	}
	for _, s := range p.Steps {
		for _, dep := range s.Dependencies {
			if !seen[dep] {
				return nil, fmt.Errorf("step %q depends on unknown step %q", s.ID, dep)
			}
		}
	}

	indegree := make(map[string]int, len(p.Steps))
	dependents := make(map[string][]string)
	for _, s := range p.Steps {
		indegree[s.ID] = len(s.Dependencies)
		for _, dep := range s.Dependencies {
			dependents[dep] = append(dependents[dep], s.ID)
		}
	}

	var queue, order []string
	for _, s := range p.Steps {
		if indegree[s.ID] == 0 {
			queue = append(queue, s.ID)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, next := range dependents[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(p.Steps) {
		return nil, fmt.Errorf("plan contains a dependency cycle")
	}
	return order, nil
}

// MaxPlanRetries bounds the schema-retry loop when the model's plan
// response fails validation.
const MaxPlanRetries = 2

// Planner issues plan-generation and replan requests to an LLM client.
type Planner struct {
	client llm.LLMClient
}

// New constructs a Planner over the given model client.
func New(client llm.LLMClient) *Planner {
	return &Planner{client: client}
}

// Plan generates a new plan for request. If priorPlan is non-nil, its
// remaining (non-Done) steps are included as context.
func (pl *Planner) Plan(ctx context.Context, request string, priorPlan *Plan) (*Plan, error) {
	prompt := planningSystemPrompt()
	userMsg := request
	if priorPlan != nil {
		userMsg = fmt.Sprintf("%s\n\nExisting plan in progress:\n%s", request, summarizePlan(priorPlan))
	}
	return pl.generate(ctx, prompt, userMsg)
}

// Replan re-asks the model for a revised plan given progress so far and the
// reason a replan was triggered (e.g. a step reported itself blocked),
// bounded by the caller's limits.max_replans.
func (pl *Planner) Replan(ctx context.Context, plan *Plan, progress, reason string) (*Plan, error) {
	prompt := replanningSystemPrompt()
	userMsg := fmt.Sprintf("Original plan:\n%s\n\nProgress so far:\n%s\n\nReplan reason: %s",
		summarizePlan(plan), progress, reason)
	return pl.generate(ctx, prompt, userMsg)
}

func (pl *Planner) generate(ctx context.Context, systemPrompt, userMsg string) (*Plan, error) {
	messages := []llm.Message{
		llm.TextMessage("system", systemPrompt),
		llm.TextMessage("user", userMsg),
	}

	var lastErr error
	for attempt := 0; attempt <= MaxPlanRetries; attempt++ {
		resp, err := pl.client.SendMessage(ctx, messages, nil)
		if err != nil {
			return nil, fmt.Errorf("planner LLM error: %w", err)
		}
		text := resp.Message.ContentString()

		plan, err := parsePlan(text)
		if err != nil {
			lastErr = err
			messages = append(messages, resp.Message)
			messages = append(messages, llm.TextMessage("user",
				fmt.Sprintf("Your plan was invalid: %s. Re-emit a single corrected JSON plan object.", err)))
			continue
		}
		if _, err := plan.Validate(); err != nil {
			lastErr = err
			messages = append(messages, resp.Message)
			messages = append(messages, llm.TextMessage("user",
				fmt.Sprintf("Your plan failed validation: %s. Re-emit a single corrected JSON plan object.", err)))
			continue
		}
		return plan, nil
	}
	return nil, fmt.Errorf("planner: exceeded %d retries, last error: %w", MaxPlanRetries, lastErr)
}

// parsePlan extracts the JSON plan object from text (allowing a fenced
// code block around it, matching the model-drift tolerance agent/parsetool.go
// applies to tool calls), validates it against planSchema, and decodes it
// into a Plan.
func parsePlan(text string) (*Plan, error) {
	raw := extractJSONObject(text)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object found in plan response")
	}

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("plan is not valid JSON: %w", err)
	}
	if err := planSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("plan does not match schema: %w", err)
	}

	var decoded struct {
		Title string     `json:"title"`
		Steps []PlanStep `json:"steps"`
	}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}

	return &Plan{ID: uuid.New(), Title: decoded.Title, Steps: decoded.Steps}, nil
}

// extractJSONObject pulls a JSON object out of text: a fenced ```json
// block if present, else the first balanced {...} substring.
func extractJSONObject(text string) string {
	if idx := strings.Index(text, "```json"); idx != -1 {
		rest := text[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end != -1 {
			return strings.TrimSpace(rest[:end])
		}
	}
	if idx := strings.Index(text, "```"); idx != -1 {
		rest := text[idx+3:]
		if end := strings.Index(rest, "```"); end != -1 {
			candidate := strings.TrimSpace(rest[:end])
			if strings.HasPrefix(candidate, "{") {
				return candidate
			}
		}
	}

	start := strings.IndexByte(text, '{')
	if start == -1 {
		return ""
	}
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

func summarizePlan(p *Plan) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Title: %s\n", p.Title)
	for _, s := range p.Steps {
		status := "pending"
		if s.Done {
			status = "done"
		}
		fmt.Fprintf(&sb, "- [%s] %s (%s) deps=%v\n", s.ID, s.Description, status, s.Dependencies)
	}
	return sb.String()
}

func planningSystemPrompt() string {
	return `You are the planning sub-agent for Pilot, a terminal coding assistant. Given a task, emit a single JSON object of the form:
{"title": "...", "steps": [{"id": "1", "description": "...", "dependencies": [], "expected_tool": "..."}]}
Rules:
- Every step id must be unique.
- dependencies must reference only earlier step ids; no cycles.
- Keep steps minimal: only what the task actually requires.
- Respond with the JSON object only, optionally inside a single ` + "```json```" + ` fence.`
}

func replanningSystemPrompt() string {
	return `You are the replanning sub-agent for Pilot. A step in the current plan reported it could not proceed. Given the original plan, progress so far, and the reason, emit a single revised JSON plan object in the same schema as before, keeping completed steps' ids stable where possible.`
}
