// Package tools provides the tool registry and implementations for file operations,
// shell execution, and codebase exploration, with path sandboxing for security.
package tools

import (
	"context"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/lowkaihon/cli-coding-agent/audit"
	"github.com/lowkaihon/cli-coding-agent/cache"
	"github.com/lowkaihon/cli-coding-agent/external"
	"github.com/lowkaihon/cli-coding-agent/llm"
	"github.com/lowkaihon/cli-coding-agent/patch"
	"github.com/lowkaihon/cli-coding-agent/policy"
)

// ToolFunc is the signature for tool implementations.
type ToolFunc func(ctx context.Context, input json.RawMessage) (string, error)

type toolMeta struct {
	cacheable bool
	paths     pathExtractor
	command   commandExtractor
}

type toolEntry struct {
	name string
	fn   ToolFunc
	def  llm.ToolDef
	meta toolMeta
}

// Limits bounds result sizes, generalizing the teacher's hardcoded
// maxOutputChars/maxLines constants into configurable ceilings (§4.A).
type Limits struct {
	MaxOutputBytes   int
	MaxFileReadBytes int
}

// DefaultLimits mirrors the teacher's previous hardcoded constants
// (bash's maxOutputChars=10000, read's 500-line cap approximated in bytes).
var DefaultLimits = Limits{
	MaxOutputBytes:   10000,
	MaxFileReadBytes: 200000,
}

// Registry holds all available tools and dispatches execution.
type Registry struct {
	tools         []toolEntry
	schemas       map[string]*jsonschema.Schema
	workDir       string
	exploreFunc   ExploreFunc
	taskCallbacks TaskCallbacks

	limits      Limits
	policyGate  *policy.Gate
	resultCache *cache.Cache
	auditSink   *audit.Sink
	vectorStore external.VectorStore
	patchEngine *patch.Engine

	stepIndex     int
	displayFunc   DisplayFunc
	weatherConfig WeatherConfig
}

// NewRegistry creates a registry and registers all built-in tools.
func NewRegistry(workDir string) *Registry {
	r := &Registry{workDir: workDir, limits: DefaultLimits, schemas: map[string]*jsonschema.Schema{}}
	r.registerBuiltins()
	return r
}

// WithPolicy attaches a policy gate; every tool call is checked before
// dispatch (§4.A step b).
func (r *Registry) WithPolicy(g *policy.Gate) *Registry {
	r.policyGate = g
	return r
}

// WithCache attaches a result cache; cacheable tools consult it before
// running and populate it afterward (§4.A step d/f).
func (r *Registry) WithCache(c *cache.Cache) *Registry {
	r.resultCache = c
	return r
}

// WithAudit attaches an audit sink; every dispatch emits a tool_result
// record (§4.A step g).
func (r *Registry) WithAudit(s *audit.Sink) *Registry {
	r.auditSink = s
	return r
}

// WithVectorStore attaches the optional semantic-search collaborator.
func (r *Registry) WithVectorStore(vs external.VectorStore) *Registry {
	r.vectorStore = vs
	return r
}

// WithLimits overrides the default output/read size ceilings.
func (r *Registry) WithLimits(l Limits) *Registry {
	r.limits = l
	return r
}

func (r *Registry) register(name, description string, schema json.RawMessage, fn ToolFunc) {
	sch, err := compileSchema(name, schema)
	if err != nil {
		// A malformed embedded schema is a programmer error in a built-in
		// tool definition, not a runtime condition — fail loudly at
		// registration rather than silently skip validation.
		panic(err)
	}
	r.schemas[name] = sch
	r.tools = append(r.tools, toolEntry{
		name: name,
		fn:   fn,
		def: llm.ToolDef{
			Type: "function",
			Function: llm.FunctionDef{
				Name:        name,
				Description: description,
				Parameters:  schema,
			},
		},
	})
}

// configureMeta attaches cache/policy metadata to an already-registered
// tool. Kept as a separate step so registerReadOnlyTools (shared with the
// read-only explore registry) stays free of cache/policy concerns.
func (r *Registry) configureMeta(name string, meta toolMeta) {
	for i := range r.tools {
		if r.tools[i].name == name {
			r.tools[i].meta = meta
			return
		}
	}
}

func (r *Registry) entry(name string) (*toolEntry, bool) {
	for i := range r.tools {
		if r.tools[i].name == name {
			return &r.tools[i], true
		}
	}
	return nil, false
}

// Execute runs a tool by name with the given input through the full
// pipeline from spec.md §4.A: validate → policy-check → cache lookup
// (cacheable tools) → run → cache store → audit emit. The agent loop
// still handles step (c), confirmation, via the returned
// *NeedsConfirmation error, exactly as the teacher's handleConfirmation
// already does.
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) (string, error) {
	r.stepIndex++
	step := r.stepIndex

	t, ok := r.entry(name)
	if !ok {
		err := newToolError(ErrNoTool, "unknown tool: %s", name)
		r.emitAudit(step, name, input, "", err)
		return "", err
	}

	if err := r.ValidateArgs(name, input); err != nil {
		r.emitAudit(step, name, input, "", err)
		return "", err
	}

	var policyDecision *policy.Decision
	if r.policyGate != nil {
		cmd := ""
		if t.meta.command != nil {
			cmd = t.meta.command(input)
		}
		path := ""
		if t.meta.paths != nil {
			if paths := t.meta.paths(input); len(paths) > 0 {
				path = paths[0]
			}
		}
		if cmd != "" || path != "" {
			decision := r.policyGate.Check(name, cmd, path)
			policyDecision = &decision
			r.emitPolicyDecision(step, name, decision)
			if !decision.Allow {
				code := ErrPolicyDenied
				if decision.DenyCode == policy.ErrToolBlocked {
					code = ErrToolBlocked
				}
				err := newToolError(code, "%s", decision.Reason)
				r.emitAudit(step, name, input, "", err)
				return "", err
			}
		}
	}

	var cacheKey string
	if t.meta.cacheable && r.resultCache != nil {
		cacheKey = cache.Key(name, input)
		if cached, hit := r.resultCache.Get(cacheKey); hit {
			r.emitAudit(step, name, input, cached, nil)
			return cached, nil
		}
	}

	result, err := t.fn(ctx, input)
	if err != nil {
		if nc, ok := err.(*NeedsConfirmation); ok && policyDecision != nil {
			nc.Policy = policyDecision
		}
		r.emitAudit(step, name, input, "", err)
		return result, err
	}

	result = r.truncate(name, result)

	if t.meta.cacheable && r.resultCache != nil {
		var paths []string
		if t.meta.paths != nil {
			paths = t.meta.paths(input)
		}
		r.resultCache.Put(cacheKey, result, paths)
	}

	r.emitAudit(step, name, input, result, nil)
	return result, nil
}

// InvalidateCache drops cache entries touching path p, called by the agent
// loop after any write/patch/undo (§4.C).
func (r *Registry) InvalidateCache(p string) {
	if r.resultCache != nil {
		r.resultCache.Invalidate(p)
	}
}

func (r *Registry) truncate(name, result string) string {
	limit := r.limits.MaxOutputBytes
	if name == "read" {
		limit = r.limits.MaxFileReadBytes
	}
	if limit <= 0 || len(result) <= limit {
		return result
	}
	return result[:limit] + "\n[output truncated]"
}

func (r *Registry) emitAudit(step int, name string, input json.RawMessage, result string, err error) {
	if r.auditSink == nil {
		return
	}
	data := map[string]any{"tool": name, "args": string(input)}
	if err != nil {
		data["error"] = err.Error()
		r.auditSink.Emit(step, "tool_result", data)
		return
	}
	data["result_size"] = len(result)
	r.auditSink.Emit(step, "tool_result", data)
}

func (r *Registry) emitPolicyDecision(step int, name string, d policy.Decision) {
	if r.auditSink == nil {
		return
	}
	r.auditSink.Emit(step, "policy_decision", map[string]any{
		"tool":                  name,
		"allow":                 d.Allow,
		"reason":                d.Reason,
		"requires_confirmation": d.RequiresConfirmation,
		"risk":                  d.Risk.String(),
	})
}

// IsReadOnly returns true for tools that neither modify the filesystem nor
// ask for confirmation; executeToolCalls runs batches of them concurrently.
func (r *Registry) IsReadOnly(name string) bool {
	switch name {
	case "glob", "grep", "ls", "read", "explore", "update_task", "read_tasks", "search_semantic", "display", "weather":
		return true
	default:
		return false
	}
}

// Definitions returns tool definitions in stable registration order.
func (r *Registry) Definitions() []llm.ToolDef {
	defs := make([]llm.ToolDef, len(r.tools))
	for i, t := range r.tools {
		defs[i] = t.def
	}
	return defs
}

// registerReadOnlyTools registers the read-only tools (glob, grep, ls, read).
// Shared by both the full registry and the read-only registry used by the explore sub-agent.
func (r *Registry) registerReadOnlyTools() {
	r.register("glob",
		`Fast file pattern matching tool. Supports glob patterns like "**/*.go" or "src/**/*.ts". Returns matching file paths relative to working directory, sorted by modification time. Use this tool when you need to find files by name patterns. Prefer this over bash find or ls commands.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"pattern": {
					"type": "string",
					"description": "Glob pattern to match files (e.g., '**/*.go', 'src/**/*.ts')"
				}
			},
			"required": ["pattern"]
		}`),
		r.globTool,
	)
	r.configureMeta("glob", toolMeta{cacheable: true, paths: func(input json.RawMessage) []string {
		return []string{r.workDir}
	}})

	r.register("grep",
		`Search file contents using RE2 regex. Returns matching lines with file paths and line numbers. ALWAYS use this tool for content search — never use bash grep or rg. Supports RE2 regex syntax (e.g., "log.*Error", "func\\s+\\w+"). Note: RE2 does not support lookaheads or lookbehinds. Literal braces need escaping (use "interface\\{\\}" to find "interface{}" in Go code). Filter files with the include parameter using glob patterns (e.g., "*.go", "*.{ts,tsx}").`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"pattern": {
					"type": "string",
					"description": "RE2 regular expression to search for"
				},
				"path": {
					"type": "string",
					"description": "Directory to search in (default: working directory)"
				},
				"include": {
					"type": "string",
					"description": "Glob pattern to filter filenames (e.g., '*.go', '*.{ts,tsx}')"
				}
			},
			"required": ["pattern"]
		}`),
		r.grepTool,
	)
	r.configureMeta("grep", toolMeta{cacheable: true, paths: singlePathExtractor("path")})

	r.register("ls", "List directory contents with file/directory indicators and sizes. Can only list directories, not files. Use glob to find files by pattern.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {
					"type": "string",
					"description": "Directory path to list (default: working directory)"
				}
			}
		}`),
		r.lsTool,
	)
	r.configureMeta("ls", toolMeta{cacheable: true, paths: singlePathExtractor("path")})

	r.register("read",
		`Read file contents with line numbers (cat -n format, 1-indexed). Use start_line/end_line for large files to read specific sections. Can only read files, not directories — use ls for directories. Read multiple files in parallel when you need to understand several files at once. Always use this tool instead of bash cat, head, or tail.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {
					"type": "string",
					"description": "File path to read"
				},
				"start_line": {
					"type": "integer",
					"description": "First line to read (1-indexed, default: 1)"
				},
				"end_line": {
					"type": "integer",
					"description": "Last line to read (1-indexed, inclusive)"
				}
			},
			"required": ["path"]
		}`),
		r.readTool,
	)
	r.configureMeta("read", toolMeta{cacheable: true, paths: singlePathExtractor("path")})
}

func (r *Registry) registerTaskTools() {
	r.register("write_tasks",
		`Create or replace the task list for planning multi-step work. User confirmation required.
Each task has:
- content: short imperative title (e.g. "Add auth middleware")
- description: detailed implementation plan with files to create/modify, code patterns to follow, and what "done" looks like
- active_form: (optional) continuous form for status display

After the user approves the plan, immediately mark task 1 as in_progress and begin implementation.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"tasks": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"content": {
								"type": "string",
								"description": "Short imperative title (e.g. 'Add auth middleware')"
							},
							"description": {
								"type": "string",
								"description": "Detailed description of what needs to be done. Include enough detail for another agent to understand and complete the task: specific files to create/modify, functions to change, code patterns to follow, and acceptance criteria."
							},
							"active_form": {
								"type": "string",
								"description": "Task description in continuous form (e.g. 'Adding auth middleware')"
							}
						},
						"required": ["content", "description"]
					},
					"description": "Array of tasks to create"
				}
			},
			"required": ["tasks"]
		}`),
		r.writeTasksTool,
	)

	r.register("update_task",
		`Update the status of a task by ID. Valid statuses: pending, in_progress, completed. Mark tasks in_progress when you start working on them and completed when done. Returns the updated task list.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"id": {
					"type": "integer",
					"description": "Task ID to update"
				},
				"status": {
					"type": "string",
					"enum": ["pending", "in_progress", "completed"],
					"description": "New status for the task"
				}
			},
			"required": ["id", "status"]
		}`),
		r.updateTaskTool,
	)

	r.register("read_tasks",
		`Read the current task list. Task state is already in your system prompt at the start of each turn — you rarely need this tool. Only useful after many turns of work when context may have been compacted.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {}
		}`),
		r.readTasksTool,
	)
}

func (r *Registry) registerBuiltins() {
	r.registerReadOnlyTools()
	r.registerTaskTools()

	r.register("write",
		`Create or overwrite a file with the given content. Creates parent directories if needed. User confirmation required. ALWAYS prefer editing existing files over writing new ones — use the edit tool to modify existing files. Never proactively create documentation files (*.md) or README files unless explicitly requested.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {
					"type": "string",
					"description": "File path to write"
				},
				"content": {
					"type": "string",
					"description": "Content to write to the file"
				}
			},
			"required": ["path", "content"]
		}`),
		r.writeTool,
	)
	r.configureMeta("write", toolMeta{paths: singlePathExtractor("path")})

	r.register("edit",
		`Edit a file by replacing an exact or approximate string match. The old_str must appear exactly once in the file unless expected_replacements is set, or fuzzy is enabled for approximate matching. When editing text from read tool output, preserve the exact indentation (tabs/spaces) as shown in the file content — do not include line numbers from the read output. If the edit fails because old_str is not unique, include more surrounding context lines to make it unique. Always prefer editing existing files over creating new ones.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {
					"type": "string",
					"description": "File path to edit"
				},
				"old_str": {
					"type": "string",
					"description": "String to find (must appear exactly once unless expected_replacements or fuzzy is set)"
				},
				"new_str": {
					"type": "string",
					"description": "Replacement string"
				},
				"expected_replacements": {
					"type": "integer",
					"description": "Expected number of exact matches (default: 1)"
				},
				"fuzzy": {
					"type": "boolean",
					"description": "Allow an approximate match when no exact match is found"
				},
				"min_similarity": {
					"type": "number",
					"description": "Minimum similarity ratio (0-1) for a fuzzy match to be accepted (default: 0.92)"
				}
			},
			"required": ["path", "old_str", "new_str"]
		}`),
		r.editTool,
	)
	r.configureMeta("edit", toolMeta{paths: singlePathExtractor("path")})

	r.register("undo_patch",
		`Undo a previously applied edit by its undo_id, restoring the file to its pre-edit content. Fails with E_DRIFT if the file has changed since the edit was applied, unless force is set.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"undo_id": {
					"type": "string",
					"description": "The undo_id returned by a prior edit"
				},
				"force": {
					"type": "boolean",
					"description": "Restore even if the file has drifted since the edit"
				}
			},
			"required": ["undo_id"]
		}`),
		r.undoPatchTool,
	)

	r.register("bash",
		`Execute a shell command in the working directory. Use for terminal operations like git, builds, tests, and other system commands. Do NOT use bash for file operations (reading, writing, editing, searching) — use the dedicated tools instead. Specifically, do not use cat, head, tail, sed, awk, find, grep, or echo when a dedicated tool exists.

Before executing commands that create new directories or files, first verify the parent directory exists using ls. Always quote file paths containing spaces. Use && to chain sequential dependent commands. Prefer absolute paths and avoid cd when possible.

All commands require user confirmation. Default timeout: 30s, max: 120s. Output is truncated per configured limits.

Git safety: Never force-push, reset --hard, use --no-verify, or amend unless the user explicitly asks. Never use interactive flags (-i). Prefer staging specific files over "git add -A". Only commit when explicitly requested by the user.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"command": {
					"type": "string",
					"description": "Shell command to execute"
				},
				"timeout": {
					"type": "integer",
					"description": "Timeout in seconds (default: 30, max: 120)"
				}
			},
			"required": ["command"]
		}`),
		r.bashTool,
	)
	r.configureMeta("bash", toolMeta{command: commandFieldExtractor("command")})

	r.register("explore",
		`Explore the codebase to answer broad questions by delegating to a focused sub-agent. The sub-agent has its own context and read-only tools (glob, grep, ls, read). Use this for questions like "how does authentication work?", "what's the project structure?", or "find all API endpoints". Do NOT use this for direct tasks like editing files or running commands — only for research and exploration.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"task": {
					"type": "string",
					"description": "What to explore or research in the codebase"
				}
			},
			"required": ["task"]
		}`),
		r.exploreTool,
	)

	r.register("search_semantic",
		`Search the codebase by meaning rather than literal text, using an embedding-based vector index. Use this when grep's literal/regex matching won't find conceptually related code (e.g. "where do we rate-limit API calls?"). Falls back to an E_NO_TOOL error if no vector store is configured — prefer grep/explore in that case.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {
					"type": "string",
					"description": "Natural-language description of what to find"
				},
				"k": {
					"type": "integer",
					"description": "Number of results to return (default: 5)"
				}
			},
			"required": ["query"]
		}`),
		r.searchSemanticTool,
	)
	r.configureMeta("search_semantic", toolMeta{cacheable: true})

	r.register("display",
		`Emit a message to the user outside the normal assistant response text, e.g. a warning or a highlighted note. level is one of "info", "warning", "error".`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"content": {
					"type": "string",
					"description": "Message to display"
				},
				"level": {
					"type": "string",
					"enum": ["info", "warning", "error"],
					"description": "Display level (default: info)"
				},
				"title": {
					"type": "string",
					"description": "Optional short title"
				}
			},
			"required": ["content"]
		}`),
		r.displayTool,
	)

	r.register("weather",
		`Look up current weather for a location. Example adapter demonstrating an HTTP-backed tool with a configurable cache TTL; not used for coding tasks.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"location": {
					"type": "string",
					"description": "City name or \"lat,lon\""
				},
				"units": {
					"type": "string",
					"enum": ["metric", "imperial"],
					"description": "Unit system (default: metric)"
				},
				"lang": {
					"type": "string",
					"description": "Response language code (default: en)"
				}
			},
			"required": ["location"]
		}`),
		r.weatherTool,
	)
	r.configureMeta("weather", toolMeta{cacheable: true})
}

// ensureContextAlive returns a *ToolError with ErrTimeout if ctx is already
// done, used by tools whose underlying operation has no natural deadline
// check of its own (e.g. search_semantic before it calls out).
func ensureContextAlive(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return newToolError(ErrTimeout, "context cancelled: %v", ctx.Err())
	default:
		return nil
	}
}
