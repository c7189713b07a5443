package tools

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// pathExtractor pulls the file path(s) a tool call's arguments reference,
// used both for policy path-rule checks and for cache path recording /
// invalidation (spec.md §4.A/§4.C).
type pathExtractor func(input json.RawMessage) []string

// commandExtractor pulls the literal shell command a tool call carries,
// used by the policy gate's run_cmd heuristics (spec.md §4.F).
type commandExtractor func(input json.RawMessage) string

func singlePathExtractor(field string) pathExtractor {
	return func(input json.RawMessage) []string {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(input, &m); err != nil {
			return nil
		}
		raw, ok := m[field]
		if !ok {
			return nil
		}
		var path string
		if err := json.Unmarshal(raw, &path); err != nil || path == "" {
			return nil
		}
		return []string{path}
	}
}

func commandFieldExtractor(field string) commandExtractor {
	return func(input json.RawMessage) string {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(input, &m); err != nil {
			return ""
		}
		raw, ok := m[field]
		if !ok {
			return ""
		}
		var cmd string
		json.Unmarshal(raw, &cmd)
		return cmd
	}
}

// compileSchema compiles a tool's embedded JSON Schema once, at
// registration time, using santhosh-tekuri/jsonschema/v6 — the same
// validator planner/ uses for plan JSON (one validator, two call sites,
// per SPEC_FULL.md's domain stack table).
func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("tool %s: malformed schema: %w", name, err)
	}
	if m, ok := doc.(map[string]any); ok {
		if _, has := m["additionalProperties"]; !has {
			m["additionalProperties"] = false
		}
	}
	url := "tool:" + name
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("tool %s: compile schema: %w", name, err)
	}
	return c.Compile(url)
}

// ValidateArgs validates raw tool-call arguments against the tool's
// compiled schema, rejecting unknown top-level fields unless the schema
// set additionalProperties:true itself.
func (r *Registry) ValidateArgs(name string, input json.RawMessage) error {
	sch, ok := r.schemas[name]
	if !ok {
		return nil
	}
	var doc any
	if len(input) == 0 {
		doc = map[string]any{}
	} else if err := json.Unmarshal(input, &doc); err != nil {
		return newToolError(ErrInvalidArgs, "invalid JSON arguments: %v", err)
	}
	if err := sch.Validate(doc); err != nil {
		return newToolError(ErrInvalidArgs, "%v", err)
	}
	return nil
}
