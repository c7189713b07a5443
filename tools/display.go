package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

type displayInput struct {
	Content string `json:"content"`
	Level   string `json:"level"`
	Title   string `json:"title"`
}

// DisplayFunc is the callback the agent injects so display() can reach the
// event bus / UI without tools importing agent (breaking the same
// circular-dependency shape as ExploreFunc/TaskCallbacks).
type DisplayFunc func(level, title, content string)

// SetDisplayFunc injects the display callback.
func (r *Registry) SetDisplayFunc(fn DisplayFunc) {
	r.displayFunc = fn
}

func (r *Registry) displayTool(_ context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[displayInput](input)
	if err != nil {
		return "", err
	}
	if params.Content == "" {
		return "", newToolError(ErrInvalidArgs, "content is required")
	}
	level := params.Level
	if level == "" {
		level = "info"
	}
	if level != "info" && level != "warning" && level != "error" {
		return "", newToolError(ErrInvalidArgs, "level must be one of info, warning, error")
	}

	if r.displayFunc != nil {
		r.displayFunc(level, params.Title, params.Content)
	}
	return fmt.Sprintf("Displayed %s message to user.", level), nil
}
