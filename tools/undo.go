package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

type undoPatchInput struct {
	UndoID string `json:"undo_id"`
	Force  bool   `json:"force"`
}

func (r *Registry) undoPatchTool(_ context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[undoPatchInput](input)
	if err != nil {
		return "", err
	}
	if params.UndoID == "" {
		return "", newToolError(ErrInvalidArgs, "undo_id is required")
	}
	if r.patchEngine == nil {
		return "", newToolError(ErrNoTool, "patch engine not configured")
	}

	id, err := uuid.Parse(params.UndoID)
	if err != nil {
		return "", newToolError(ErrInvalidArgs, "invalid undo_id: %v", err)
	}

	res, err := r.patchEngine.Undo(id, params.Force)
	if err != nil {
		return "", translatePatchError(err)
	}
	r.InvalidateCache(res.Path)
	return fmt.Sprintf("Restored %s (undo_id: %s)", res.Path, res.UndoID), nil
}
