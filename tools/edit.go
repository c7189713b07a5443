package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/lowkaihon/cli-coding-agent/patch"
)

type editInput struct {
	Path                 string  `json:"path"`
	OldStr               string  `json:"old_str"`
	NewStr               string  `json:"new_str"`
	ExpectedReplacements int     `json:"expected_replacements"`
	Fuzzy                bool    `json:"fuzzy"`
	MinSimilarity        float64 `json:"min_similarity"`
}

// WithPatchEngine attaches the apply/undo engine backing edit/undo_patch.
func (r *Registry) WithPatchEngine(e *patch.Engine) *Registry {
	r.patchEngine = e
	return r
}

func (r *Registry) editTool(ctx context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[editInput](input)
	if err != nil {
		return "", err
	}
	if params.Path == "" {
		return "", newToolError(ErrInvalidArgs, "path is required")
	}
	if params.OldStr == "" {
		return "", newToolError(ErrInvalidArgs, "old_str is required")
	}

	absPath, err := ValidatePath(r.workDir, params.Path)
	if err != nil {
		return "", err
	}

	contentBytes, err := os.ReadFile(absPath)
	if err != nil {
		return "", newToolError(ErrNotFound, "read file %s: %v", params.Path, err)
	}
	content := string(contentBytes)

	newContent, previewErr := computeEditPreview(content, params)
	if previewErr != nil {
		return "", previewErr
	}

	return "", &NeedsConfirmation{
		Tool:       "edit",
		Path:       params.Path,
		Preview:    content,
		NewContent: newContent,
		Execute: func() (string, error) {
			if r.patchEngine != nil {
				res, err := r.patchEngine.Apply(patch.Request{
					Path:                 params.Path,
					Old:                  params.OldStr,
					New:                  params.NewStr,
					ExpectedReplacements: params.ExpectedReplacements,
					Fuzzy:                params.Fuzzy,
					MinSimilarity:        params.MinSimilarity,
				})
				if err != nil {
					return "", translatePatchError(err)
				}
				r.InvalidateCache(params.Path)
				return fmt.Sprintf("Successfully edited %s (undo_id: %s)", params.Path, res.UndoID), nil
			}

			// Without the engine there is no fuzzy matcher: only an exact
			// match of the expected count is written.
			expected := params.ExpectedReplacements
			if expected == 0 {
				expected = 1
			}
			if count := strings.Count(content, params.OldStr); count != expected {
				return "", newToolError(ErrNotFound, "old_str matches %d times, expected %d (approximate matching needs the patch engine)", count, expected)
			}

			info, err := os.Stat(absPath)
			if err != nil {
				return "", newToolError(ErrIO, "stat file: %v", err)
			}
			if err := AtomicWrite(absPath, []byte(newContent), info.Mode()); err != nil {
				return "", newToolError(ErrIO, "write file: %v", err)
			}
			r.InvalidateCache(params.Path)
			return fmt.Sprintf("Successfully edited %s", params.Path), nil
		},
	}
}

// computeEditPreview mirrors the patch engine's apply algorithm closely
// enough to produce an accurate diff preview before the user confirms,
// without mutating the journal (the journal entry is only written once
// Execute actually runs, after confirmation).
func computeEditPreview(content string, params editInput) (string, error) {
	expected := params.ExpectedReplacements
	if expected == 0 {
		expected = 1
	}
	count := strings.Count(content, params.OldStr)
	if count == expected {
		return strings.Replace(content, params.OldStr, params.NewStr, expected), nil
	}
	if count == 0 && !params.Fuzzy {
		return "", newToolError(ErrNotFound, "no match found for old_str in file. Check for exact whitespace and indentation, or set fuzzy:true")
	}
	if count > 1 && count != expected {
		lines := strings.Split(content, "\n")
		firstLine := strings.SplitN(params.OldStr, "\n", 2)[0]
		var locations []string
		for i, line := range lines {
			if strings.Contains(line, firstLine) {
				locations = append(locations, fmt.Sprintf("line %d", i+1))
			}
		}
		return "", newToolError(ErrInvalidArgs, "old_str matches %d times (at %s); set expected_replacements or include more context",
			count, strings.Join(locations, ", "))
	}
	// No exact match with fuzzy set, or fewer exact matches than expected:
	// the preview can't locate the change without running the real
	// matcher, so just show new_str appended as an approximation — Execute
	// performs (and can reject) the real match.
	return content + "\n[fuzzy match preview unavailable until applied]\n" + params.NewStr, nil
}

func translatePatchError(err error) error {
	if pe, ok := err.(*patch.Error); ok {
		return newToolError(pe.Code, "%s", pe.Message)
	}
	return err
}
