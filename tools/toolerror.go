package tools

import "fmt"

// Failure codes from spec.md §7's error taxonomy, surfaced to the model as
// {ok:false, error:{code,message}} instead of a bare fmt.Errorf string.
const (
	ErrInvalidArgs  = "E_INVALID_ARGS"
	ErrNotFound     = "E_NOT_FOUND"
	ErrPathEscape   = "E_PATH_ESCAPE"
	ErrTimeout      = "E_TIMEOUT"
	ErrToolBlocked  = "E_TOOL_BLOCKED"
	ErrNoTool       = "E_NO_TOOL"
	ErrTool         = "E_TOOL"
	ErrIO           = "E_IO"
	ErrDenied       = "E_DENIED"
	ErrPolicyDenied = "E_POLICY_DENIED"
)

// ToolError is a typed tool failure, distinguishable from NeedsConfirmation
// via a type assertion the same way the agent loop already distinguishes
// *NeedsConfirmation (see agent.go's handleConfirmation).
type ToolError struct {
	Code    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newToolError(code, format string, args ...any) *ToolError {
	return &ToolError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewInvalidArgsError builds an E_INVALID_ARGS error for malformed tool-call
// arguments caught before dispatch (e.g. invalid JSON from the model).
func NewInvalidArgsError(raw string) *ToolError {
	return newToolError(ErrInvalidArgs, "invalid JSON in tool arguments: %s", raw)
}

// NewDeniedError builds an E_DENIED error for a user-rejected confirmation
// (spec.md §4.H step 5: "on deny, synthesize a tool-result with E_DENIED").
func NewDeniedError(tool, path string) *ToolError {
	return newToolError(ErrDenied, "user denied %s on %s", tool, path)
}

// FormatFeedback renders the {ok,error} shape the model sees for a failed
// tool call, per spec.md §7.
func FormatFeedback(err error) string {
	if te, ok := err.(*ToolError); ok {
		return fmt.Sprintf(`{"ok":false,"error":{"code":%q,"message":%q}}`, te.Code, te.Message)
	}
	return fmt.Sprintf(`{"ok":false,"error":{"code":%q,"message":%q}}`, ErrTool, err.Error())
}
