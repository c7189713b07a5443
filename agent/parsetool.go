package agent

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ParsedToolCall is a tool invocation recovered from free-form assistant
// text, for models that ignore the structured tool-call protocol and emit
// a textual request instead (spec.md §4.H step 3; see agent.go's comment
// on why the structured `resp.Message.ToolCalls` path is primary).
type ParsedToolCall struct {
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args"`
}

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)```")

// extractToolCallFromText applies the three-way fallback chain from
// spec.md §4.H: a bare top-level JSON object, a fenced code block
// containing one, or the first balanced `{...}` substring that parses and
// has the right shape ({tool, args}). Returns ok=false if no candidate
// parses into a well-formed ParsedToolCall.
func extractToolCallFromText(text string) (ParsedToolCall, bool) {
	trimmed := strings.TrimSpace(text)

	if call, ok := tryParseToolCall(trimmed); ok {
		return call, true
	}

	if m := fencedBlockRe.FindStringSubmatch(trimmed); m != nil {
		if call, ok := tryParseToolCall(strings.TrimSpace(m[1])); ok {
			return call, true
		}
	}

	for rest := trimmed; ; {
		obj, ok := firstBalancedObject(rest)
		if !ok {
			break
		}
		if call, ok := tryParseToolCall(obj); ok {
			return call, true
		}
		rest = rest[strings.IndexByte(rest, '{')+1:]
	}

	return ParsedToolCall{}, false
}

func tryParseToolCall(s string) (ParsedToolCall, bool) {
	if s == "" || s[0] != '{' {
		return ParsedToolCall{}, false
	}
	var call ParsedToolCall
	if err := json.Unmarshal([]byte(s), &call); err != nil {
		return ParsedToolCall{}, false
	}
	if call.Tool == "" {
		return ParsedToolCall{}, false
	}
	return call, true
}

// firstBalancedObject scans for the first `{...}` substring with balanced
// braces (respecting quoted strings), mirroring planner.extractJSONObject's
// approach for the same "model wrapped JSON in prose" problem.
func firstBalancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// stutterThreshold is the minimum run length of an identical rune that
// flags a response as a runaway/stuttering generation (spec.md §4.H).
const stutterThreshold = 200

// detectStutter reports whether text contains a run of the same rune
// repeated at least stutterThreshold times in a row.
func detectStutter(text string) bool {
	runs := 0
	var prev rune
	for i, r := range text {
		if i > 0 && r == prev {
			runs++
			if runs >= stutterThreshold {
				return true
			}
		} else {
			runs = 1
		}
		prev = r
	}
	return false
}

// truncateStutter cuts text at the point a stutter run begins, so the
// truncated text (plus a short marker) replaces the runaway output.
func truncateStutter(text string) string {
	runs := 0
	var prev rune
	start := -1
	for i, r := range text {
		if i > 0 && r == prev {
			if runs == 1 {
				start = i - len(string(prev))
			}
			runs++
			if runs >= stutterThreshold {
				if start < 0 {
					start = i
				}
				return text[:start] + "\n[truncated: repeated output detected]"
			}
		} else {
			runs = 1
		}
		prev = r
	}
	return text
}
