package agent

import (
	"github.com/lowkaihon/cli-coding-agent/llm"
)

// Priority orders context entries for compaction, highest-surviving first
// (spec.md §4.E, §9 open question resolved to a single lattice):
//
//	protected > recent > working > relevant > archival
type Priority int

const (
	PriorityArchival Priority = iota
	PriorityRelevant
	PriorityWorking
	PriorityRecent
	PriorityProtected
)

// entry pairs a message with the priority it was added at.
type entry struct {
	message  llm.Message
	priority Priority
}

// ManagerStats mirrors ContextStats' shape for the priority-tagged view.
type ManagerStats struct {
	TotalMessages int
	ByPriority    map[Priority]int
	TotalTokens   int
}

// Manager wraps the teacher's flat message slice with an explicit priority
// lattice, so compaction can drop low-priority entries first instead of
// always summarizing from the start of history. It is an additive,
// optional refinement: Agent.Run works unchanged when no Manager is
// attached (see WithContextManager), and falls back to compactIfNeeded's
// simpler "compact everything but the last user turn" behavior otherwise.
type Manager struct {
	entries []entry
}

// NewManager constructs an empty Manager.
func NewManager() *Manager {
	return &Manager{}
}

// Add appends message at the given priority.
func (m *Manager) Add(message llm.Message, priority Priority) {
	m.entries = append(m.entries, entry{message: message, priority: priority})
}

// Render flattens the lattice back into the ordered message slice the LLM
// client expects, preserving original insertion order (priority governs
// what Compact drops, not display order).
func (m *Manager) Render() []llm.Message {
	out := make([]llm.Message, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.message
	}
	return out
}

// Stats reports message counts per priority tier and total estimated tokens.
func (m *Manager) Stats() ManagerStats {
	stats := ManagerStats{ByPriority: make(map[Priority]int, 5)}
	for _, e := range m.entries {
		stats.TotalMessages++
		stats.ByPriority[e.priority]++
		stats.TotalTokens += EstimateTokens(e.message)
	}
	return stats
}

// Compact drops whole tiers, archival first, then relevant, then working,
// stopping as soon as estimated tokens fall at or under budget. When
// keepProtected is false and the total is still over budget, the recent
// tier is dropped as well. Protected entries are never dropped, so the
// total can remain over budget.
func (m *Manager) Compact(budget int, keepProtected bool) {
	for _, p := range []Priority{PriorityArchival, PriorityRelevant, PriorityWorking} {
		if m.tokenTotal() <= budget {
			return
		}
		m.dropPriority(p)
	}
	if keepProtected || m.tokenTotal() <= budget {
		return
	}
	m.dropPriority(PriorityRecent)
}

// Clear empties the manager. When keepProtected is true, entries at
// PriorityProtected (the system message) survive.
func (m *Manager) Clear(keepProtected bool) {
	if !keepProtected {
		m.entries = nil
		return
	}
	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.priority == PriorityProtected {
			kept = append(kept, e)
		}
	}
	m.entries = kept
}

func (m *Manager) tokenTotal() int {
	total := 0
	for _, e := range m.entries {
		total += EstimateTokens(e.message)
	}
	return total
}

func (m *Manager) dropPriority(p Priority) {
	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.priority != p {
			kept = append(kept, e)
		}
	}
	m.entries = kept
}

// WithContextManager attaches a priority-lattice Manager; when set,
// compactIfNeeded prefers dropping low-priority entries over the teacher's
// single linear "summarize everything but the last turn" compaction.
func (a *Agent) WithContextManager(m *Manager) *Agent {
	a.ctxManager = m
	return a
}
