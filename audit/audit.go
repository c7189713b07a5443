// Package audit implements the append-only trace/audit sink from spec.md
// §4.I: one JSON line per event, with sensitive fields redacted before
// marshaling. Grounded on config.go's promptAPIKeyFor (the same
// O_APPEND|O_CREATE|O_WRONLY append pattern) and agent/session.go's
// directory-layout conventions.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Record is one audit/trace line.
type Record struct {
	Timestamp time.Time      `json:"timestamp"`
	TraceID   uuid.UUID      `json:"trace_id"`
	StepIndex int            `json:"step_index"`
	Event     string         `json:"event"`
	Data      map[string]any `json:"data,omitempty"`
}

// redactPattern matches data keys that should never be written in the
// clear: tokens, secrets, API keys, passwords, Authorization headers.
var redactPattern = regexp.MustCompile(`(?i)(token|secret|key|password|authorization)`)

// Sink writes audit records to logs/audit.jsonl and, for the
// detail-bearing event kinds (llm_request, llm_response, tool_result), a
// second logs/trace.jsonl — mirroring spec.md's split between a coarse
// audit trail and a detailed trace.
type Sink struct {
	traceID uuid.UUID

	mu         sync.Mutex
	auditFile  *os.File
	traceFile  *os.File
	syncEvery  int
	sinceSync  int
}

// detailEvents are the kinds also written to trace.jsonl.
var detailEvents = map[string]bool{
	"llm_request":  true,
	"llm_response":  true,
	"tool_result":  true,
}

// New opens (creating if absent) audit.jsonl and trace.jsonl under logsDir,
// generating a fresh trace id for this session.
func New(logsDir string) (*Sink, error) {
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}
	auditFile, err := os.OpenFile(filepath.Join(logsDir, "audit.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open audit.jsonl: %w", err)
	}
	traceFile, err := os.OpenFile(filepath.Join(logsDir, "trace.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		auditFile.Close()
		return nil, fmt.Errorf("open trace.jsonl: %w", err)
	}
	return &Sink{
		traceID:   uuid.New(),
		auditFile: auditFile,
		traceFile: traceFile,
		syncEvery: 20,
	}, nil
}

// TraceID returns the session's trace correlation id.
func (s *Sink) TraceID() uuid.UUID { return s.traceID }

// Emit writes one audit record (and, for detail event kinds, a trace
// record too), redacting sensitive data values first.
func (s *Sink) Emit(stepIndex int, event string, data map[string]any) error {
	rec := Record{
		Timestamp: time.Now(),
		TraceID:   s.traceID,
		StepIndex: stepIndex,
		Event:     event,
		Data:      redact(data),
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.auditFile.Write(line); err != nil {
		return fmt.Errorf("write audit.jsonl: %w", err)
	}
	if detailEvents[event] {
		if _, err := s.traceFile.Write(line); err != nil {
			return fmt.Errorf("write trace.jsonl: %w", err)
		}
	}

	s.sinceSync++
	if s.sinceSync >= s.syncEvery {
		s.auditFile.Sync()
		s.traceFile.Sync()
		s.sinceSync = 0
	}
	return nil
}

// Close flushes and closes both underlying files.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditFile.Sync()
	s.traceFile.Sync()
	err1 := s.auditFile.Close()
	err2 := s.traceFile.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// redact returns a shallow copy of data with any key matching
// redactPattern replaced by "[REDACTED]".
func redact(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		if redactPattern.MatchString(k) {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = v
	}
	return out
}
