package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLines(t *testing.T, path string) []Record {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var recs []Record
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r Record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		recs = append(recs, r)
	}
	return recs
}

func TestEmitWritesToAuditLog(t *testing.T) {
	dir := t.TempDir()
	sink, err := New(dir)
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Emit(1, "policy_decision", map[string]any{"tool": "bash", "allow": true}))

	recs := readLines(t, filepath.Join(dir, "audit.jsonl"))
	require.Len(t, recs, 1)
	assert.Equal(t, "policy_decision", recs[0].Event)
	assert.Equal(t, sink.TraceID(), recs[0].TraceID)
}

func TestEmitDetailEventAlsoWritesTrace(t *testing.T) {
	dir := t.TempDir()
	sink, err := New(dir)
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Emit(2, "tool_result", map[string]any{"tool": "read"}))
	require.NoError(t, sink.Emit(3, "state", map[string]any{"state": "Planning"}))

	auditRecs := readLines(t, filepath.Join(dir, "audit.jsonl"))
	assert.Len(t, auditRecs, 2)

	traceRecs := readLines(t, filepath.Join(dir, "trace.jsonl"))
	require.Len(t, traceRecs, 1)
	assert.Equal(t, "tool_result", traceRecs[0].Event)
}

func TestEmitRedactsSensitiveKeys(t *testing.T) {
	dir := t.TempDir()
	sink, err := New(dir)
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Emit(1, "llm_request", map[string]any{
		"api_key": "sk-super-secret",
		"model":   "gpt-4o-mini",
	}))

	recs := readLines(t, filepath.Join(dir, "audit.jsonl"))
	require.Len(t, recs, 1)
	assert.Equal(t, "[REDACTED]", recs[0].Data["api_key"])
	assert.Equal(t, "gpt-4o-mini", recs[0].Data["model"])
}

func TestJournalPersistsAcrossSinkInstances(t *testing.T) {
	dir := t.TempDir()
	sink1, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, sink1.Emit(1, "state", map[string]any{"state": "Idle"}))
	require.NoError(t, sink1.Close())

	sink2, err := New(dir)
	require.NoError(t, err)
	defer sink2.Close()
	require.NoError(t, sink2.Emit(2, "state", map[string]any{"state": "Done"}))

	recs := readLines(t, filepath.Join(dir, "audit.jsonl"))
	assert.Len(t, recs, 2)
}
