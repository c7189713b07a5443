package patch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestApplyExactReplace(t *testing.T) {
	dir := t.TempDir()
	writeTemp(t, dir, "hello.go", "package main\n\nfunc main() {}\n")

	eng, err := New(dir, filepath.Join(dir, "journal.jsonl"))
	require.NoError(t, err)

	res, err := eng.Apply(Request{Path: "hello.go", Old: "func main() {}", New: "func main() { println(1) }"})
	require.NoError(t, err)
	assert.NotEqual(t, res.BeforeHash, res.AfterHash)

	got, err := os.ReadFile(filepath.Join(dir, "hello.go"))
	require.NoError(t, err)
	assert.Contains(t, string(got), "println(1)")

	recs := eng.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, ModeApply, recs[0].Mode)
}

func TestApplyNoMatch(t *testing.T) {
	dir := t.TempDir()
	writeTemp(t, dir, "f.txt", "alpha\nbeta\n")
	eng, err := New(dir, "")
	require.NoError(t, err)

	_, err = eng.Apply(Request{Path: "f.txt", Old: "gamma", New: "delta"})
	require.Error(t, err)
	perr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrNoMatch, perr.Code)
}

func TestApplyAmbiguousWithoutExpectedReplacements(t *testing.T) {
	dir := t.TempDir()
	writeTemp(t, dir, "f.txt", "x = 1\nx = 1\n")
	eng, err := New(dir, "")
	require.NoError(t, err)

	_, err = eng.Apply(Request{Path: "f.txt", Old: "x = 1", New: "x = 2"})
	require.Error(t, err)
	perr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrAmbiguous, perr.Code)
}

func TestApplyExpectedReplacementsMatchesCount(t *testing.T) {
	dir := t.TempDir()
	writeTemp(t, dir, "f.txt", "x = 1\nx = 1\n")
	eng, err := New(dir, "")
	require.NoError(t, err)

	_, err = eng.Apply(Request{Path: "f.txt", Old: "x = 1", New: "x = 2", ExpectedReplacements: 2})
	require.NoError(t, err)

	got, _ := os.ReadFile(filepath.Join(dir, "f.txt"))
	assert.Equal(t, "x = 2\nx = 2\n", string(got))
}

func TestApplyExpectedReplacementsExceedsCountIsNoMatch(t *testing.T) {
	// spec.md §8: apply_patch with expected_replacements=2 on a file
	// containing exactly one match must fail E_NO_MATCH, not E_AMBIGUOUS.
	dir := t.TempDir()
	writeTemp(t, dir, "f.txt", "x = 1\n")
	eng, err := New(dir, "")
	require.NoError(t, err)

	_, err = eng.Apply(Request{Path: "f.txt", Old: "x = 1", New: "x = 2", ExpectedReplacements: 2})
	require.Error(t, err)
	perr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrNoMatch, perr.Code)
}

func TestApplyCountExceedsExpectedIsAmbiguous(t *testing.T) {
	dir := t.TempDir()
	writeTemp(t, dir, "f.txt", "x = 1\nx = 1\nx = 1\n")
	eng, err := New(dir, "")
	require.NoError(t, err)

	_, err = eng.Apply(Request{Path: "f.txt", Old: "x = 1", New: "x = 2", ExpectedReplacements: 2})
	require.Error(t, err)
	perr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrAmbiguous, perr.Code)
}

func TestApplyFuzzyMatch(t *testing.T) {
	dir := t.TempDir()
	writeTemp(t, dir, "f.txt", "func greet(name string) string {\n\treturn \"hello \" + name\n}\n")
	eng, err := New(dir, "")
	require.NoError(t, err)

	res, err := eng.Apply(Request{
		Path:  "f.txt",
		Old:   "func greet(nme string) string {\n\treturn \"hello \" + nme\n}",
		New:   "func greet(name string) string {\n\treturn \"hi \" + name\n}",
		Fuzzy: true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.UndoID)

	got, _ := os.ReadFile(filepath.Join(dir, "f.txt"))
	assert.Contains(t, string(got), "hi ")
}

func TestUndoRestoresContentAndDetectsDrift(t *testing.T) {
	dir := t.TempDir()
	writeTemp(t, dir, "f.txt", "one\n")
	eng, err := New(dir, filepath.Join(dir, "journal.jsonl"))
	require.NoError(t, err)

	res, err := eng.Apply(Request{Path: "f.txt", Old: "one", New: "two"})
	require.NoError(t, err)

	_, err = eng.Undo(res.UndoID, false)
	require.NoError(t, err)
	got, _ := os.ReadFile(filepath.Join(dir, "f.txt"))
	assert.Equal(t, "one\n", string(got))

	res2, err := eng.Apply(Request{Path: "f.txt", Old: "one", New: "three"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte("drifted\n"), 0644))

	_, err = eng.Undo(res2.UndoID, false)
	require.Error(t, err)
	perr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrDrift, perr.Code)

	_, err = eng.Undo(res2.UndoID, true)
	require.NoError(t, err)
}

func TestApplyPathEscapeRejected(t *testing.T) {
	dir := t.TempDir()
	eng, err := New(dir, "")
	require.NoError(t, err)

	_, err = eng.Apply(Request{Path: "../outside.txt", Old: "a", New: "b"})
	require.Error(t, err)
}

func TestJournalPersistsAcrossEngineInstances(t *testing.T) {
	dir := t.TempDir()
	writeTemp(t, dir, "f.txt", "one\n")
	journalPath := filepath.Join(dir, "journal.jsonl")

	eng1, err := New(dir, journalPath)
	require.NoError(t, err)
	res, err := eng1.Apply(Request{Path: "f.txt", Old: "one", New: "two"})
	require.NoError(t, err)

	eng2, err := New(dir, journalPath)
	require.NoError(t, err)
	require.Len(t, eng2.Records(), 1)

	_, err = eng2.Undo(res.UndoID, false)
	require.NoError(t, err)
}
