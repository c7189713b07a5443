// Package patch implements the apply/undo engine for file edits: exact and
// fuzzy matching, atomic writes, and an append-only undo journal.
package patch

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pmezard/go-difflib/difflib"
)

// Mode distinguishes a forward apply from its inverse undo in the journal.
type Mode string

const (
	ModeApply Mode = "apply"
	ModeUndo  Mode = "undo"
)

// Failure codes from spec.md's patch engine failure taxonomy.
const (
	ErrNotFound  = "E_NOT_FOUND"
	ErrNoMatch   = "E_NO_MATCH"
	ErrAmbiguous = "E_AMBIGUOUS"
	ErrDrift     = "E_DRIFT"
	ErrIO        = "E_IO"
)

// Error is a typed patch-engine failure carrying one of the codes above.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func fail(code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// DefaultMinSimilarity is the fuzzy-match acceptance threshold resolved from
// spec.md's open question (see DESIGN.md).
const DefaultMinSimilarity = 0.92

// RunnerUpMargin is the minimum lead the best fuzzy window must hold over
// the second-best before it is accepted unambiguously.
const RunnerUpMargin = 0.05

// Record is one entry in the undo journal: a forward apply or its inverse.
type Record struct {
	UndoID     uuid.UUID `json:"undo_id"`
	Path       string    `json:"path"`
	BeforeHash string    `json:"before_hash"`
	AfterHash  string    `json:"after_hash"`
	Before     string    `json:"before"`
	After      string    `json:"after"`
	Mode       Mode      `json:"mode"`
	Timestamp  time.Time `json:"timestamp"`
}

// Request describes an apply_patch call.
type Request struct {
	Path                 string
	Old                  string
	New                  string
	ExpectedReplacements int
	Fuzzy                bool
	MinSimilarity        float64
}

// Result is returned on a successful apply.
type Result struct {
	UndoID        uuid.UUID
	Path          string
	BeforeHash    string
	AfterHash     string
	InvalidatePaths []string
}

// Engine applies and undoes patches against a workspace root, maintaining a
// disk-backed undo journal.
type Engine struct {
	workDir     string
	journalPath string

	mu      sync.Mutex
	records []Record
}

// New constructs an Engine whose journal is appended to journalPath (created
// if absent). workDir bounds path resolution the same way tools.ValidatePath
// does.
func New(workDir, journalPath string) (*Engine, error) {
	e := &Engine{workDir: workDir, journalPath: journalPath}
	if journalPath == "" {
		return e, nil
	}
	if err := os.MkdirAll(filepath.Dir(journalPath), 0755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	if data, err := os.ReadFile(journalPath); err == nil {
		for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
			if line == "" {
				continue
			}
			var r Record
			if err := json.Unmarshal([]byte(line), &r); err == nil {
				e.records = append(e.records, r)
			}
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return e, nil
}

func hashContent(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// Apply performs the apply_patch algorithm from spec.md §4.B.
func (e *Engine) Apply(req Request) (*Result, error) {
	absPath, err := resolvePath(e.workDir, req.Path)
	if err != nil {
		return nil, err
	}

	contentBytes, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fail(ErrNotFound, "no such file: %s", req.Path)
		}
		return nil, fail(ErrIO, "read %s: %v", req.Path, err)
	}
	content := string(contentBytes)
	beforeHash := hashContent(contentBytes)

	expected := req.ExpectedReplacements
	if expected == 0 {
		expected = 1
	}

	var newContent string
	count := strings.Count(content, req.Old)
	switch {
	case count == expected:
		newContent = replaceN(content, req.Old, req.New, expected)
	case count > expected:
		return nil, fail(ErrAmbiguous, "old_str matches %d times in %s, expected %d", count, req.Path, expected)
	case count == 0 && req.Fuzzy:
		_, start, end, err := bestFuzzyWindow(content, req.Old, minSim(req.MinSimilarity))
		if err != nil {
			return nil, err
		}
		newContent = content[:start] + req.New + content[end:]
	default: // count < expected, including count == 0 without fuzzy
		return nil, fail(ErrNoMatch, "old_str matches %d times in %s, expected %d", count, req.Path, expected)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fail(ErrIO, "stat %s: %v", req.Path, err)
	}
	if err := AtomicWrite(absPath, []byte(newContent), info.Mode()); err != nil {
		return nil, fail(ErrIO, "write %s: %v", req.Path, err)
	}

	afterHash := hashContent([]byte(newContent))
	rec := Record{
		UndoID:     uuid.New(),
		Path:       req.Path,
		BeforeHash: beforeHash,
		AfterHash:  afterHash,
		Before:     content,
		After:      newContent,
		Mode:       ModeApply,
		Timestamp:  time.Now(),
	}
	if err := e.appendRecord(rec); err != nil {
		return nil, fail(ErrIO, "append journal: %v", err)
	}

	return &Result{
		UndoID:          rec.UndoID,
		Path:            req.Path,
		BeforeHash:      beforeHash,
		AfterHash:       afterHash,
		InvalidatePaths: []string{req.Path, filepath.Dir(req.Path)},
	}, nil
}

// Undo restores the file touched by undoID to its pre-apply content, unless
// the file has drifted since (content hash no longer matches AfterHash), in
// which case it fails with E_DRIFT unless force is set.
func (e *Engine) Undo(undoID uuid.UUID, force bool) (*Result, error) {
	e.mu.Lock()
	var fwd *Record
	for i := len(e.records) - 1; i >= 0; i-- {
		if e.records[i].UndoID == undoID && e.records[i].Mode == ModeApply {
			fwd = &e.records[i]
			break
		}
	}
	e.mu.Unlock()
	if fwd == nil {
		return nil, fail(ErrNotFound, "no such undo_id: %s", undoID)
	}

	absPath, err := resolvePath(e.workDir, fwd.Path)
	if err != nil {
		return nil, err
	}

	curBytes, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fail(ErrIO, "read %s: %v", fwd.Path, err)
	}
	curHash := hashContent(curBytes)
	if curHash != fwd.AfterHash && !force {
		return nil, fail(ErrDrift, "file %s has changed since patch was applied", fwd.Path)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fail(ErrIO, "stat %s: %v", fwd.Path, err)
	}
	if err := AtomicWrite(absPath, []byte(fwd.Before), info.Mode()); err != nil {
		return nil, fail(ErrIO, "write %s: %v", fwd.Path, err)
	}

	inverse := Record{
		UndoID:     uuid.New(),
		Path:       fwd.Path,
		BeforeHash: curHash,
		AfterHash:  fwd.BeforeHash,
		Before:     string(curBytes),
		After:      fwd.Before,
		Mode:       ModeUndo,
		Timestamp:  time.Now(),
	}
	if err := e.appendRecord(inverse); err != nil {
		return nil, fail(ErrIO, "append journal: %v", err)
	}

	return &Result{
		UndoID:          inverse.UndoID,
		Path:            fwd.Path,
		BeforeHash:      inverse.BeforeHash,
		AfterHash:       inverse.AfterHash,
		InvalidatePaths: []string{fwd.Path, filepath.Dir(fwd.Path)},
	}, nil
}

func (e *Engine) appendRecord(r Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = append(e.records, r)
	if e.journalPath == "" {
		return nil
	}
	f, err := os.OpenFile(e.journalPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	line, err := json.Marshal(r)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

// Records returns a snapshot of the journal (forward applies and undos, in
// append order). The journal is monotonically growing; callers must not
// mutate the returned slice.
func (e *Engine) Records() []Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Record, len(e.records))
	copy(out, e.records)
	return out
}

func minSim(v float64) float64 {
	if v <= 0 {
		return DefaultMinSimilarity
	}
	return v
}

func replaceN(content, old, new string, n int) string {
	return strings.Replace(content, old, new, n)
}

// bestFuzzyWindow slides a window of length len(old) runes across content,
// scoring each with go-difflib's SequenceMatcher ratio (a normalized
// longest-common-subsequence-derived similarity), and returns the best
// window's text and byte offsets. It fails with E_AMBIGUOUS if the top two
// candidates are within RunnerUpMargin of each other, and E_NO_MATCH if no
// candidate clears minSimilarity.
func bestFuzzyWindow(content, old string, minSimilarity float64) (string, int, int, error) {
	runes := []rune(content)
	oldRunes := []rune(old)
	windowLen := len(oldRunes)
	if windowLen == 0 || len(runes) < windowLen {
		return "", 0, 0, fail(ErrNoMatch, "old_str too long for file")
	}

	type candidate struct {
		score     float64
		startRune int
		startByte int
		endByte   int
		text      string
	}
	var best candidate
	scores := make([]float64, len(runes)-windowLen+1)

	byteOffsets := make([]int, len(runes)+1)
	pos := 0
	for i, r := range runes {
		byteOffsets[i] = pos
		pos += len(string(r))
	}
	byteOffsets[len(runes)] = pos

	// go-difflib's SequenceMatcher compares []string sequences; each rune
	// becomes its own single-character token so Ratio() still measures
	// character-level similarity.
	oldTokens := make([]string, len(oldRunes))
	for i, r := range oldRunes {
		oldTokens[i] = string(r)
	}
	allTokens := make([]string, len(runes))
	for i, r := range runes {
		allTokens[i] = string(r)
	}

	matcher := difflib.NewMatcher(nil, oldTokens)
	for start := 0; start+windowLen <= len(runes); start++ {
		window := allTokens[start : start+windowLen]
		matcher.SetSeq1(window)
		score := matcher.Ratio()
		scores[start] = score
		if score > best.score {
			best = candidate{
				score:     score,
				startRune: start,
				startByte: byteOffsets[start],
				endByte:   byteOffsets[start+windowLen],
				text:      strings.Join(window, ""),
			}
		}
	}

	if best.score < minSimilarity {
		return "", 0, 0, fail(ErrNoMatch, "best fuzzy match scored %.3f, below threshold %.3f", best.score, minSimilarity)
	}
	// The runner-up is the best window that does not overlap the winner.
	var runnerUp float64
	for start, score := range scores {
		if (start <= best.startRune-windowLen || start >= best.startRune+windowLen) && score > runnerUp {
			runnerUp = score
		}
	}
	if runnerUp > 0 && best.score-runnerUp < RunnerUpMargin {
		return "", 0, 0, fail(ErrAmbiguous, "fuzzy match ambiguous: top score %.3f, runner-up %.3f", best.score, runnerUp)
	}

	return best.text, best.startByte, best.endByte, nil
}

func resolvePath(workDir, requested string) (string, error) {
	if filepath.IsAbs(requested) {
		rel, err := filepath.Rel(workDir, requested)
		if err != nil || strings.HasPrefix(rel, "..") {
			return "", fail("E_PATH_ESCAPE", "path %q is outside the working directory", requested)
		}
		return filepath.Clean(requested), nil
	}
	absPath := filepath.Clean(filepath.Join(workDir, requested))
	rel, err := filepath.Rel(workDir, absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fail("E_PATH_ESCAPE", "path %q is outside the working directory", requested)
	}
	return absPath, nil
}

// AtomicWrite writes content to targetPath via a temp file in the same
// directory, fsync, then rename — mirroring tools.AtomicWrite, extended
// with an explicit fsync before the rename per spec.md's durability note.
func AtomicWrite(targetPath string, content []byte, perm os.FileMode) error {
	dir := filepath.Dir(targetPath)
	tmp, err := os.CreateTemp(dir, ".pilot-patch-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, targetPath); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	tmpPath = ""
	return nil
}
