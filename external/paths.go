package external

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// ProjectPaths is the full persisted-state layout from spec.md §3/§6:
// every directory a Session's managers need, rooted under the user's home
// directory and isolated per project by a hash of its absolute workspace
// root. agent/paths.go's globalSessionsDir delegates to Resolve, a pure
// function with no package-level state, per §9's no-global-singletons
// design note.
type ProjectPaths struct {
	LogsDir            string
	SessionsDir        string
	CacheDir           string
	VectorDBDir        string
	RegistryDir        string
	ApprovalsDir       string
	PromptVersionsFile string
}

// Resolve computes the ProjectPaths for workspaceRoot. projectID, when
// non-empty, is used instead of a hash of workspaceRoot — allowing callers
// to pin a stable id across workspace moves/renames.
func Resolve(workspaceRoot, projectID string) (ProjectPaths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return ProjectPaths{}, fmt.Errorf("resolve home directory: %w", err)
	}
	if projectID == "" {
		projectID = hashWorkspace(workspaceRoot)
	}
	root := filepath.Join(home, ".pilot", "projects", projectID)

	return ProjectPaths{
		LogsDir:            filepath.Join(root, "logs"),
		SessionsDir:        filepath.Join(root, "sessions"),
		CacheDir:           filepath.Join(root, "cache"),
		VectorDBDir:        filepath.Join(root, "vectordb"),
		RegistryDir:        filepath.Join(root, "registry"),
		ApprovalsDir:       filepath.Join(root, "approvals"),
		PromptVersionsFile: filepath.Join(root, "prompt_versions.json"),
	}, nil
}

// EnsureDirs creates every directory field of p (0755), leaving
// PromptVersionsFile untouched (it is a file, created on first write).
func (p ProjectPaths) EnsureDirs() error {
	for _, dir := range []string{p.LogsDir, p.SessionsDir, p.CacheDir, p.VectorDBDir, p.RegistryDir, p.ApprovalsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

func hashWorkspace(workspaceRoot string) string {
	absPath, err := filepath.Abs(workspaceRoot)
	if err != nil {
		absPath = workspaceRoot
	}
	h := sha256.Sum256([]byte(filepath.Clean(absPath)))
	return hex.EncodeToString(h[:])[:16]
}
