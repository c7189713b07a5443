package agent

import (
	"github.com/lowkaihon/cli-coding-agent/external"
)

// GlobalSessionsDir returns the path to the sessions directory for a given
// project under the user's home directory: ~/.pilot/projects/<hash>/sessions.
// Delegates to external.Resolve, the single source of truth for the
// project-scoped directory layout (§6) shared with the tool registry's
// cache/audit/patch wiring in cmd/pilot/main.go.
func GlobalSessionsDir(workDir string) (string, error) {
	return globalSessionsDir(workDir)
}

func globalSessionsDir(workDir string) (string, error) {
	paths, err := external.Resolve(workDir, "")
	if err != nil {
		return "", err
	}
	return paths.SessionsDir, nil
}
