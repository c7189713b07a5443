package external

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveIsDeterministicForSameWorkspace(t *testing.T) {
	p1, err := Resolve("/tmp/project-a", "")
	require.NoError(t, err)
	p2, err := Resolve("/tmp/project-a", "")
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
}

func TestResolveDiffersForDifferentWorkspaces(t *testing.T) {
	p1, err := Resolve("/tmp/project-a", "")
	require.NoError(t, err)
	p2, err := Resolve("/tmp/project-b", "")
	require.NoError(t, err)
	assert.NotEqual(t, p1.SessionsDir, p2.SessionsDir)
}

func TestResolveHonorsExplicitProjectID(t *testing.T) {
	p, err := Resolve("/tmp/project-a", "fixed-id")
	require.NoError(t, err)
	assert.Contains(t, p.LogsDir, "fixed-id")
}

func TestEnsureDirsCreatesAllDirectories(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)
	p, err := Resolve("/tmp/project-a", "test-ensure")
	require.NoError(t, err)
	require.NoError(t, p.EnsureDirs())

	for _, dir := range []string{p.LogsDir, p.SessionsDir, p.CacheDir, p.VectorDBDir, p.RegistryDir, p.ApprovalsDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
