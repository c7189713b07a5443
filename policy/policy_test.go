package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckDisallowedTool(t *testing.T) {
	g := New(Policy{DisallowedTools: []string{"bash"}}, "/work")
	d := g.Check("bash", "ls", "")
	assert.False(t, d.Allow)
	assert.Equal(t, ErrToolBlocked, d.DenyCode)
}

func TestCheckAllowedToolsAllowlist(t *testing.T) {
	g := New(Policy{AllowedTools: []string{"read", "grep"}}, "/work")
	assert.True(t, g.Check("read", "", "a.go").Allow)
	d := g.Check("bash", "ls", "")
	assert.False(t, d.Allow)
	assert.Equal(t, ErrToolBlocked, d.DenyCode)
}

func TestCheckCommandDenylist(t *testing.T) {
	g := New(Policy{CommandDenylist: []string{"rm -rf /"}}, "/work")
	d := g.Check("bash", "rm -rf / --no-preserve-root", "")
	assert.False(t, d.Allow)
	assert.Equal(t, RiskCritical, d.Risk)
	assert.Equal(t, ErrPolicyDenied, d.DenyCode)
}

func TestCheckCommandAllowlistRequiresMatch(t *testing.T) {
	g := New(Policy{CommandAllowlist: []string{"go test", "go build"}}, "/work")
	assert.True(t, g.Check("bash", "go test ./...", "").Allow)
	d := g.Check("bash", "rm file.go", "")
	assert.False(t, d.Allow)
	assert.Equal(t, ErrPolicyDenied, d.DenyCode)
}

func TestCheckNetworkCommandDeniedWhenNotAllowed(t *testing.T) {
	// spec.md §8 scenario 5: a network-denied run_cmd must surface
	// E_POLICY_DENIED, not E_TOOL_BLOCKED (that code is reserved for
	// disallowed_tools/allowed_tools mismatches).
	g := New(Policy{AllowNetwork: false}, "/work")
	d := g.Check("bash", "curl https://example.com", "")
	assert.False(t, d.Allow)
	assert.Equal(t, ErrPolicyDenied, d.DenyCode)
}

func TestCheckNetworkCommandAllowedWithConfirmation(t *testing.T) {
	g := New(Policy{AllowNetwork: true, ConfirmExec: true}, "/work")
	d := g.Check("bash", "curl https://example.com", "")
	assert.True(t, d.Allow)
	assert.True(t, d.RequiresConfirmation)
}

func TestCheckPrivilegeEscalationDeniedAboveThreshold(t *testing.T) {
	g := New(Policy{RiskThreshold: RiskHigh}, "/work")
	d := g.Check("bash", "sudo rm file", "")
	assert.False(t, d.Allow)
	assert.Equal(t, ErrPolicyDenied, d.DenyCode)
}

func TestCheckPrivilegeEscalationAllowedWithConfirmationAtThreshold(t *testing.T) {
	g := New(Policy{RiskThreshold: RiskCritical}, "/work")
	d := g.Check("bash", "sudo apt update", "")
	assert.True(t, d.Allow)
	assert.True(t, d.RequiresConfirmation)
}

func TestCheckPathOutsideWorkspaceDenied(t *testing.T) {
	g := New(Policy{}, "/work")
	d := g.Check("write", "", "../outside.txt")
	assert.False(t, d.Allow)
	assert.Equal(t, ErrPolicyDenied, d.DenyCode)
}

func TestCheckPathRulesDenyOverridesDefaultAllow(t *testing.T) {
	g := New(Policy{PathRules: []PathRule{{Glob: "secrets/*", Allow: false}}}, "/work")
	d := g.Check("write", "", "secrets/api_key.txt")
	assert.False(t, d.Allow)
	assert.Equal(t, ErrPolicyDenied, d.DenyCode)
}

func TestCheckWriteRequiresConfirmation(t *testing.T) {
	g := New(Policy{ConfirmWrite: true}, "/work")
	d := g.Check("write", "", "a.go")
	assert.True(t, d.Allow)
	assert.True(t, d.RequiresConfirmation)
}

func TestRedactCommandMasksInlineSecrets(t *testing.T) {
	out := RedactCommand("curl --token=abc123 https://example.com")
	assert.Contains(t, out, "--token=[REDACTED]")
	assert.NotContains(t, out, "abc123")
}
