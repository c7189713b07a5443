// Package policy implements the policy gate from spec.md §4.F: it turns
// the safety intent already embedded as prose in the teacher's system
// prompt ("NEVER force-push...", "check with the user before...") into an
// enforced, testable decision function.
package policy

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Risk is an ordered risk level; higher values are more dangerous.
type Risk int

const (
	RiskSafe Risk = iota
	RiskLow
	RiskMedium
	RiskHigh
	RiskCritical
)

func (r Risk) String() string {
	switch r {
	case RiskSafe:
		return "safe"
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	case RiskCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// UnmarshalYAML accepts risk_threshold as its string name ("medium") rather
// than the bare ordinal, so config.yaml stays readable.
func (r *Risk) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "safe":
		*r = RiskSafe
	case "low":
		*r = RiskLow
	case "medium":
		*r = RiskMedium
	case "high":
		*r = RiskHigh
	case "critical":
		*r = RiskCritical
	default:
		return fmt.Errorf("unknown risk level %q", s)
	}
	return nil
}

// PathRule is a glob pattern and whether it allows or denies a match.
type PathRule struct {
	Glob  string `yaml:"glob"`
	Allow bool   `yaml:"allow"`
}

// Policy configures the gate. It is loaded as part of config (§6) via
// gopkg.in/yaml.v3.
type Policy struct {
	AllowNetwork     bool       `yaml:"allow_network"`
	ConfirmWrite     bool       `yaml:"confirm_write"`
	ConfirmExec      bool       `yaml:"confirm_exec"`
	AllowedTools     []string   `yaml:"allowed_tools"`
	DisallowedTools  []string   `yaml:"disallowed_tools"`
	PathRules        []PathRule `yaml:"path_rules"`
	CommandDenylist  []string   `yaml:"command_denylist"`
	CommandAllowlist []string   `yaml:"command_allowlist"`
	RiskThreshold    Risk       `yaml:"risk_threshold"`
}

// Default returns a conservative policy matching the teacher's system
// prompt's existing git-safety rules: network commands are denied
// (AllowNetwork is false), writes and exec both require confirmation.
func Default() Policy {
	return Policy{
		ConfirmWrite: true,
		ConfirmExec:  true,
		CommandDenylist: []string{
			"rm -rf /", "mkfs", "dd if=", ":(){ :|:& };:",
		},
		RiskThreshold: RiskCritical,
	}
}

// Decision is the result of checking one tool call against a Policy.
type Decision struct {
	Allow                bool
	Reason               string
	RequiresConfirmation bool
	Risk                 Risk
	// DenyCode distinguishes why Allow is false: ErrToolBlocked for a
	// disallowed/not-allowed tool name, ErrPolicyDenied for every other
	// cause (path rules, command denylist/allowlist, network, risk
	// threshold). Empty when Allow is true.
	DenyCode string
}

// Deny codes the gate uses, matching spec.md §4.F/§8's error taxonomy:
// E_TOOL_BLOCKED is reserved for disallowed_tools/allowed_tools mismatches;
// every other policy denial (network, path rules, command lists, risk
// threshold) surfaces as E_POLICY_DENIED.
const (
	ErrToolBlocked  = "E_TOOL_BLOCKED"
	ErrPolicyDenied = "E_POLICY_DENIED"
)

// networkCommands are heuristically detected as reaching the network, per
// spec.md §4.F and the teacher's own "Git workflow" prose (push/PR/gh are
// network actions the teacher already calls out as needing confirmation).
var networkCommands = []string{
	"curl", "wget", "git clone", "git push", "git fetch", "git pull",
	"ssh", "scp", "nc ", "ncat", "gh pr create", "gh api", "npm publish",
	"pip install", "go get",
}

// privilegeCommands are heuristically detected as privilege escalation or
// irreversible destructive operations.
var privilegeCommands = []string{
	"sudo", "chmod 777", "chown -R", "rm -rf /", "rm -rf ~", "mkfs",
	"dd if=", "git reset --hard", "git push --force", "git push -f",
	"--no-verify",
}

// Gate evaluates tool calls against a Policy.
type Gate struct {
	policy  Policy
	workDir string
}

// New constructs a Gate for the given workspace root.
func New(p Policy, workDir string) *Gate {
	return &Gate{policy: p, workDir: workDir}
}

// Check evaluates a tool call. name is the tool name; for run_cmd-style
// tools, command is the literal shell command; for write/edit-style tools,
// path is the target file path (relative to workDir or absolute).
func (g *Gate) Check(name, command, path string) Decision {
	p := g.policy

	for _, d := range p.DisallowedTools {
		if d == name {
			return Decision{Allow: false, Reason: fmt.Sprintf("tool %q is disallowed by policy", name), Risk: RiskHigh, DenyCode: ErrToolBlocked}
		}
	}
	if len(p.AllowedTools) > 0 && !contains(p.AllowedTools, name) {
		return Decision{Allow: false, Reason: fmt.Sprintf("tool %q is not in the allowed_tools list", name), Risk: RiskMedium, DenyCode: ErrToolBlocked}
	}

	if command != "" {
		return g.checkCommand(command)
	}
	if path != "" {
		return g.checkPath(path)
	}

	return Decision{Allow: true, Risk: RiskSafe}
}

func (g *Gate) checkCommand(command string) Decision {
	p := g.policy
	lower := strings.ToLower(command)

	for _, pat := range p.CommandDenylist {
		if strings.Contains(lower, strings.ToLower(pat)) {
			return Decision{Allow: false, Reason: fmt.Sprintf("command matches denylist pattern %q", pat), Risk: RiskCritical, DenyCode: ErrPolicyDenied}
		}
	}
	if len(p.CommandAllowlist) > 0 {
		matched := false
		for _, pat := range p.CommandAllowlist {
			if strings.Contains(lower, strings.ToLower(pat)) {
				matched = true
				break
			}
		}
		if !matched {
			return Decision{Allow: false, Reason: "command does not match any command_allowlist entry", Risk: RiskMedium, DenyCode: ErrPolicyDenied}
		}
	}

	for _, pat := range privilegeCommands {
		if strings.Contains(lower, strings.ToLower(pat)) {
			risk := RiskCritical
			if risk > p.RiskThreshold {
				return Decision{Allow: false, Reason: fmt.Sprintf("command %q requires elevated privileges or is irreversible", pat), Risk: risk, DenyCode: ErrPolicyDenied}
			}
			return Decision{Allow: true, RequiresConfirmation: true, Reason: fmt.Sprintf("command %q is high-risk; confirmation required", pat), Risk: risk}
		}
	}

	for _, pat := range networkCommands {
		if strings.Contains(lower, strings.ToLower(pat)) {
			if !p.AllowNetwork {
				return Decision{Allow: false, Reason: fmt.Sprintf("command %q accesses the network and allow_network is false", pat), Risk: RiskMedium, DenyCode: ErrPolicyDenied}
			}
			return Decision{Allow: true, RequiresConfirmation: p.ConfirmExec, Reason: fmt.Sprintf("command %q accesses the network", pat), Risk: RiskMedium}
		}
	}

	if p.ConfirmExec {
		return Decision{Allow: true, RequiresConfirmation: true, Reason: "run_cmd requires confirmation per policy", Risk: RiskLow}
	}
	return Decision{Allow: true, Risk: RiskLow}
}

func (g *Gate) checkPath(path string) Decision {
	p := g.policy

	abs, err := resolvePath(g.workDir, path)
	if err != nil {
		return Decision{Allow: false, Reason: err.Error(), Risk: RiskHigh, DenyCode: ErrPolicyDenied}
	}

	rel, err := filepath.Rel(g.workDir, abs)
	if err != nil {
		rel = abs
	}

	allowed := true
	for _, rule := range p.PathRules {
		matched, err := filepath.Match(rule.Glob, rel)
		if err == nil && matched {
			allowed = rule.Allow
		}
	}
	if !allowed {
		return Decision{Allow: false, Reason: fmt.Sprintf("path %q denied by path_rules", rel), Risk: RiskMedium, DenyCode: ErrPolicyDenied}
	}

	if p.ConfirmWrite {
		return Decision{Allow: true, RequiresConfirmation: true, Reason: "write/patch requires confirmation per policy", Risk: RiskLow}
	}
	return Decision{Allow: true, Risk: RiskLow}
}

func resolvePath(workDir, requested string) (string, error) {
	if filepath.IsAbs(requested) {
		rel, err := filepath.Rel(workDir, requested)
		if err != nil || strings.HasPrefix(rel, "..") {
			return "", fmt.Errorf("path %q is outside the working directory", requested)
		}
		return filepath.Clean(requested), nil
	}
	abs := filepath.Clean(filepath.Join(workDir, requested))
	rel, err := filepath.Rel(workDir, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %q is outside the working directory", requested)
	}
	return abs, nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// redactPattern matches sensitive-looking map keys so audit logging can
// redact values before they are written — kept here (rather than in
// audit/) since the policy gate is the first place a raw command string
// might contain a secret (e.g. an inline API key in a curl command).
var redactPattern = regexp.MustCompile(`(?i)(token|secret|key|password|authorization)`)

// RedactCommand masks inline tokens in a logged command string for
// anything that looks like `--token=...` or `KEY=...`, so audit records
// don't leak credentials typed directly on the command line.
func RedactCommand(command string) string {
	fields := strings.Fields(command)
	for i, f := range fields {
		if eq := strings.IndexByte(f, '='); eq > 0 {
			key := f[:eq]
			if redactPattern.MatchString(key) {
				fields[i] = key + "=[REDACTED]"
			}
		}
	}
	return strings.Join(fields, " ")
}

// MarshalDecision renders a Decision as the JSON shape audit records use.
func MarshalDecision(d Decision) json.RawMessage {
	b, _ := json.Marshal(struct {
		Allow                bool   `json:"allow"`
		Reason               string `json:"reason"`
		RequiresConfirmation bool   `json:"requires_confirmation"`
		Risk                 string `json:"risk"`
		DenyCode             string `json:"deny_code,omitempty"`
	}{d.Allow, d.Reason, d.RequiresConfirmation, d.Risk.String(), d.DenyCode})
	return b
}
