// Copyright 2025 James Ross
package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/incontrol/trust-kernel/internal/manifest"
)

func TestOrgDenyBeatsUserAllow(t *testing.T) {
	e := NewEngine()
	e.SetPolicy(SourceOrganization, &Document{Tools: &ToolsSection{Deny: []string{"shell-*"}}})
	e.SetPolicy(SourceUser, &Document{Tools: &ToolsSection{Allow: []string{"shell-exec"}}})

	r := e.EvaluateTool("shell-exec")
	assert.Equal(t, DecisionDeny, r.Decision)
	assert.Equal(t, SourceOrganization, r.Source)
}

func TestTrustedAuthorBypass(t *testing.T) {
	e := NewEngine()
	e.SetPolicy(SourceOrganization, &Document{Plugins: &PluginsSection{TrustedAuthors: []string{"Corp"}}})

	r := e.EvaluatePlugin("p", "Corp", manifest.RiskReadOnly)
	assert.Equal(t, DecisionAllow, r.Decision)
	assert.Contains(t, r.Reason, "trusted")
}

func TestDisabledKillSwitchDoesNotOverrideEarlierAllow(t *testing.T) {
	e := NewEngine()
	disabled := false
	e.SetPolicy(SourceOrganization, &Document{Plugins: &PluginsSection{
		Enabled: &disabled,
		Allow:   []string{"my-plugin"},
	}})

	r := e.EvaluatePlugin("my-plugin", "", manifest.RiskReadOnly)
	assert.Equal(t, DecisionAllow, r.Decision)
	assert.Contains(t, r.Reason, "allow")
}

func TestDisabledKillSwitchDeniesUnmatchedPlugin(t *testing.T) {
	e := NewEngine()
	disabled := false
	e.SetPolicy(SourceOrganization, &Document{Plugins: &PluginsSection{
		Enabled: &disabled,
	}})

	r := e.EvaluatePlugin("other-plugin", "", manifest.RiskReadOnly)
	assert.Equal(t, DecisionDeny, r.Decision)
	assert.Contains(t, r.Reason, "disabled")
}

func TestRiskCapDenies(t *testing.T) {
	e := NewEngine()
	e.SetPolicy(SourceOrganization, &Document{Plugins: &PluginsSection{MaxRiskLevel: manifest.RiskLocalMutation}})

	r := e.EvaluatePlugin("p", "", manifest.RiskNetwork)
	assert.Equal(t, DecisionDeny, r.Decision)
}

func TestDomainSubdomainBlock(t *testing.T) {
	e := NewEngine()
	e.SetPolicy(SourceOrganization, &Document{Connectivity: &ConnectivitySection{BlockedDomains: []string{"blocked.com"}}})

	r := e.EvaluateDomain("api.blocked.com")
	assert.Equal(t, DecisionDeny, r.Decision)
}

func TestOrgLockAppliesDefaultWhenNoMatch(t *testing.T) {
	e := NewEngine()
	e.SetPolicy(SourceOrganization, &Document{
		Locked: true,
		Tools:  &ToolsSection{Default: DecisionDeny},
	})

	r := e.EvaluateTool("anything-unmatched")
	assert.Equal(t, DecisionDeny, r.Decision)
	assert.Equal(t, SourceOrganization, r.Source)
}

func TestDeterministicPolicyRepeatedCallsIdentical(t *testing.T) {
	e := NewEngine()
	e.SetPolicy(SourceUser, &Document{Tools: &ToolsSection{Allow: []string{"tool-a"}}})

	r1 := e.EvaluateTool("tool-a")
	r2 := e.EvaluateTool("tool-a")
	assert.Equal(t, r1.Decision, r2.Decision)
	assert.Equal(t, r1.Source, r2.Source)
	assert.Equal(t, r1.Reason, r2.Reason)
}

func TestClearPoliciesResetsToDefault(t *testing.T) {
	e := NewEngine()
	e.SetPolicy(SourceOrganization, &Document{Tools: &ToolsSection{Deny: []string{"*"}}})
	e.ClearPolicies()

	r := e.EvaluateTool("anything")
	assert.Equal(t, DecisionAllow, r.Decision)
	assert.Equal(t, SourceDefault, r.Source)
}

func TestGlobPatternMatching(t *testing.T) {
	assert.True(t, matchPattern("shell-*", "shell-exec"))
	assert.True(t, matchPattern("file-?", "file-a"))
	assert.False(t, matchPattern("file-?", "file-ab"))
	assert.True(t, matchPattern("exact", "exact"))
	assert.False(t, matchPattern("exact", "other"))
}

func TestMemoryPolicyMergeBooleanFalseWins(t *testing.T) {
	e := NewEngine()
	disabled := false
	e.SetPolicy(SourceOrganization, &Document{Memory: &MemorySection{AllowExport: &disabled}})
	e.SetPolicy(SourceUser, &Document{Memory: &MemorySection{}})

	merged := e.EvaluateMemoryPolicy()
	assert.False(t, merged.AllowExport)
}

func TestMemoryPolicyMergeMinimumPositiveMaxWins(t *testing.T) {
	e := NewEngine()
	e.SetPolicy(SourceOrganization, &Document{Memory: &MemorySection{MaxMemories: 500}})
	e.SetPolicy(SourceUser, &Document{Memory: &MemorySection{MaxMemories: 100}})

	merged := e.EvaluateMemoryPolicy()
	assert.Equal(t, 100, merged.MaxMemories)
}

func TestConnectivityPolicyBlockedDomainsUnion(t *testing.T) {
	e := NewEngine()
	e.SetPolicy(SourceOrganization, &Document{Connectivity: &ConnectivitySection{BlockedDomains: []string{"a.com"}}})
	e.SetPolicy(SourceUser, &Document{Connectivity: &ConnectivitySection{BlockedDomains: []string{"b.com"}}})

	merged := e.EvaluateConnectivityPolicy()
	assert.ElementsMatch(t, []string{"a.com", "b.com"}, merged.BlockedDomains)
}

func TestEvaluationAuditLogRecorded(t *testing.T) {
	e := NewEngine()
	e.EvaluateTool("x")
	e.EvaluateTool("y")

	entries := e.GetAuditLog()
	require.Len(t, entries, 2)

	e.ClearAuditLog()
	assert.Empty(t, e.GetAuditLog())
}
