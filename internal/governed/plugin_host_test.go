// Copyright 2025 James Ross
package governed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/incontrol/trust-kernel/internal/auditlog"
	"github.com/incontrol/trust-kernel/internal/host"
	"github.com/incontrol/trust-kernel/internal/kernelerrors"
	"github.com/incontrol/trust-kernel/internal/kernelevents"
	"github.com/incontrol/trust-kernel/internal/manifest"
	"github.com/incontrol/trust-kernel/internal/policy"
	"github.com/incontrol/trust-kernel/internal/sandbox"
)

type nopInstance struct{}

func (nopInstance) Initialize(pctx *sandbox.PluginContext) error { return nil }
func (nopInstance) Execute(ctx context.Context, actionID string, parameters map[string]interface{}, pctx *sandbox.PluginContext) (interface{}, error) {
	return "ok", nil
}
func (nopInstance) Capabilities() []manifest.Capability { return nil }

func governedManifest(id string) *manifest.Manifest {
	return &manifest.Manifest{
		ID: id, Version: "1.0.0", Name: "Test", Author: "X",
		Description: "test plugin", RiskLevel: manifest.RiskReadOnly,
	}
}

func newGovernedHost(t *testing.T, engine *policy.Engine, broker *kernelevents.Broker) *PluginHost {
	t.Helper()
	audit := auditlog.New(100)
	sb := sandbox.New(audit, t.TempDir())
	return NewPluginHost(host.New(sb, audit), engine, broker)
}

func TestApprovalNeverOverridesDeny(t *testing.T) {
	engine := policy.NewEngine()
	engine.SetPolicy(policy.SourceOrganization, &policy.Document{Plugins: &policy.PluginsSection{Deny: []string{"evil-*"}}})
	g := newGovernedHost(t, engine, nil)

	g.Approve("evil-plugin", "operator")

	check := g.CheckPolicy("evil-plugin", "", manifest.RiskReadOnly)
	assert.False(t, check.CanLoad, "a session approval must never make a denied plugin loadable")
	assert.Equal(t, policy.DecisionDeny, check.Decision)
}

func TestApprovalRaisesAllowWithApprovalToLoadable(t *testing.T) {
	engine := policy.NewEngine()
	g := newGovernedHost(t, engine, nil)
	m := governedManifest("com.x.pending")

	check := g.CheckPolicy(m.ID, "", m.RiskLevel)
	require.Equal(t, policy.DecisionAllowWithApproval, check.Decision)
	require.True(t, check.RequiresApproval)
	require.False(t, check.CanLoad)

	g.Approve(m.ID, "operator")
	check = g.CheckPolicy(m.ID, "", m.RiskLevel)
	assert.True(t, check.CanLoad)
	assert.False(t, check.RequiresApproval)
}

func TestLoadDeniedReturnsPolicyBlockedAndEmitsEvent(t *testing.T) {
	engine := policy.NewEngine()
	engine.SetPolicy(policy.SourceOrganization, &policy.Document{Plugins: &policy.PluginsSection{Deny: []string{"com.x.bad"}}})
	broker := kernelevents.New()
	var events []kernelevents.Event
	broker.Subscribe(func(e kernelevents.Event) { events = append(events, e) })

	g := newGovernedHost(t, engine, broker)
	_, err := g.Load(governedManifest("com.x.bad"), "X", nopInstance{})

	var blocked *kernelerrors.PolicyBlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, "organization", blocked.Source)

	var kinds []kernelevents.Kind
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	assert.Contains(t, kinds, kernelevents.PluginBlocked)
}

func TestLoadWithoutApprovalReturnsApprovalRequired(t *testing.T) {
	engine := policy.NewEngine()
	broker := kernelevents.New()
	var kinds []kernelevents.Kind
	broker.Subscribe(func(e kernelevents.Event) { kinds = append(kinds, e.Kind) })

	g := newGovernedHost(t, engine, broker)
	_, err := g.Load(governedManifest("com.x.pending"), "X", nopInstance{})

	var approval *kernelerrors.ApprovalRequiredError
	require.ErrorAs(t, err, &approval)
	assert.Contains(t, kinds, kernelevents.ApprovalRequired)
}

func TestRiskCapBlocksLoad(t *testing.T) {
	engine := policy.NewEngine()
	engine.SetPolicy(policy.SourceOrganization, &policy.Document{Plugins: &policy.PluginsSection{MaxRiskLevel: manifest.RiskLocalMutation}})
	g := newGovernedHost(t, engine, nil)

	m := governedManifest("com.x.networked")
	m.RiskLevel = manifest.RiskNetwork
	m.Permissions = []manifest.Permission{{Type: manifest.PermissionNetwork, Access: manifest.AccessRead, Scope: "https://api.example.com"}}
	m.NetworkIntent = &manifest.NetworkIntent{Endpoints: []string{"https://api.example.com/v1"}}

	_, err := g.Load(m, "X", nopInstance{})
	var blocked *kernelerrors.PolicyBlockedError
	require.ErrorAs(t, err, &blocked)
}

func TestExecuteReEvaluatesPolicyAfterLoad(t *testing.T) {
	engine := policy.NewEngine()
	engine.SetPolicy(policy.SourceOrganization, &policy.Document{Plugins: &policy.PluginsSection{Allow: []string{"com.x.flip"}}})
	g := newGovernedHost(t, engine, nil)
	m := governedManifest("com.x.flip")

	_, err := g.Load(m, "X", nopInstance{})
	require.NoError(t, err)

	res, err := g.Execute(context.Background(), m, "X", "do", nil)
	require.NoError(t, err)
	assert.True(t, res.Success)

	engine.SetPolicy(policy.SourceOrganization, &policy.Document{Plugins: &policy.PluginsSection{Deny: []string{"com.x.flip"}}})
	_, err = g.Execute(context.Background(), m, "X", "do", nil)
	var blocked *kernelerrors.PolicyBlockedError
	require.ErrorAs(t, err, &blocked)
}
