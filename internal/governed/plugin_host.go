// Copyright 2025 James Ross
package governed

import (
	"context"
	"sync"

	"github.com/incontrol/trust-kernel/internal/host"
	"github.com/incontrol/trust-kernel/internal/kernelerrors"
	"github.com/incontrol/trust-kernel/internal/kernelevents"
	"github.com/incontrol/trust-kernel/internal/manifest"
	"github.com/incontrol/trust-kernel/internal/policy"
)

// PluginHost wraps host.Host and consults the PolicyEngine on both load
// and execute. Session approvals raise but never lower the effective
// decision: they convert AllowWithApproval into Allow, never Deny.
type PluginHost struct {
	host   *host.Host
	engine *policy.Engine
	broker *kernelevents.Broker

	mu        sync.Mutex
	approvals map[string]approval
}

// NewPluginHost wraps h with policy checks backed by engine.
func NewPluginHost(h *host.Host, engine *policy.Engine, broker *kernelevents.Broker) *PluginHost {
	return &PluginHost{host: h, engine: engine, broker: broker, approvals: make(map[string]approval)}
}

// CheckPolicy returns whether pluginID may currently be loaded.
func (g *PluginHost) CheckPolicy(pluginID, author string, riskLevel manifest.RiskLevel) CheckPolicyResult {
	r := g.engine.EvaluatePlugin(pluginID, author, riskLevel)
	return g.toCheckResult(pluginID, r)
}

func (g *PluginHost) toCheckResult(pluginID string, r policy.EvaluationResult) CheckPolicyResult {
	switch r.Decision {
	case policy.DecisionDeny:
		return CheckPolicyResult{CanLoad: false, Decision: r.Decision, Source: r.Source, Reason: r.Reason}
	case policy.DecisionAllowWithApproval:
		_, approved := g.hasApproval(pluginID)
		return CheckPolicyResult{CanLoad: approved, Decision: r.Decision, Source: r.Source, RequiresApproval: !approved, Reason: r.Reason}
	default:
		return CheckPolicyResult{CanLoad: true, Decision: r.Decision, Source: r.Source, Reason: r.Reason}
	}
}

func (g *PluginHost) hasApproval(pluginID string) (approval, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	a, ok := g.approvals[pluginID]
	return a, ok
}

// Approve records a session-scoped approval for pluginID. Approvals are
// process-scoped and evaporate on restart; the kernel never persists them.
func (g *PluginHost) Approve(pluginID, actor string) {
	g.mu.Lock()
	g.approvals[pluginID] = approval{actor: actor, grantedAt: nowUTC()}
	g.mu.Unlock()
}

// Load rejects with PolicyBlockedError if denied, or ApprovalRequiredError
// if AllowWithApproval and no prior approval exists; otherwise delegates
// to the underlying host.
func (g *PluginHost) Load(m *manifest.Manifest, author string, instance host.PluginInstance) (host.LoadResult, error) {
	check := g.CheckPolicy(m.ID, author, m.RiskLevel)
	if !check.CanLoad {
		g.publish(kernelevents.PluginBlocked, map[string]interface{}{"plugin_id": m.ID, "source": string(check.Source), "reason": check.Reason})
		if check.RequiresApproval {
			g.publish(kernelevents.ApprovalRequired, map[string]interface{}{"plugin_id": m.ID, "author": author})
			return host.LoadResult{}, kernelerrors.NewApprovalRequiredError(m.ID)
		}
		return host.LoadResult{}, kernelerrors.NewPolicyBlockedError(string(check.Source), check.Reason, "")
	}
	return g.host.Load(m, instance), nil
}

// Execute re-evaluates policy before delegating, since policy may change
// between load and execute. ctx is forwarded to host.Execute so callers
// can cancel a mid-flight action.
func (g *PluginHost) Execute(ctx context.Context, m *manifest.Manifest, author string, actionID string, parameters map[string]interface{}) (host.ExecutionResult, error) {
	check := g.CheckPolicy(m.ID, author, m.RiskLevel)
	if !check.CanLoad {
		g.publish(kernelevents.PluginBlocked, map[string]interface{}{"plugin_id": m.ID, "source": string(check.Source), "reason": check.Reason})
		if check.RequiresApproval {
			return host.ExecutionResult{}, kernelerrors.NewApprovalRequiredError(m.ID)
		}
		return host.ExecutionResult{}, kernelerrors.NewPolicyBlockedError(string(check.Source), check.Reason, "")
	}
	return g.host.Execute(ctx, m.ID, actionID, parameters)
}

func (g *PluginHost) publish(kind kernelevents.Kind, data map[string]interface{}) {
	if g.broker != nil {
		g.broker.Publish(kernelevents.Event{Kind: kind, Data: data})
	}
}
