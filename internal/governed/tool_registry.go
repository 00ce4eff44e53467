// Copyright 2025 James Ross
package governed

import (
	"sync"

	"github.com/incontrol/trust-kernel/internal/kernelerrors"
	"github.com/incontrol/trust-kernel/internal/kernelevents"
	"github.com/incontrol/trust-kernel/internal/policy"
)

// ToolRegistry mirrors PluginHost for first-party tools: a ToolResult is
// only returned when the policy decision is Allow or AllowWithConstraints,
// or when a session approval covers AllowWithApproval.
type ToolRegistry struct {
	engine *policy.Engine
	broker *kernelevents.Broker

	mu        sync.Mutex
	approvals map[string]approval
}

// NewToolRegistry wires a ToolRegistry to engine.
func NewToolRegistry(engine *policy.Engine, broker *kernelevents.Broker) *ToolRegistry {
	return &ToolRegistry{engine: engine, broker: broker, approvals: make(map[string]approval)}
}

// CheckToolPolicy evaluates toolID against the policy engine.
func (g *ToolRegistry) CheckToolPolicy(toolID string) CheckPolicyResult {
	r := g.engine.EvaluateTool(toolID)
	switch r.Decision {
	case policy.DecisionDeny:
		return CheckPolicyResult{CanLoad: false, Decision: r.Decision, Source: r.Source, Reason: r.Reason}
	case policy.DecisionAllowWithApproval:
		_, approved := g.hasApproval(toolID)
		return CheckPolicyResult{CanLoad: approved, Decision: r.Decision, Source: r.Source, RequiresApproval: !approved, Reason: r.Reason}
	default:
		return CheckPolicyResult{CanLoad: true, Decision: r.Decision, Source: r.Source, Reason: r.Reason}
	}
}

func (g *ToolRegistry) hasApproval(toolID string) (approval, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	a, ok := g.approvals[toolID]
	return a, ok
}

// GrantSessionApproval records a session-scoped approval for toolID.
func (g *ToolRegistry) GrantSessionApproval(toolID, actor string) {
	g.mu.Lock()
	g.approvals[toolID] = approval{actor: actor, grantedAt: nowUTC()}
	g.mu.Unlock()
}

// RevokeSessionApproval removes a previously granted approval.
func (g *ToolRegistry) RevokeSessionApproval(toolID string) {
	g.mu.Lock()
	delete(g.approvals, toolID)
	g.mu.Unlock()
}

// ClearSessionApprovals removes every granted approval.
func (g *ToolRegistry) ClearSessionApprovals() {
	g.mu.Lock()
	g.approvals = make(map[string]approval)
	g.mu.Unlock()
}

// Execute runs fn only when policy allows toolID, carrying the policy's
// constraints (if any) into fn so the tool can honor them.
func (g *ToolRegistry) Execute(toolID string, fn func(constraints map[string]interface{}) (interface{}, error)) (ToolResult, error) {
	r := g.engine.EvaluateTool(toolID)

	switch r.Decision {
	case policy.DecisionDeny:
		g.publish(kernelevents.ToolBlocked, map[string]interface{}{"tool_id": toolID, "source": string(r.Source), "reason": r.Reason})
		return ToolResult{}, kernelerrors.NewPolicyBlockedError(string(r.Source), r.Reason, r.RuleID)
	case policy.DecisionAllowWithApproval:
		if _, approved := g.hasApproval(toolID); !approved {
			g.publish(kernelevents.ToolBlocked, map[string]interface{}{"tool_id": toolID, "source": string(r.Source), "reason": r.Reason})
			return ToolResult{}, kernelerrors.NewApprovalRequiredError(toolID)
		}
	}

	output, err := fn(r.Constraints)
	if err != nil {
		return ToolResult{}, err
	}
	return ToolResult{ToolID: toolID, Output: output, Constraints: r.Constraints}, nil
}

func (g *ToolRegistry) publish(kind kernelevents.Kind, data map[string]interface{}) {
	if g.broker != nil {
		g.broker.Publish(kernelevents.Event{Kind: kind, Data: data})
	}
}
