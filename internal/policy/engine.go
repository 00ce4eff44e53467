// Copyright 2025 James Ross
package policy

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/incontrol/trust-kernel/internal/kernelevents"
	"github.com/incontrol/trust-kernel/internal/manifest"
	"github.com/incontrol/trust-kernel/internal/obs"
)

const defaultAuditCap = 1000

// Engine is the kernel's hierarchical PolicyEngine: deterministic
// evaluation of organization/team/user/session rules over tools, plugins,
// memory, connectivity, and updates. Read-heavy; a single mutex guards
// short evaluation paths.
type Engine struct {
	mu          sync.RWMutex
	docs        map[Source]*Document
	auditLog    []EvaluationAuditEntry
	auditCap    int
	broker      *kernelevents.Broker
	logger      *zap.Logger
	metrics     *obs.Metrics
}

// EvaluationAuditEntry is the engine's own diagnostic log, distinct from
// the kernel-wide auditlog.Log used for plugin/mediator activity.
type EvaluationAuditEntry struct {
	Subject   string
	Kind      string
	Result    EvaluationResult
	Timestamp time.Time
}

// Option configures an Engine at construction time.
type Option func(*Engine)

func WithBroker(b *kernelevents.Broker) Option { return func(e *Engine) { e.broker = b } }
func WithLogger(l *zap.Logger) Option          { return func(e *Engine) { e.logger = l } }
func WithMetrics(m *obs.Metrics) Option        { return func(e *Engine) { e.metrics = m } }
func WithAuditCap(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.auditCap = n
		}
	}
}

// NewEngine constructs an empty Engine with no policy documents set.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		docs:     make(map[Source]*Document),
		auditCap: defaultAuditCap,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetPolicy installs document at source, replacing any previous document
// for that source.
func (e *Engine) SetPolicy(source Source, doc *Document) {
	e.mu.Lock()
	e.docs[source] = doc
	e.mu.Unlock()
	e.publish(kernelevents.PolicyUpdated, map[string]interface{}{"source": string(source)})
}

// ClearPolicies removes every installed policy document.
func (e *Engine) ClearPolicies() {
	e.mu.Lock()
	e.docs = make(map[Source]*Document)
	e.mu.Unlock()
	e.publish(kernelevents.PolicyUpdated, map[string]interface{}{"source": "all", "cleared": true})
}

// GetAuditLog returns a snapshot of the engine's own diagnostic audit log.
func (e *Engine) GetAuditLog() []EvaluationAuditEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]EvaluationAuditEntry, len(e.auditLog))
	copy(out, e.auditLog)
	return out
}

// ClearAuditLog empties the engine's own diagnostic audit log.
func (e *Engine) ClearAuditLog() {
	e.mu.Lock()
	e.auditLog = nil
	e.mu.Unlock()
}

func (e *Engine) recordAudit(subject, kind string, result EvaluationResult) {
	e.mu.Lock()
	e.auditLog = append(e.auditLog, EvaluationAuditEntry{Subject: subject, Kind: kind, Result: result, Timestamp: result.EvaluatedAt})
	if len(e.auditLog) > e.auditCap {
		e.auditLog = e.auditLog[len(e.auditLog)-e.auditCap:]
	}
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.PolicyEvaluations.WithLabelValues(string(result.Decision)).Inc()
		if result.Decision == DecisionDeny {
			e.metrics.PolicyDenials.Inc()
		}
	}
	e.publish(kernelevents.PolicyEvaluated, map[string]interface{}{
		"subject": subject, "kind": kind, "decision": string(result.Decision), "source": string(result.Source),
	})
}

func (e *Engine) publish(kind kernelevents.Kind, data map[string]interface{}) {
	if e.broker != nil {
		e.broker.Publish(kernelevents.Event{Kind: kind, Data: data})
	}
}

func result(decision Decision, reason string, source Source, ruleID string, constraints map[string]interface{}) EvaluationResult {
	return EvaluationResult{
		Decision:    decision,
		Reason:      reason,
		Source:      source,
		RuleID:      ruleID,
		Constraints: constraints,
		EvaluatedAt: time.Now().UTC(),
	}
}

// docsSnapshot returns a stable, ordered snapshot of installed documents,
// taken once under lock so evaluation does not depend on concurrent
// mutation of the engine.
func (e *Engine) docsSnapshot() map[Source]*Document {
	e.mu.RLock()
	defer e.mu.RUnlock()
	snap := make(map[Source]*Document, len(e.docs))
	for k, v := range e.docs {
		snap[k] = v
	}
	return snap
}

// EvaluateTool decides whether toolID may run: walk sources in fixed
// precedence order, return on the first positive category match.
func (e *Engine) EvaluateTool(toolID string) EvaluationResult {
	docs := e.docsSnapshot()

	for _, src := range evaluationOrder {
		doc, ok := docs[src]
		if !ok || doc.Tools == nil {
			if ok && src == SourceOrganization && doc.Locked {
				r := result(orDefault(doc.Default, DecisionAllow), "organization policy is locked with no tools section", src, "", nil)
				e.recordAudit(toolID, "tool", r)
				return r
			}
			continue
		}
		t := doc.Tools

		if pat, ok := matchAny(t.Deny, toolID); ok {
			r := result(DecisionDeny, "matched deny pattern "+pat, src, "", nil)
			e.recordAudit(toolID, "tool", r)
			return r
		}
		if pat, ok := matchAny(t.Allow, toolID); ok {
			r := result(DecisionAllow, "matched allow pattern "+pat, src, "", nil)
			e.recordAudit(toolID, "tool", r)
			return r
		}
		if pat, ok := matchAny(t.RequireApproval, toolID); ok {
			r := result(DecisionAllowWithApproval, "matched require_approval pattern "+pat, src, "", nil)
			e.recordAudit(toolID, "tool", r)
			return r
		}
		for _, rule := range t.Rules {
			if matchPattern(rule.Tool, toolID) {
				r := result(rule.Decision, orDefaultStr(rule.Reason, "matched rule "+rule.ID), src, rule.ID, rule.Constraints)
				e.recordAudit(toolID, "tool", r)
				return r
			}
		}

		if src == SourceOrganization && doc.Locked {
			r := result(orDefault(t.Default, DecisionAllow), "organization policy is locked; no match, applying org default", src, "", nil)
			e.recordAudit(toolID, "tool", r)
			return r
		}
	}

	r := result(DecisionAllow, "no policy source matched; applying global default", SourceDefault, "", nil)
	e.recordAudit(toolID, "tool", r)
	return r
}

// EvaluatePlugin decides whether pluginID may load or execute.
func (e *Engine) EvaluatePlugin(pluginID, author string, riskLevel manifest.RiskLevel) EvaluationResult {
	docs := e.docsSnapshot()

	for _, src := range evaluationOrder {
		doc, ok := docs[src]
		if !ok || doc.Plugins == nil {
			if ok && src == SourceOrganization && doc.Locked {
				r := result(orDefault(doc.Default, DecisionAllowWithApproval), "organization policy is locked with no plugins section", src, "", nil)
				e.recordAudit(pluginID, "plugin", r)
				return r
			}
			continue
		}
		p := doc.Plugins

		if pat, ok := matchAny(p.Deny, pluginID); ok {
			r := result(DecisionDeny, "matched deny pattern "+pat, src, "", nil)
			e.recordAudit(pluginID, "plugin", r)
			return r
		}
		if pat, ok := matchAny(p.Allow, pluginID); ok {
			r := result(DecisionAllow, "matched allow pattern "+pat, src, "", nil)
			e.recordAudit(pluginID, "plugin", r)
			return r
		}
		for _, rule := range p.Rules {
			if matchPattern(rule.Plugin, pluginID) {
				r := result(rule.Decision, orDefaultStr(rule.Reason, "matched rule "+rule.ID), src, rule.ID, nil)
				e.recordAudit(pluginID, "plugin", r)
				return r
			}
		}
		if author != "" {
			if _, ok := matchAny(p.TrustedAuthors, author); ok {
				r := result(DecisionAllow, "author "+author+" is trusted", src, "", nil)
				e.recordAudit(pluginID, "plugin", r)
				return r
			}
		}
		if p.Enabled != nil && !*p.Enabled {
			r := result(DecisionDeny, "plugins disabled by "+string(src), src, "", nil)
			e.recordAudit(pluginID, "plugin", r)
			return r
		}
		if p.MaxRiskLevel != "" && riskLevel != "" && p.MaxRiskLevel.Less(riskLevel) {
			r := result(DecisionDeny, "risk level "+string(riskLevel)+" exceeds max_risk_level "+string(p.MaxRiskLevel), src, "", nil)
			e.recordAudit(pluginID, "plugin", r)
			return r
		}

		if src == SourceOrganization && doc.Locked {
			r := result(orDefault(p.Default, DecisionAllowWithApproval), "organization policy is locked; no match, applying org default", src, "", nil)
			e.recordAudit(pluginID, "plugin", r)
			return r
		}
	}

	r := result(DecisionAllowWithApproval, "no policy source matched; applying global default", SourceDefault, "", nil)
	e.recordAudit(pluginID, "plugin", r)
	return r
}

// EvaluateDomain decides whether host may be contacted: connectivity's
// allowed/blocked_domains lists, with mandatory subdomain matching and
// optional allow-list-only mode.
func (e *Engine) EvaluateDomain(host string) EvaluationResult {
	docs := e.docsSnapshot()

	for _, src := range evaluationOrder {
		doc, ok := docs[src]
		if !ok || doc.Connectivity == nil {
			if ok && src == SourceOrganization && doc.Locked {
				r := result(orDefault(doc.Default, DecisionAllow), "organization policy is locked with no connectivity section", src, "", nil)
				e.recordAudit(host, "domain", r)
				return r
			}
			continue
		}
		c := doc.Connectivity

		if pat, ok := matchAnyDomain(c.BlockedDomains, host); ok {
			r := result(DecisionDeny, "matched blocked domain "+pat, src, "", nil)
			e.recordAudit(host, "domain", r)
			return r
		}
		if len(c.AllowedDomains) > 0 {
			if pat, ok := matchAnyDomain(c.AllowedDomains, host); ok {
				r := result(DecisionAllow, "matched allowed domain "+pat, src, "", nil)
				e.recordAudit(host, "domain", r)
				return r
			}
			r := result(DecisionDeny, "allow-list is active and host matched no allowed domain", src, "", nil)
			e.recordAudit(host, "domain", r)
			return r
		}

		if src == SourceOrganization && doc.Locked {
			r := result(orDefault(doc.Default, DecisionAllow), "organization policy is locked; no match, applying org default", src, "", nil)
			e.recordAudit(host, "domain", r)
			return r
		}
	}

	r := result(DecisionAllow, "no policy source matched; applying global default", SourceDefault, "", nil)
	e.recordAudit(host, "domain", r)
	return r
}

func orDefault(d Decision, fallback Decision) Decision {
	if d == "" {
		return fallback
	}
	return d
}

func orDefaultStr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
