// Copyright 2025 James Ross
package governed

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/incontrol/trust-kernel/internal/auditlog"
	"github.com/incontrol/trust-kernel/internal/kernelerrors"
	"github.com/incontrol/trust-kernel/internal/kernelevents"
	"github.com/incontrol/trust-kernel/internal/policy"
)

// Memory is the policy-aware facade in front of the assistant's long-term
// memory store.
type Memory struct {
	engine *policy.Engine
	broker *kernelevents.Broker
	audit  *auditlog.Log

	mu    sync.Mutex
	items []MemoryItem
}

// MemoryOption configures a Memory facade at construction time.
type MemoryOption func(*Memory)

// WithMemoryAudit records a PermissionCheck audit entry for every remember
// request, permitted or not.
func WithMemoryAudit(log *auditlog.Log) MemoryOption {
	return func(m *Memory) { m.audit = log }
}

// NewMemory wires a Memory facade to engine with an empty store.
func NewMemory(engine *policy.Engine, broker *kernelevents.Broker, opts ...MemoryOption) *Memory {
	m := &Memory{engine: engine, broker: broker}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CheckPolicy reports the current memory policy's effective state.
func (g *Memory) CheckPolicy() MemoryPolicyResult {
	rules := g.engine.EvaluateMemoryPolicy()
	g.mu.Lock()
	count := len(g.items)
	g.mu.Unlock()

	atCapacity := rules.MaxMemories > 0 && count >= rules.MaxMemories
	canRemember := rules.Enabled && !atCapacity

	reason := ""
	if !rules.Enabled {
		reason = "memory is disabled by policy"
	} else if atCapacity {
		reason = "memory is at capacity"
	}

	return MemoryPolicyResult{
		CanRemember:          canRemember,
		CanExport:            rules.AllowExport,
		CanImport:            rules.AllowImport,
		AutoFormationAllowed: rules.AutoFormation,
		MemoryCount:          count,
		MaxMemories:          rules.MaxMemories,
		Reason:               reason,
	}
}

// IsCategoryAllowed reports whether category is not in the policy's
// excluded-categories set, case-insensitively.
func (g *Memory) IsCategoryAllowed(category string) bool {
	rules := g.engine.EvaluateMemoryPolicy()
	for _, c := range rules.ExcludeCategories {
		if strings.EqualFold(c, category) {
			return false
		}
	}
	return true
}

// RequestRemember evaluates an inferred-source remember request against
// policy, capacity, and category exclusion before returning a pending
// consent request.
func (g *Memory) RequestRemember(itemType, key, value, justification, category string, source MemorySource) (*PendingConsentRequest, error) {
	check := g.CheckPolicy()
	reason := ""
	switch {
	case !check.CanRemember:
		reason = check.Reason
	case category != "" && !g.IsCategoryAllowed(category):
		reason = fmt.Sprintf("category %q is excluded by policy", category)
	case source == SourceInferred && !check.AutoFormationAllowed:
		reason = "auto-formation is disabled by policy"
	}
	g.recordPermissionCheck(key, reason == "")
	if reason != "" {
		g.publish(reason, itemType, key)
		return nil, kernelerrors.NewPolicyBlockedError("memory", reason, "")
	}

	return &PendingConsentRequest{Item: MemoryItem{
		Type: itemType, Key: key, Value: value, Justification: justification,
		Category: category, Source: source, CreatedAt: nowUTC(),
	}}, nil
}

// RememberExplicit bypasses auto-formation checks but still honors
// capacity and category exclusion.
func (g *Memory) RememberExplicit(itemType, key, value, justification, category string) (MemoryItem, error) {
	check := g.CheckPolicy()
	reason := ""
	switch {
	case !check.CanRemember:
		reason = check.Reason
	case category != "" && !g.IsCategoryAllowed(category):
		reason = fmt.Sprintf("category %q is excluded by policy", category)
	}
	g.recordPermissionCheck(key, reason == "")
	if reason != "" {
		g.publish(reason, itemType, key)
		return MemoryItem{}, kernelerrors.NewPolicyBlockedError("memory", reason, "")
	}

	item := MemoryItem{
		Type: itemType, Key: key, Value: value, Justification: justification,
		Category: category, Source: SourceExplicit, CreatedAt: nowUTC(),
	}
	g.mu.Lock()
	g.items = append(g.items, item)
	g.mu.Unlock()
	return item, nil
}

func (g *Memory) recordPermissionCheck(key string, permitted bool) {
	if g.audit == nil {
		return
	}
	g.audit.Append(auditlog.Entry{
		EventType:    auditlog.EventPermissionCheck,
		ResourceType: "memory",
		Resource:     key,
		Permitted:    &permitted,
	})
}

func (g *Memory) publish(reason, itemType, key string) {
	if g.broker != nil {
		g.broker.Publish(kernelevents.Event{Kind: kernelevents.MemoryBlocked, Data: map[string]interface{}{"reason": reason, "type": itemType, "key": key}})
	}
}

// ApplyRetentionPolicy removes items older than the policy's
// max_retention_days (0 means unlimited) and returns the count removed.
func (g *Memory) ApplyRetentionPolicy() int {
	rules := g.engine.EvaluateMemoryPolicy()
	if rules.MaxRetentionDays <= 0 {
		return 0
	}
	cutoff := nowUTC().AddDate(0, 0, -rules.MaxRetentionDays)

	g.mu.Lock()
	kept := g.items[:0:0]
	removed := 0
	for _, item := range g.items {
		if item.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	g.items = kept
	g.mu.Unlock()

	if removed > 0 {
		g.publishPurge(removed, rules.MaxRetentionDays)
	}
	return removed
}

// EnforceCountLimit removes the oldest items (by CreatedAt) until the
// store's count is <= the policy's max_memories.
func (g *Memory) EnforceCountLimit() int {
	rules := g.engine.EvaluateMemoryPolicy()
	if rules.MaxMemories <= 0 {
		return 0
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.items) <= rules.MaxMemories {
		return 0
	}

	sorted := append([]MemoryItem(nil), g.items...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) })

	excess := len(sorted) - rules.MaxMemories
	g.items = sorted[excess:]
	return excess
}

func (g *Memory) publishPurge(count, retentionDays int) {
	if g.broker != nil {
		g.broker.Publish(kernelevents.Event{Kind: kernelevents.MemoriesPurged, Data: map[string]interface{}{"count": count, "retention_days": retentionDays}})
	}
}

// Items returns a snapshot of the current memory store, for tests and
// diagnostics.
func (g *Memory) Items() []MemoryItem {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]MemoryItem, len(g.items))
	copy(out, g.items)
	return out
}
