// Copyright 2025 James Ross
package governed

import (
	"fmt"
	"strings"
	"sync"

	"github.com/incontrol/trust-kernel/internal/kernelerrors"
	"github.com/incontrol/trust-kernel/internal/kernelevents"
	"github.com/incontrol/trust-kernel/internal/policy"
)

// Connectivity wraps a connectivity-mode state machine (OfflineOnly,
// Assisted, Connected) with policy-derived mode-change and domain rules.
// It satisfies sandbox.ConnectivityChecker so the sandbox's network
// mediator can defer domain re-checks to it.
type Connectivity struct {
	engine *policy.Engine
	broker *kernelevents.Broker

	mu   sync.Mutex
	mode ConnectivityMode
}

// NewConnectivity wires a Connectivity facade starting in mode.
func NewConnectivity(engine *policy.Engine, broker *kernelevents.Broker, mode ConnectivityMode) *Connectivity {
	return &Connectivity{engine: engine, broker: broker, mode: mode}
}

// Mode returns the current connectivity mode.
func (g *Connectivity) Mode() ConnectivityMode {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mode
}

// SetMode is blocked if policy disallows mode changes or m is not in the
// allowed-modes list.
func (g *Connectivity) SetMode(m ConnectivityMode) error {
	rules := g.engine.EvaluateConnectivityPolicy()
	if !rules.AllowModeChange {
		g.publishModeBlocked(m, "mode changes are disabled by policy")
		return kernelerrors.NewPolicyBlockedError("connectivity", "mode changes are disabled by policy", "")
	}
	if len(rules.AllowedModes) > 0 && !containsMode(rules.AllowedModes, m) {
		reason := fmt.Sprintf("mode %q is not in the allowed-modes list", m)
		g.publishModeBlocked(m, reason)
		return kernelerrors.NewPolicyBlockedError("connectivity", reason, "")
	}

	g.mu.Lock()
	g.mode = m
	g.mu.Unlock()
	return nil
}

// GoOfflineNow is always permitted regardless of policy: the offline
// direction is a safety valve.
func (g *Connectivity) GoOfflineNow() {
	g.mu.Lock()
	g.mode = ModeOfflineOnly
	g.mu.Unlock()
}

// IsAvailable reports whether the current mode allows any network access.
func (g *Connectivity) IsAvailable() bool {
	return g.Mode() != ModeOfflineOnly
}

// CheckDomain combines allow-list and block-list semantics from the
// connectivity policy section.
func (g *Connectivity) CheckDomain(host string) (bool, string) {
	r := g.engine.EvaluateDomain(host)
	return r.Decision == policy.DecisionAllow, r.Reason
}

// Request is blocked if CheckDomain denies, or if telemetry is disabled
// and the request's intent contains the case-insensitive word "telemetry".
func (g *Connectivity) Request(req ConnectivityRequest) error {
	if !g.IsAvailable() {
		return kernelerrors.NewPolicyBlockedError("connectivity", "kernel is offline", "")
	}
	if allowed, reason := g.CheckDomain(req.Host); !allowed {
		g.publishDomainBlocked(req.Host, reason)
		return kernelerrors.NewPolicyBlockedError("connectivity", reason, "")
	}

	rules := g.engine.EvaluateConnectivityPolicy()
	if !rules.AllowTelemetry && strings.Contains(strings.ToLower(req.Intent), "telemetry") {
		reason := "telemetry is disabled by policy"
		g.publishDomainBlocked(req.Host, reason)
		return kernelerrors.NewPolicyBlockedError("connectivity", reason, "")
	}
	return nil
}

func (g *Connectivity) publishModeBlocked(m ConnectivityMode, reason string) {
	if g.broker != nil {
		g.broker.Publish(kernelevents.Event{Kind: kernelevents.ModeChangeBlocked, Data: map[string]interface{}{"mode": string(m), "reason": reason}})
	}
}

func (g *Connectivity) publishDomainBlocked(host, reason string) {
	if g.broker != nil {
		g.broker.Publish(kernelevents.Event{Kind: kernelevents.DomainBlocked, Data: map[string]interface{}{"host": host, "reason": reason}})
	}
}

func containsMode(modes []string, m ConnectivityMode) bool {
	for _, mode := range modes {
		if mode == string(m) {
			return true
		}
	}
	return false
}
