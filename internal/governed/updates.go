// Copyright 2025 James Ross
package governed

import (
	"strings"
	"sync"
	"time"

	"github.com/incontrol/trust-kernel/internal/kernelerrors"
	"github.com/incontrol/trust-kernel/internal/kernelevents"
	"github.com/incontrol/trust-kernel/internal/policy"
)

// Updates is the policy-aware facade in front of the update installer.
type Updates struct {
	engine  *policy.Engine
	broker  *kernelevents.Broker
	channel UpdateChannel

	mu   sync.Mutex
	mode UpdateMode
}

// NewUpdates wires an Updates facade for the build's running channel.
func NewUpdates(engine *policy.Engine, broker *kernelevents.Broker, runningChannel UpdateChannel) *Updates {
	return &Updates{engine: engine, broker: broker, channel: runningChannel, mode: UpdateModeNotifyOnly}
}

// IsChannelAllowed reports whether c is permitted: required_channel, if
// present, is exclusive; otherwise allowed_channels (if present) gates.
func (g *Updates) IsChannelAllowed(c UpdateChannel) bool {
	rules := g.engine.EvaluateUpdatePolicy()
	if rules.RequiredChannel != "" {
		return string(c) == rules.RequiredChannel
	}
	if len(rules.AllowedChannels) > 0 {
		for _, allowed := range rules.AllowedChannels {
			if allowed == string(c) {
				return true
			}
		}
		return false
	}
	return true
}

// CheckDeferral compares now - update.ReleasedAt against the policy's
// defer_days.
func (g *Updates) CheckDeferral(update Update) DeferralResult {
	rules := g.engine.EvaluateUpdatePolicy()
	if rules.DeferDays <= 0 {
		return DeferralResult{ShouldDefer: false}
	}
	elapsedDays := int(time.Since(update.ReleasedAt).Hours() / 24)
	remaining := rules.DeferDays - elapsedDays
	if remaining < 0 {
		remaining = 0
	}
	return DeferralResult{ShouldDefer: remaining > 0, DaysRemaining: remaining}
}

// MeetsMinimumVersion reports whether current satisfies the policy's
// minimum_version, using a simple dotted-numeric comparison.
func (g *Updates) MeetsMinimumVersion(current string) bool {
	rules := g.engine.EvaluateUpdatePolicy()
	if rules.MinimumVersion == "" {
		return true
	}
	return compareVersions(current, rules.MinimumVersion) >= 0
}

// SetMode blocks AutoInstall when auto_update is false.
func (g *Updates) SetMode(m UpdateMode) error {
	rules := g.engine.EvaluateUpdatePolicy()
	if m == UpdateModeAutoInstall && !rules.AutoUpdate {
		g.publish(kernelevents.AutoUpdateBlocked, "auto-update is disabled by policy")
		return kernelerrors.NewPolicyBlockedError("updates", "auto-update is disabled by policy", "")
	}
	g.mu.Lock()
	g.mode = m
	g.mu.Unlock()
	return nil
}

// CheckForUpdate returns an error if the running channel is not allowed.
func (g *Updates) CheckForUpdate() error {
	if !g.IsChannelAllowed(g.channel) {
		reason := "running channel is not allowed by policy"
		g.publish(kernelevents.ChannelBlocked, reason)
		return kernelerrors.NewPolicyBlockedError("updates", reason, "")
	}
	return nil
}

func (g *Updates) publish(kind kernelevents.Kind, reason string) {
	if g.broker != nil {
		g.broker.Publish(kernelevents.Event{Kind: kind, Data: map[string]interface{}{"reason": reason, "channel": string(g.channel)}})
	}
}

// compareVersions compares two dotted-numeric version strings, returning
// -1, 0, or 1. Each component compares by the number its leading digits
// form; a component with no leading digits, or a missing one, counts as 0.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var av, bv int
		if i < len(as) {
			av = atoiSafe(as[i])
		}
		if i < len(bs) {
			bv = atoiSafe(bs[i])
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}

func atoiSafe(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return n
		}
		n = n*10 + int(c-'0')
	}
	return n
}
