// Copyright 2025 James Ross
// Package governed implements the policy-aware facades sitting in front of
// the plugin host, tool registry, memory, connectivity, and update
// surfaces: GovernedPluginHost, GovernedToolRegistry, GovernedMemory,
// GovernedConnectivity, GovernedUpdates.
package governed

import (
	"time"

	"github.com/incontrol/trust-kernel/internal/policy"
)

// CheckPolicyResult is the outcome of a pre-flight policy check, shared in
// shape by the plugin-host and tool-registry facades.
type CheckPolicyResult struct {
	CanLoad          bool
	Decision         policy.Decision
	Source           policy.Source
	RequiresApproval bool
	Reason           string
}

// approval is a process-scoped operator consent. Approvals evaporate on
// process exit: this struct is never serialized to disk by the kernel.
type approval struct {
	actor     string
	grantedAt time.Time
}

// ToolResult is returned only when policy allows (Allow, AllowWithConstraints
// with constraints carried in, or AllowWithApproval backed by a session
// approval).
type ToolResult struct {
	ToolID      string
	Output      interface{}
	Constraints map[string]interface{}
}

// MemoryItem is a single remembered fact under GovernedMemory.
type MemoryItem struct {
	Type          string
	Key           string
	Value         string
	Justification string
	Category      string
	Source        MemorySource
	CreatedAt     time.Time
}

// MemorySource distinguishes operator-initiated remembering from the
// assistant inferring something on its own.
type MemorySource string

const (
	SourceExplicit MemorySource = "explicit"
	SourceInferred MemorySource = "inferred"
)

// MemoryPolicyResult is the outcome of GovernedMemory.CheckPolicy.
type MemoryPolicyResult struct {
	CanRemember          bool
	CanExport            bool
	CanImport            bool
	AutoFormationAllowed bool
	MemoryCount          int
	MaxMemories          int
	Reason               string
}

// PendingConsentRequest represents a remember request awaiting operator
// consent (only produced by the auto-formation path; RememberExplicit
// bypasses this).
type PendingConsentRequest struct {
	Item MemoryItem
}

// ConnectivityMode is the connectivity manager's operating mode.
type ConnectivityMode string

const (
	ModeOfflineOnly ConnectivityMode = "offline_only"
	ModeAssisted    ConnectivityMode = "assisted"
	ModeConnected   ConnectivityMode = "connected"
)

// ConnectivityRequest is a plugin or tool's outbound network intent.
type ConnectivityRequest struct {
	Host   string
	Intent string
}

// UpdateChannel is the release channel an update belongs to.
type UpdateChannel string

// UpdateMode selects how discovered updates are installed.
type UpdateMode string

const (
	UpdateModeManual      UpdateMode = "manual"
	UpdateModeNotifyOnly  UpdateMode = "notify_only"
	UpdateModeAutoInstall UpdateMode = "auto_install"
)

// Update describes a candidate update for deferral/version checks.
type Update struct {
	Channel    UpdateChannel
	Version    string
	ReleasedAt time.Time
}

// DeferralResult is the outcome of GovernedUpdates.CheckDeferral.
type DeferralResult struct {
	ShouldDefer   bool
	DaysRemaining int
}
