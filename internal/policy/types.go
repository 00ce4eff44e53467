// Copyright 2025 James Ross
// Package policy implements the trust kernel's hierarchical PolicyEngine:
// deterministic evaluation of organization/team/user/session rules over
// tools, plugins, memory, connectivity, and updates.
package policy

import (
	"time"

	"github.com/incontrol/trust-kernel/internal/manifest"
)

// Source is a policy document's precedence tier. Lower values are higher
// authority; evaluation walks sources in this fixed order.
type Source string

const (
	SourceOrganization Source = "organization"
	SourceTeam         Source = "team"
	SourceUser         Source = "user"
	SourceSession      Source = "session"
	SourceDefault      Source = "default"
)

var sourcePrecedence = map[Source]int{
	SourceOrganization: 0,
	SourceTeam:         1,
	SourceUser:         2,
	SourceSession:      3,
	SourceDefault:      4,
}

// evaluationOrder is the fixed walk order for tool/plugin/domain evaluation.
var evaluationOrder = []Source{SourceOrganization, SourceTeam, SourceUser, SourceSession}

// Decision is the outcome of a policy evaluation.
type Decision string

const (
	DecisionAllow                Decision = "allow"
	DecisionDeny                 Decision = "deny"
	DecisionAllowWithApproval    Decision = "allow_with_approval"
	DecisionAllowWithConstraints Decision = "allow_with_constraints"
)

// EvaluationResult is the outcome of any evaluate_* call.
type EvaluationResult struct {
	Decision    Decision               `json:"decision"`
	Reason      string                 `json:"reason"`
	Source      Source                 `json:"source"`
	SourcePath  string                 `json:"source_path,omitempty"`
	RuleID      string                 `json:"rule_id,omitempty"`
	Constraints map[string]interface{} `json:"constraints,omitempty"`
	EvaluatedAt time.Time              `json:"evaluated_at"`
}

// ToolRule is a detailed tool decision beyond the simple allow/deny lists.
type ToolRule struct {
	ID          string                 `json:"id" yaml:"id"`
	Tool        string                 `json:"tool" yaml:"tool"`
	Decision    Decision               `json:"decision" yaml:"decision"`
	Reason      string                 `json:"reason,omitempty" yaml:"reason,omitempty"`
	Constraints map[string]interface{} `json:"constraints,omitempty" yaml:"constraints,omitempty"`
	Conditions  map[string]interface{} `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// ToolsSection governs first-party tool access.
type ToolsSection struct {
	Default         Decision   `json:"default,omitempty" yaml:"default,omitempty"`
	Allow           []string   `json:"allow,omitempty" yaml:"allow,omitempty"`
	Deny            []string   `json:"deny,omitempty" yaml:"deny,omitempty"`
	RequireApproval []string   `json:"require_approval,omitempty" yaml:"require_approval,omitempty"`
	Rules           []ToolRule `json:"rules,omitempty" yaml:"rules,omitempty"`
}

// PluginRule is a detailed plugin decision.
type PluginRule struct {
	ID       string   `json:"id" yaml:"id"`
	Plugin   string   `json:"plugin" yaml:"plugin"`
	Decision Decision `json:"decision" yaml:"decision"`
	Reason   string   `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// PluginsSection governs third-party plugin load/execute access.
type PluginsSection struct {
	Enabled        *bool              `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Default        Decision           `json:"default,omitempty" yaml:"default,omitempty"`
	Allow          []string           `json:"allow,omitempty" yaml:"allow,omitempty"`
	Deny           []string           `json:"deny,omitempty" yaml:"deny,omitempty"`
	TrustedAuthors []string           `json:"trusted_authors,omitempty" yaml:"trusted_authors,omitempty"`
	MaxRiskLevel   manifest.RiskLevel `json:"max_risk_level,omitempty" yaml:"max_risk_level,omitempty"`
	Rules          []PluginRule       `json:"rules,omitempty" yaml:"rules,omitempty"`
}

// MemorySection governs GovernedMemory.
type MemorySection struct {
	Enabled           *bool    `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	MaxRetentionDays  int      `json:"max_retention_days,omitempty" yaml:"max_retention_days,omitempty"`
	MaxMemories       int      `json:"max_memories,omitempty" yaml:"max_memories,omitempty"`
	EncryptAtRest     *bool    `json:"encrypt_at_rest,omitempty" yaml:"encrypt_at_rest,omitempty"`
	AutoFormation     *bool    `json:"auto_formation,omitempty" yaml:"auto_formation,omitempty"`
	ExcludeCategories []string `json:"exclude_categories,omitempty" yaml:"exclude_categories,omitempty"`
	AllowExport       *bool    `json:"allow_export,omitempty" yaml:"allow_export,omitempty"`
	AllowImport       *bool    `json:"allow_import,omitempty" yaml:"allow_import,omitempty"`
}

// ConnectivitySection governs GovernedConnectivity.
type ConnectivitySection struct {
	AllowedModes    []string `json:"allowed_modes,omitempty" yaml:"allowed_modes,omitempty"`
	DefaultMode     string   `json:"default_mode,omitempty" yaml:"default_mode,omitempty"`
	AllowModeChange *bool    `json:"allow_mode_change,omitempty" yaml:"allow_mode_change,omitempty"`
	AllowedDomains  []string `json:"allowed_domains,omitempty" yaml:"allowed_domains,omitempty"`
	BlockedDomains  []string `json:"blocked_domains,omitempty" yaml:"blocked_domains,omitempty"`
	AllowTelemetry  *bool    `json:"allow_telemetry,omitempty" yaml:"allow_telemetry,omitempty"`
}

// UpdatesSection governs GovernedUpdates.
type UpdatesSection struct {
	AutoUpdate      *bool    `json:"auto_update,omitempty" yaml:"auto_update,omitempty"`
	AllowedChannels []string `json:"allowed_channels,omitempty" yaml:"allowed_channels,omitempty"`
	RequiredChannel string   `json:"required_channel,omitempty" yaml:"required_channel,omitempty"`
	DeferDays       int      `json:"defer_days,omitempty" yaml:"defer_days,omitempty"`
	CheckOnStartup  *bool    `json:"check_on_startup,omitempty" yaml:"check_on_startup,omitempty"`
	MinimumVersion  string   `json:"minimum_version,omitempty" yaml:"minimum_version,omitempty"`
}

// Document is a single policy source's complete rule set.
type Document struct {
	Version      string               `json:"version" yaml:"version"`
	OrgID        string               `json:"org_id,omitempty" yaml:"org_id,omitempty"`
	TeamID       string               `json:"team_id,omitempty" yaml:"team_id,omitempty"`
	UserID       string               `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	Locked       bool                 `json:"locked,omitempty" yaml:"locked,omitempty"`
	Default      Decision             `json:"default,omitempty" yaml:"default,omitempty"`
	Tools        *ToolsSection        `json:"tools,omitempty" yaml:"tools,omitempty"`
	Plugins      *PluginsSection      `json:"plugins,omitempty" yaml:"plugins,omitempty"`
	Memory       *MemorySection       `json:"memory,omitempty" yaml:"memory,omitempty"`
	Connectivity *ConnectivitySection `json:"connectivity,omitempty" yaml:"connectivity,omitempty"`
	Updates      *UpdatesSection      `json:"updates,omitempty" yaml:"updates,omitempty"`
}

// MergedMemoryRules is the layered result of evaluate_memory_policy.
type MergedMemoryRules struct {
	Enabled           bool
	MaxRetentionDays  int
	MaxMemories       int
	EncryptAtRest     bool
	AutoFormation     bool
	ExcludeCategories []string
	AllowExport       bool
	AllowImport       bool
}

// MergedConnectivityRules is the layered result of evaluate_connectivity_policy.
type MergedConnectivityRules struct {
	AllowedModes    []string
	DefaultMode     string
	AllowModeChange bool
	AllowedDomains  []string
	BlockedDomains  []string
	AllowTelemetry  bool
}

// MergedUpdateRules is the layered result of evaluate_update_policy.
type MergedUpdateRules struct {
	AutoUpdate      bool
	AllowedChannels []string
	RequiredChannel string
	DeferDays       int
	CheckOnStartup  bool
	MinimumVersion  string
}
