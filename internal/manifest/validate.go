// Copyright 2025 James Ross
package manifest

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/incontrol/trust-kernel/internal/kernelerrors"
)

var (
	idPattern      = regexp.MustCompile(`^[a-z0-9.-]+$`)
	versionPattern = regexp.MustCompile(`^\d+(\.\d+){1,3}(-[a-zA-Z0-9.]+)?$`)
	schemaLoader   = gojsonschema.NewStringLoader(jsonSchema)
)

// ValidateJSON runs the structural schema check against raw manifest JSON,
// returning a ValidationError listing every schema violation found.
func ValidateJSON(raw []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return kernelerrors.NewValidationError("ManifestMalformed", "manifest is not valid JSON", err.Error())
	}
	if !result.Valid() {
		reasons := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			reasons = append(reasons, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
		}
		return kernelerrors.NewValidationError("ManifestSchemaInvalid", "manifest failed schema validation", reasons...)
	}
	return nil
}

// Validate checks m against every documented invariant: id shape, version
// shape, risk-level monotonicity, scope requirements, capability/permission
// cross-checks, and network intent coverage. It returns nil when m is
// loadable; otherwise a *kernelerrors.ValidationError listing every reason.
func Validate(m *Manifest) error {
	var reasons []string

	if !idPattern.MatchString(m.ID) || strings.HasPrefix(m.ID, ".") || strings.HasSuffix(m.ID, ".") || strings.Contains(m.ID, "..") {
		reasons = append(reasons, "id must be lowercase [a-z0-9.-], no leading/trailing dot, no '..'")
	}
	if !versionPattern.MatchString(m.Version) {
		reasons = append(reasons, "version must be 2-4 dotted numeric components with optional pre-release suffix")
	}
	if m.RiskLevel == RiskSystemAdjacent {
		reasons = append(reasons, "risk_level system_adjacent is reserved and must not validate")
	}
	if _, ok := riskOrder[m.RiskLevel]; !ok {
		reasons = append(reasons, "risk_level is not one of the recognized values")
	}

	minRisk := CalculatedMinRisk(m)
	if m.RiskLevel.Less(minRisk) {
		reasons = append(reasons, fmt.Sprintf("declared risk_level %q is below calculated minimum %q", m.RiskLevel, minRisk))
	}

	seenTools := make(map[string]bool)
	for i, cap := range m.Capabilities {
		if cap.ToolID == "" {
			reasons = append(reasons, fmt.Sprintf("capabilities[%d]: tool_id must not be empty", i))
			continue
		}
		if seenTools[cap.ToolID] {
			reasons = append(reasons, fmt.Sprintf("capabilities[%d]: duplicate tool_id %q", i, cap.ToolID))
		}
		seenTools[cap.ToolID] = true

		if cap.ModifiesState && !hasPermission(m, PermissionFile, AccessWrite) && !anyWriteOrExecute(m) {
			reasons = append(reasons, fmt.Sprintf("capability %q modifies_state requires at least one write/execute permission", cap.ToolID))
		}
		if cap.RequiresNetwork && !hasAnyPermission(m, PermissionNetwork) {
			reasons = append(reasons, fmt.Sprintf("capability %q requires_network requires a network permission", cap.ToolID))
		}
	}

	var networkScopes []string
	for i, p := range m.Permissions {
		if (p.Type == PermissionFile || p.Type == PermissionNetwork) && p.Scope == "" {
			reasons = append(reasons, fmt.Sprintf("permissions[%d]: %s permission requires a non-empty scope", i, p.Type))
		}
		if p.Type == PermissionFile && p.Access.AtLeast(AccessWrite) && p.Scope == "*" {
			reasons = append(reasons, fmt.Sprintf("permissions[%d]: wildcard write to files (scope \"*\") is forbidden", i))
		}
		if p.Type == PermissionNetwork && p.Scope != "" {
			networkScopes = append(networkScopes, p.Scope)
		}
	}

	if hasAnyPermission(m, PermissionNetwork) && m.NetworkIntent == nil {
		reasons = append(reasons, "network permission declared without a network_intent")
	}
	if m.NetworkIntent != nil {
		for _, ep := range m.NetworkIntent.Endpoints {
			u, err := url.Parse(ep)
			if err != nil || !u.IsAbs() {
				reasons = append(reasons, fmt.Sprintf("network_intent endpoint %q must be an absolute URI", ep))
				continue
			}
			if !coveredByAnyScope(ep, networkScopes) {
				reasons = append(reasons, fmt.Sprintf("network_intent endpoint %q is not covered by any network-permission scope", ep))
			}
		}
	}

	if len(reasons) > 0 {
		return kernelerrors.NewValidationError("ManifestInvalid", "manifest failed invariant checks", reasons...)
	}
	return nil
}

// NetworkIntentWarnings returns non-fatal warnings (e.g. non-HTTPS
// endpoints) that do not block validation.
func NetworkIntentWarnings(m *Manifest) []string {
	var warnings []string
	if m.NetworkIntent == nil {
		return warnings
	}
	for _, ep := range m.NetworkIntent.Endpoints {
		if u, err := url.Parse(ep); err == nil && u.Scheme != "https" {
			warnings = append(warnings, fmt.Sprintf("network_intent endpoint %q is not HTTPS", ep))
		}
	}
	return warnings
}

// CalculatedMinRisk derives the lowest RiskLevel consistent with m's
// declared permissions: any network permission implies at least Network;
// any write/execute access implies at least LocalMutation.
func CalculatedMinRisk(m *Manifest) RiskLevel {
	min := RiskReadOnly
	for _, p := range m.Permissions {
		if p.Type == PermissionNetwork && min.Less(RiskNetwork) {
			min = RiskNetwork
		}
		if p.Access.AtLeast(AccessWrite) && min.Less(RiskLocalMutation) {
			min = RiskLocalMutation
		}
	}
	return min
}

func hasAnyPermission(m *Manifest, t PermissionType) bool {
	for _, p := range m.Permissions {
		if p.Type == t {
			return true
		}
	}
	return false
}

func hasPermission(m *Manifest, t PermissionType, access AccessLevel) bool {
	for _, p := range m.Permissions {
		if p.Type == t && p.Access.AtLeast(access) {
			return true
		}
	}
	return false
}

func anyWriteOrExecute(m *Manifest) bool {
	for _, p := range m.Permissions {
		if p.Access.AtLeast(AccessWrite) {
			return true
		}
	}
	return false
}

func coveredByAnyScope(endpoint string, scopes []string) bool {
	for _, s := range scopes {
		if strings.HasPrefix(strings.ToLower(endpoint), strings.ToLower(s)) {
			return true
		}
	}
	return false
}

// Parse decodes raw manifest JSON, running schema validation first.
func Parse(raw []byte) (*Manifest, error) {
	if err := ValidateJSON(raw); err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, kernelerrors.NewValidationError("ManifestMalformed", "manifest JSON could not be decoded", err.Error())
	}
	if err := Validate(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Serialize encodes m back to canonical JSON.
func Serialize(m *Manifest) ([]byte, error) {
	return json.Marshal(m)
}
