// Copyright 2025 James Ross
package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validManifest() *Manifest {
	return &Manifest{
		ID:          "com.x.greeter",
		Version:     "1.0.0",
		Name:        "Greeter",
		Author:      "X",
		Description: "says hello",
		RiskLevel:   RiskReadOnly,
		Permissions: []Permission{
			{Type: PermissionFile, Access: AccessRead, Scope: "/data"},
		},
		Capabilities: []Capability{
			{ToolID: "greet", Name: "Greet", Description: "says hi"},
		},
	}
}

func TestValidateAcceptsWellFormedManifest(t *testing.T) {
	m := validManifest()
	assert.NoError(t, Validate(m))
}

func TestRoundTrip(t *testing.T) {
	m := validManifest()
	raw, err := Serialize(m)
	require.NoError(t, err)

	parsed, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, m, parsed)
}

func TestSystemAdjacentNeverValidates(t *testing.T) {
	m := validManifest()
	m.RiskLevel = RiskSystemAdjacent
	assert.Error(t, Validate(m))
}

func TestNetworkPermissionRaisesMinimumRisk(t *testing.T) {
	m := validManifest()
	m.RiskLevel = RiskReadOnly
	m.Permissions = []Permission{{Type: PermissionNetwork, Access: AccessRead, Scope: "https://api.example.com"}}
	m.NetworkIntent = &NetworkIntent{Endpoints: []string{"https://api.example.com/v1"}}

	err := Validate(m)
	require.Error(t, err)
	assert.GreaterOrEqual(t, riskOrder[CalculatedMinRisk(m)], riskOrder[RiskNetwork])
}

func TestWildcardFileWriteForbidden(t *testing.T) {
	m := validManifest()
	m.RiskLevel = RiskLocalMutation
	m.Permissions = []Permission{{Type: PermissionFile, Access: AccessWrite, Scope: "*"}}
	assert.Error(t, Validate(m))
}

func TestDuplicateToolIDRejected(t *testing.T) {
	m := validManifest()
	m.Capabilities = append(m.Capabilities, Capability{ToolID: "greet", Name: "Greet2", Description: "dup"})
	assert.Error(t, Validate(m))
}

func TestModifiesStateRequiresWritePermission(t *testing.T) {
	m := validManifest()
	m.Capabilities = []Capability{{ToolID: "delete", Name: "Delete", Description: "deletes", ModifiesState: true}}
	assert.Error(t, Validate(m))
}

func TestFileAndNetworkPermissionsRequireScope(t *testing.T) {
	m := validManifest()
	m.Permissions = []Permission{{Type: PermissionFile, Access: AccessRead}}
	assert.Error(t, Validate(m))
}

func TestMalformedIDRejected(t *testing.T) {
	m := validManifest()
	m.ID = "Bad..ID."
	assert.Error(t, Validate(m))
}
