// Copyright 2025 James Ross
package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpdateMergeFalseWinsForAutoUpdate(t *testing.T) {
	e := NewEngine()
	off := false
	on := true
	e.SetPolicy(SourceOrganization, &Document{Updates: &UpdatesSection{AutoUpdate: &off}})
	e.SetPolicy(SourceUser, &Document{Updates: &UpdatesSection{AutoUpdate: &on}})

	merged := e.EvaluateUpdatePolicy()
	assert.False(t, merged.AutoUpdate, "any source disabling auto_update wins")
}

func TestUpdateMergeMinimumPositiveDeferDaysWins(t *testing.T) {
	e := NewEngine()
	e.SetPolicy(SourceOrganization, &Document{Updates: &UpdatesSection{DeferDays: 30}})
	e.SetPolicy(SourceUser, &Document{Updates: &UpdatesSection{DeferDays: 7}})

	merged := e.EvaluateUpdatePolicy()
	assert.Equal(t, 7, merged.DeferDays)
}

func TestUpdateMergeHighestAuthoritySetsRequiredChannel(t *testing.T) {
	e := NewEngine()
	e.SetPolicy(SourceOrganization, &Document{Updates: &UpdatesSection{RequiredChannel: "stable"}})
	e.SetPolicy(SourceUser, &Document{Updates: &UpdatesSection{RequiredChannel: "beta"}})

	merged := e.EvaluateUpdatePolicy()
	assert.Equal(t, "stable", merged.RequiredChannel)
}

func TestConnectivityMergeHighestAuthoritySetsAllowedModes(t *testing.T) {
	e := NewEngine()
	e.SetPolicy(SourceOrganization, &Document{Connectivity: &ConnectivitySection{AllowedModes: []string{"offline_only"}}})
	e.SetPolicy(SourceUser, &Document{Connectivity: &ConnectivitySection{AllowedModes: []string{"connected"}}})

	merged := e.EvaluateConnectivityPolicy()
	assert.Equal(t, []string{"offline_only"}, merged.AllowedModes)
}

func TestMemoryMergeExcludeCategoriesUnion(t *testing.T) {
	e := NewEngine()
	e.SetPolicy(SourceOrganization, &Document{Memory: &MemorySection{ExcludeCategories: []string{"health"}}})
	e.SetPolicy(SourceSession, &Document{Memory: &MemorySection{ExcludeCategories: []string{"finances"}}})

	merged := e.EvaluateMemoryPolicy()
	assert.ElementsMatch(t, []string{"health", "finances"}, merged.ExcludeCategories)
}

func TestMergedDefaultsAllPermissiveWithNoDocuments(t *testing.T) {
	e := NewEngine()

	mem := e.EvaluateMemoryPolicy()
	assert.True(t, mem.Enabled)
	assert.True(t, mem.AutoFormation)
	assert.Zero(t, mem.MaxMemories)

	conn := e.EvaluateConnectivityPolicy()
	assert.True(t, conn.AllowModeChange)
	assert.True(t, conn.AllowTelemetry)

	upd := e.EvaluateUpdatePolicy()
	assert.True(t, upd.AutoUpdate)
	assert.True(t, upd.CheckOnStartup)
}
