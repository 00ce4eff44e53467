// Copyright 2025 James Ross
package policy

// EvaluateMemoryPolicy merges the memory sections across sources: boolean
// permissive flags default true unless any source disables them; numeric
// maxima take the minimum positive value across sources; exclusion lists
// union.
func (e *Engine) EvaluateMemoryPolicy() MergedMemoryRules {
	docs := e.docsSnapshot()

	merged := MergedMemoryRules{Enabled: true, EncryptAtRest: true, AutoFormation: true, AllowExport: true, AllowImport: true}
	var excludeSet = make(map[string]bool)

	for _, src := range evaluationOrder {
		doc, ok := docs[src]
		if !ok || doc.Memory == nil {
			continue
		}
		m := doc.Memory

		if m.Enabled != nil && !*m.Enabled {
			merged.Enabled = false
		}
		if m.EncryptAtRest != nil && !*m.EncryptAtRest {
			merged.EncryptAtRest = false
		}
		if m.AutoFormation != nil && !*m.AutoFormation {
			merged.AutoFormation = false
		}
		if m.AllowExport != nil && !*m.AllowExport {
			merged.AllowExport = false
		}
		if m.AllowImport != nil && !*m.AllowImport {
			merged.AllowImport = false
		}
		if merged.MaxRetentionDays == 0 || (m.MaxRetentionDays > 0 && m.MaxRetentionDays < merged.MaxRetentionDays) {
			if m.MaxRetentionDays > 0 {
				merged.MaxRetentionDays = m.MaxRetentionDays
			}
		}
		if merged.MaxMemories == 0 || (m.MaxMemories > 0 && m.MaxMemories < merged.MaxMemories) {
			if m.MaxMemories > 0 {
				merged.MaxMemories = m.MaxMemories
			}
		}
		for _, c := range m.ExcludeCategories {
			excludeSet[c] = true
		}
	}

	for c := range excludeSet {
		merged.ExcludeCategories = append(merged.ExcludeCategories, c)
	}
	return merged
}

// EvaluateConnectivityPolicy implements evaluate_connectivity_policy.
func (e *Engine) EvaluateConnectivityPolicy() MergedConnectivityRules {
	docs := e.docsSnapshot()

	merged := MergedConnectivityRules{AllowModeChange: true, AllowTelemetry: true}
	allowedSet := make(map[string]bool)
	blockedSet := make(map[string]bool)

	for _, src := range evaluationOrder {
		doc, ok := docs[src]
		if !ok || doc.Connectivity == nil {
			continue
		}
		c := doc.Connectivity

		if c.AllowModeChange != nil && !*c.AllowModeChange {
			merged.AllowModeChange = false
		}
		if c.AllowTelemetry != nil && !*c.AllowTelemetry {
			merged.AllowTelemetry = false
		}
		if merged.DefaultMode == "" && c.DefaultMode != "" {
			merged.DefaultMode = c.DefaultMode
		}
		if len(merged.AllowedModes) == 0 && len(c.AllowedModes) > 0 {
			merged.AllowedModes = append([]string(nil), c.AllowedModes...)
		}
		for _, d := range c.AllowedDomains {
			allowedSet[d] = true
		}
		for _, d := range c.BlockedDomains {
			blockedSet[d] = true
		}
	}

	for d := range allowedSet {
		merged.AllowedDomains = append(merged.AllowedDomains, d)
	}
	for d := range blockedSet {
		merged.BlockedDomains = append(merged.BlockedDomains, d)
	}
	return merged
}

// EvaluateUpdatePolicy implements evaluate_update_policy.
func (e *Engine) EvaluateUpdatePolicy() MergedUpdateRules {
	docs := e.docsSnapshot()

	merged := MergedUpdateRules{AutoUpdate: true, CheckOnStartup: true}

	for _, src := range evaluationOrder {
		doc, ok := docs[src]
		if !ok || doc.Updates == nil {
			continue
		}
		u := doc.Updates

		if u.AutoUpdate != nil && !*u.AutoUpdate {
			merged.AutoUpdate = false
		}
		if u.CheckOnStartup != nil && !*u.CheckOnStartup {
			merged.CheckOnStartup = false
		}
		if merged.RequiredChannel == "" && u.RequiredChannel != "" {
			merged.RequiredChannel = u.RequiredChannel
		}
		if len(merged.AllowedChannels) == 0 && len(u.AllowedChannels) > 0 {
			merged.AllowedChannels = append([]string(nil), u.AllowedChannels...)
		}
		if merged.MinimumVersion == "" && u.MinimumVersion != "" {
			merged.MinimumVersion = u.MinimumVersion
		}
		if u.DeferDays > 0 && (merged.DeferDays == 0 || u.DeferDays < merged.DeferDays) {
			merged.DeferDays = u.DeferDays
		}
	}
	return merged
}
