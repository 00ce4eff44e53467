// Copyright 2025 James Ross
package sandbox

import (
	"strings"
	"sync"

	"github.com/incontrol/trust-kernel/internal/auditlog"
	"github.com/incontrol/trust-kernel/internal/kernelerrors"
	"github.com/incontrol/trust-kernel/internal/manifest"
)

// MemoryMediator mediates a plugin's namespaced key/value memory. Keys are
// stored under "<plugin_id>:<key>"; read and write require separate
// Memory permissions.
type MemoryMediator struct {
	ctx   *PluginContext
	audit *auditlog.Log
	mu    sync.Mutex
	store map[string]string
}

func (m *MemoryMediator) namespacedKey(key string) string {
	return m.ctx.PluginID + ":" + key
}

// Get reads key if permitted.
func (m *MemoryMediator) Get(key string) (string, error) {
	ok := m.ctx.HasPermission(manifest.PermissionMemory, manifest.AccessRead, "")
	m.audit.LogResourceAccess(m.ctx.PluginID, "memory", key, ok, nil)
	if !ok {
		return "", kernelerrors.NewPermissionMissingError("memory", key, "read access not permitted")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store[m.namespacedKey(key)], nil
}

// Set writes key if permitted.
func (m *MemoryMediator) Set(key, value string) error {
	ok := m.ctx.HasPermission(manifest.PermissionMemory, manifest.AccessWrite, "")
	m.audit.LogResourceAccess(m.ctx.PluginID, "memory", key, ok, nil)
	if !ok {
		return kernelerrors.NewPermissionMissingError("memory", key, "write access not permitted")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[m.namespacedKey(key)] = value
	return nil
}

// Search scans only keys in the plugin's namespace, filtering by substring
// match on values.
func (m *MemoryMediator) Search(substr string) ([]string, error) {
	ok := m.ctx.HasPermission(manifest.PermissionMemory, manifest.AccessRead, "")
	m.audit.LogResourceAccess(m.ctx.PluginID, "memory", "search:"+substr, ok, nil)
	if !ok {
		return nil, kernelerrors.NewPermissionMissingError("memory", substr, "read access not permitted")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := m.ctx.PluginID + ":"
	var matches []string
	for k, v := range m.store {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if strings.Contains(v, substr) {
			matches = append(matches, strings.TrimPrefix(k, prefix))
		}
	}
	return matches, nil
}
