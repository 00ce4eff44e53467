// Copyright 2025 James Ross
package sandbox

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/incontrol/trust-kernel/internal/auditlog"
)

// StorageMediator mediates a plugin's exclusively owned storage directory.
// Keys map to "<key>.json" files. Storage persists across unload; clear
// removes all keys but not the directory itself.
type StorageMediator struct {
	ctx   *PluginContext
	audit *auditlog.Log
	dir   string
}

func (s *StorageMediator) keyPath(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Get reads key's stored value into v.
func (s *StorageMediator) Get(key string, v interface{}) error {
	path := s.keyPath(key)
	raw, err := os.ReadFile(path)
	permitted := err == nil
	s.audit.LogResourceAccess(s.ctx.PluginID, "storage", key, permitted, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// Set stores v under key.
func (s *StorageMediator) Set(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		s.audit.LogResourceAccess(s.ctx.PluginID, "storage", key, false, nil)
		return err
	}
	err = os.WriteFile(s.keyPath(key), raw, 0o644)
	s.audit.LogResourceAccess(s.ctx.PluginID, "storage", key, err == nil, nil)
	return err
}

// Clear removes every stored key but not the directory.
func (s *StorageMediator) Clear() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.audit.LogResourceAccess(s.ctx.PluginID, "storage", "*", false, nil)
		return err
	}
	for _, e := range entries {
		_ = os.Remove(filepath.Join(s.dir, e.Name()))
	}
	s.audit.LogResourceAccess(s.ctx.PluginID, "storage", "*", true, map[string]interface{}{"operation": "clear"})
	return nil
}
