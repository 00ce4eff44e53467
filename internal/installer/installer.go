// Copyright 2025 James Ross
// Package installer maintains the on-disk installation registry: the
// record of which plugin packages are installed where, keyed by plugin id;
// each entry also stores the content hash packager.Open computed when the
// package was opened.
package installer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/incontrol/trust-kernel/internal/packager"
)

// RegistryEntry is a single installed-package record.
type RegistryEntry struct {
	PluginID    string    `json:"plugin_id"`
	Version     string    `json:"version"`
	InstallPath string    `json:"install_path"`
	InstalledAt time.Time `json:"installed_at"`
	PackageHash string    `json:"package_hash"`
}

// Registry is the loaded, mutable view of <plugins_dir>/registry.json,
// guarded by a single mutex since writes are infrequent and short.
type Registry struct {
	mu      sync.Mutex
	path    string
	entries []RegistryEntry
}

// Load reads path's registry.json. Entries whose InstallPath no longer
// exists on disk are dropped silently. A missing file yields an empty
// registry, not an error.
func Load(path string) (*Registry, error) {
	r := &Registry{path: path}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, err
	}

	var entries []RegistryEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}

	live := entries[:0:0]
	for _, e := range entries {
		if _, err := os.Stat(e.InstallPath); err == nil {
			live = append(live, e)
		}
	}
	r.entries = live
	return r, nil
}

// Entries returns a snapshot of the currently known installed packages.
func (r *Registry) Entries() []RegistryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RegistryEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Find returns the entry for pluginID, if installed.
func (r *Registry) Find(pluginID string) (RegistryEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.PluginID == pluginID {
			return e, true
		}
	}
	return RegistryEntry{}, false
}

func (r *Registry) persist() error {
	raw, err := json.MarshalIndent(r.entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(r.path, raw, 0o644)
}

// Install extracts pkg's entries into <dir>/<plugin_id>-<version>/, records
// a RegistryEntry, and persists the registry. A plugin id already present
// is replaced (reinstall/upgrade), not duplicated.
func Install(r *Registry, pkg *packager.Package, dir string) (RegistryEntry, error) {
	installPath := filepath.Join(dir, fmt.Sprintf("%s-%s", pkg.Manifest.ID, pkg.Manifest.Version))
	if err := os.MkdirAll(installPath, 0o755); err != nil {
		return RegistryEntry{}, err
	}
	cleanInstallPath := filepath.Clean(installPath)
	for name, content := range pkg.Files {
		dest := filepath.Join(installPath, filepath.FromSlash(name))
		cleanDest := filepath.Clean(dest)
		if cleanDest != cleanInstallPath && !strings.HasPrefix(cleanDest, cleanInstallPath+string(os.PathSeparator)) {
			return RegistryEntry{}, fmt.Errorf("installer: entry %q escapes install path %q", name, installPath)
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return RegistryEntry{}, err
		}
		if err := os.WriteFile(dest, content, 0o644); err != nil {
			return RegistryEntry{}, err
		}
	}

	entry := RegistryEntry{
		PluginID:    pkg.Manifest.ID,
		Version:     pkg.Manifest.Version,
		InstallPath: installPath,
		InstalledAt: time.Now().UTC(),
		PackageHash: pkg.ContentHash,
	}

	r.mu.Lock()
	filtered := r.entries[:0:0]
	for _, e := range r.entries {
		if e.PluginID != entry.PluginID {
			filtered = append(filtered, e)
		}
	}
	r.entries = append(filtered, entry)
	err := r.persist()
	r.mu.Unlock()

	return entry, err
}

// Uninstall removes pluginID's installed files and registry entry. A
// pluginID not currently installed is a no-op, not an error.
func Uninstall(r *Registry, pluginID string) error {
	r.mu.Lock()
	var found *RegistryEntry
	filtered := r.entries[:0:0]
	for _, e := range r.entries {
		if e.PluginID == pluginID {
			entry := e
			found = &entry
			continue
		}
		filtered = append(filtered, e)
	}
	r.entries = filtered
	err := r.persist()
	r.mu.Unlock()
	if err != nil {
		return err
	}
	if found == nil {
		return nil
	}
	return os.RemoveAll(found.InstallPath)
}
