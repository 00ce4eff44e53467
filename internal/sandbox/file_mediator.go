// Copyright 2025 James Ross
package sandbox

import (
	"os"

	"github.com/incontrol/trust-kernel/internal/auditlog"
	"github.com/incontrol/trust-kernel/internal/kernelerrors"
	"github.com/incontrol/trust-kernel/internal/manifest"
)

// FileMediator mediates a plugin's filesystem access. Every call records a
// ResourceAccess audit entry before touching disk; on a denied permission
// check the disk is never touched.
type FileMediator struct {
	ctx   *PluginContext
	audit *auditlog.Log
}

func (f *FileMediator) permitted(access manifest.AccessLevel, path string) bool {
	return f.ctx.HasPermission(manifest.PermissionFile, access, path)
}

func (f *FileMediator) recordAccess(path string, permitted bool) {
	f.audit.LogResourceAccess(f.ctx.PluginID, "file", path, permitted, nil)
}

// Read returns the contents of path if permitted.
func (f *FileMediator) Read(path string) ([]byte, error) {
	ok := f.permitted(manifest.AccessRead, path)
	f.recordAccess(path, ok)
	if !ok {
		return nil, kernelerrors.NewPermissionMissingError("file", path, "read access not permitted")
	}
	return os.ReadFile(path)
}

// Write writes content to path if permitted.
func (f *FileMediator) Write(path string, content []byte) error {
	ok := f.permitted(manifest.AccessWrite, path)
	f.recordAccess(path, ok)
	if !ok {
		return kernelerrors.NewPermissionMissingError("file", path, "write access not permitted")
	}
	return os.WriteFile(path, content, 0o644)
}

// List returns the entries of path if permitted.
func (f *FileMediator) List(path string) ([]string, error) {
	ok := f.permitted(manifest.AccessRead, path)
	f.recordAccess(path, ok)
	if !ok {
		return nil, kernelerrors.NewPermissionMissingError("file", path, "read access not permitted")
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
