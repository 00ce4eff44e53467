// Copyright 2025 James Ross
// Package sandbox produces the mediated PluginContext through which
// plugins reach files, network, memory, and per-plugin storage. Every
// mediator call records exactly one ResourceAccess audit entry, even when
// denied. The file, network and memory mediators record it before any
// underlying effect; the storage mediator records it after its disk
// operation, with permitted set to whether that operation succeeded.
package sandbox

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/incontrol/trust-kernel/internal/auditlog"
	"github.com/incontrol/trust-kernel/internal/manifest"
)

// ConnectivityChecker lets the network mediator defer domain policy to the
// connectivity manager, which may re-check domain policy beyond the
// plugin's own declared scopes.
type ConnectivityChecker interface {
	IsAvailable() bool
	CheckDomain(host string) (allowed bool, reason string)
}

// Sandbox constructs PluginContext instances for loaded plugins.
type Sandbox struct {
	audit        *auditlog.Log
	connectivity ConnectivityChecker
	storageBase  string
	logger       *zap.Logger
}

// Option configures a Sandbox at construction time.
type Option func(*Sandbox)

func WithConnectivity(c ConnectivityChecker) Option { return func(s *Sandbox) { s.connectivity = c } }
func WithLogger(l *zap.Logger) Option               { return func(s *Sandbox) { s.logger = l } }

// New constructs a Sandbox rooted at storageBase for plugin storage
// directories.
func New(audit *auditlog.Log, storageBase string, opts ...Option) *Sandbox {
	s := &Sandbox{audit: audit, storageBase: storageBase, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PluginContext is the sandbox bundle owned by exactly one LoadedPlugin.
// Plugins reach the outside world only through its four mediators.
type PluginContext struct {
	PluginID string
	Manifest *manifest.Manifest
	Files    *FileMediator
	Network  *NetworkMediator
	Memory   *MemoryMediator
	Storage  *StorageMediator

	mu       sync.Mutex
	disposed bool
}

// NewContext builds a PluginContext for m, wiring every mediator to audit
// through the sandbox's shared audit log.
func (s *Sandbox) NewContext(pluginID string, m *manifest.Manifest) (*PluginContext, error) {
	storageDir := filepath.Join(s.storageBase, pluginID)
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, err
	}

	ctx := &PluginContext{
		PluginID: pluginID,
		Manifest: m,
	}
	ctx.Files = &FileMediator{ctx: ctx, audit: s.audit}
	ctx.Network = &NetworkMediator{ctx: ctx, audit: s.audit, connectivity: s.connectivity}
	ctx.Memory = &MemoryMediator{ctx: ctx, audit: s.audit, store: make(map[string]string)}
	ctx.Storage = &StorageMediator{ctx: ctx, audit: s.audit, dir: storageDir}
	return ctx, nil
}

// Dispose marks the context disposed. The context holds no open handles or
// timers, so nothing else is released. Storage content persists across
// unload; Dispose does not delete it.
func (c *PluginContext) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disposed = true
}

// HasPermission implements the sandbox's permission query: the manifest
// must contain a permission with matching type, access >= requested, and
// (when both scopes are present) a scope that is a case-insensitive
// prefix of the requested scope.
func (c *PluginContext) HasPermission(t manifest.PermissionType, access manifest.AccessLevel, scope string) bool {
	for _, p := range c.Manifest.Permissions {
		if p.Type != t || !p.Access.AtLeast(access) {
			continue
		}
		if p.Scope == "" || scope == "" {
			return true
		}
		if strings.HasPrefix(strings.ToLower(scope), strings.ToLower(p.Scope)) {
			return true
		}
	}
	return false
}
