// Copyright 2025 James Ross
// Package host implements the trust kernel's PluginHost: lifecycle control
// and the only path through which plugin capabilities are executed.
package host

import (
	"context"
	"time"

	"github.com/incontrol/trust-kernel/internal/manifest"
	"github.com/incontrol/trust-kernel/internal/sandbox"
)

// PluginInstance is the message-passing contract a plugin implements:
// three operations are the entire surface a plugin exposes to the host.
//
// Execute takes a context so the host can cancel a mid-flight call.
// Implementations should return promptly once ctx is done, though the host
// enforces cancellation at the call boundary regardless.
type PluginInstance interface {
	Initialize(pctx *sandbox.PluginContext) error
	Execute(ctx context.Context, actionID string, parameters map[string]interface{}, pctx *sandbox.PluginContext) (interface{}, error)
	Capabilities() []manifest.Capability
}

// State is a loaded plugin's lifecycle state.
type State string

const (
	StateEnabled  State = "enabled"
	StateDisabled State = "disabled"
	StateFaulted  State = "faulted"
)

// LoadedPlugin is the host's record for a single loaded plugin. The host
// exclusively owns this record; disposing the host disposes every context.
type LoadedPlugin struct {
	Manifest *manifest.Manifest
	Instance PluginInstance
	Context  *sandbox.PluginContext
	LoadedAt time.Time
	State    State
}

// LoadResult is the outcome of Host.Load.
type LoadResult struct {
	Success  bool
	PluginID string
	Reason   string
}

// ExecutionResult is the outcome of Host.Execute.
type ExecutionResult struct {
	PluginID    string
	ActionID    string
	ExecutionID string
	Success     bool
	Output      interface{}
	Error       string
	Duration    time.Duration
}
