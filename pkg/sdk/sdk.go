// Copyright 2025 James Ross
// Package sdk is the thin helper plugin authors build on: register a
// handler per capability and the resulting Plugin satisfies the host's
// PluginInstance contract (Initialize, Execute, Capabilities) without any
// further boilerplate.
package sdk

import (
	"context"
	"fmt"

	"github.com/incontrol/trust-kernel/internal/manifest"
	"github.com/incontrol/trust-kernel/internal/sandbox"
)

// HandlerFunc services one capability. The handler receives the plugin's
// mediated context and must reach files, network, memory, and storage only
// through it.
type HandlerFunc func(ctx context.Context, params map[string]interface{}, pctx *sandbox.PluginContext) (interface{}, error)

// Plugin is a handler-registry PluginInstance. Register every handler
// before handing the Plugin to a host; registration is not synchronized
// against execution.
type Plugin struct {
	handlers map[string]HandlerFunc
	caps     []manifest.Capability
	onInit   func(pctx *sandbox.PluginContext) error
}

// New constructs an empty Plugin.
func New() *Plugin {
	return &Plugin{handlers: make(map[string]HandlerFunc)}
}

// Handle registers fn as the handler for cap, declaring cap as one of the
// plugin's capabilities. Registering the same tool_id twice replaces the
// handler but declares the capability only once.
func (p *Plugin) Handle(cap manifest.Capability, fn HandlerFunc) *Plugin {
	if _, exists := p.handlers[cap.ToolID]; !exists {
		p.caps = append(p.caps, cap)
	}
	p.handlers[cap.ToolID] = fn
	return p
}

// OnInitialize registers fn to run when the host initializes the plugin,
// after the sandbox context exists but before any Execute call.
func (p *Plugin) OnInitialize(fn func(pctx *sandbox.PluginContext) error) *Plugin {
	p.onInit = fn
	return p
}

// Initialize runs the registered initialization hook, if any.
func (p *Plugin) Initialize(pctx *sandbox.PluginContext) error {
	if p.onInit == nil {
		return nil
	}
	return p.onInit(pctx)
}

// Execute dispatches actionID to its registered handler. An unregistered
// actionID is an error the host records as a failed action.
func (p *Plugin) Execute(ctx context.Context, actionID string, parameters map[string]interface{}, pctx *sandbox.PluginContext) (interface{}, error) {
	fn, ok := p.handlers[actionID]
	if !ok {
		return nil, fmt.Errorf("unknown action %q", actionID)
	}
	return fn(ctx, parameters, pctx)
}

// Capabilities returns the capabilities registered via Handle, in
// registration order.
func (p *Plugin) Capabilities() []manifest.Capability {
	out := make([]manifest.Capability, len(p.caps))
	copy(out, p.caps)
	return out
}
