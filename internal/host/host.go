// Copyright 2025 James Ross
package host

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/incontrol/trust-kernel/internal/auditlog"
	"github.com/incontrol/trust-kernel/internal/kernelerrors"
	"github.com/incontrol/trust-kernel/internal/kernelevents"
	"github.com/incontrol/trust-kernel/internal/manifest"
	"github.com/incontrol/trust-kernel/internal/obs"
	"github.com/incontrol/trust-kernel/internal/sandbox"
)

// Host is the trust kernel's PluginHost: a registry of LoadedPlugin
// records protected by a single mutex, with long-running plugin work
// (initialize, execute) always performed outside the lock.
type Host struct {
	mu      sync.Mutex
	plugins map[string]*LoadedPlugin

	sandbox *sandbox.Sandbox
	audit   *auditlog.Log
	broker  *kernelevents.Broker
	metrics *obs.Metrics
	logger  *zap.Logger
}

// Option configures a Host at construction time.
type Option func(*Host)

func WithBroker(b *kernelevents.Broker) Option { return func(h *Host) { h.broker = b } }
func WithMetrics(m *obs.Metrics) Option        { return func(h *Host) { h.metrics = m } }
func WithLogger(l *zap.Logger) Option          { return func(h *Host) { h.logger = l } }

// New constructs a Host backed by sb for context creation and audit for
// lifecycle/resource logging.
func New(sb *sandbox.Sandbox, audit *auditlog.Log, opts ...Option) *Host {
	h := &Host{
		plugins: make(map[string]*LoadedPlugin),
		sandbox: sb,
		audit:   audit,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Host) publish(kind kernelevents.Kind, data map[string]interface{}) {
	if h.broker != nil {
		h.broker.Publish(kernelevents.Event{Kind: kind, Data: data})
	}
}

// Load validates m, rejects an already-loaded id, constructs a sandbox
// context, and initializes instance. On success the plugin enters state
// Enabled; on any failure nothing is inserted.
func (h *Host) Load(m *manifest.Manifest, instance PluginInstance) LoadResult {
	if err := manifest.Validate(m); err != nil {
		h.audit.Append(auditlog.Entry{PluginID: m.ID, EventType: auditlog.EventError, Details: map[string]interface{}{"error": err.Error()}})
		return LoadResult{Success: false, PluginID: m.ID, Reason: err.Error()}
	}

	h.mu.Lock()
	if _, exists := h.plugins[m.ID]; exists {
		h.mu.Unlock()
		return LoadResult{Success: false, PluginID: m.ID, Reason: "plugin already loaded"}
	}
	h.mu.Unlock()

	ctx, err := h.sandbox.NewContext(m.ID, m)
	if err != nil {
		h.audit.Append(auditlog.Entry{PluginID: m.ID, EventType: auditlog.EventError, Details: map[string]interface{}{"error": err.Error()}})
		return LoadResult{Success: false, PluginID: m.ID, Reason: err.Error()}
	}

	if err := instance.Initialize(ctx); err != nil {
		h.audit.Append(auditlog.Entry{PluginID: m.ID, EventType: auditlog.EventError, Details: map[string]interface{}{"error": err.Error()}})
		return LoadResult{Success: false, PluginID: m.ID, Reason: err.Error()}
	}

	h.mu.Lock()
	if _, exists := h.plugins[m.ID]; exists {
		h.mu.Unlock()
		ctx.Dispose()
		return LoadResult{Success: false, PluginID: m.ID, Reason: "plugin already loaded"}
	}
	h.plugins[m.ID] = &LoadedPlugin{Manifest: m, Instance: instance, Context: ctx, LoadedAt: time.Now().UTC(), State: StateEnabled}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.PluginsLoaded.Inc()
	}
	h.audit.Append(auditlog.Entry{PluginID: m.ID, EventType: auditlog.EventLoaded})
	h.publish(kernelevents.PluginLoaded, map[string]interface{}{"plugin_id": m.ID})
	return LoadResult{Success: true, PluginID: m.ID}
}

// Unload atomically removes id from the registry, then disposes the
// instance and context. Disposal failures are audited but do not cause
// the plugin to be re-inserted.
func (h *Host) Unload(id string) bool {
	h.mu.Lock()
	lp, exists := h.plugins[id]
	if exists {
		delete(h.plugins, id)
	}
	h.mu.Unlock()
	if !exists {
		return false
	}

	if disposer, ok := lp.Instance.(interface{ Dispose() error }); ok {
		if err := disposer.Dispose(); err != nil {
			h.audit.Append(auditlog.Entry{PluginID: id, EventType: auditlog.EventError, Details: map[string]interface{}{"error": err.Error(), "phase": "dispose_instance"}})
		}
	}
	lp.Context.Dispose()

	if h.metrics != nil {
		h.metrics.PluginsLoaded.Dec()
	}
	h.audit.Append(auditlog.Entry{PluginID: id, EventType: auditlog.EventUnloaded})
	h.publish(kernelevents.PluginUnloaded, map[string]interface{}{"plugin_id": id})
	return true
}

// Enable transitions id to Enabled. A Faulted plugin is left Faulted and
// Enable returns false.
func (h *Host) Enable(id string) bool {
	return h.setState(id, StateEnabled, auditlog.EventEnabled, kernelevents.Kind("plugin_enabled"))
}

// Disable transitions id to Disabled. Disabled plugins are loaded but
// cannot execute.
func (h *Host) Disable(id string) bool {
	return h.setState(id, StateDisabled, auditlog.EventDisabled, kernelevents.Kind("plugin_disabled"))
}

func (h *Host) setState(id string, state State, evt auditlog.EventType, kind kernelevents.Kind) bool {
	h.mu.Lock()
	lp, exists := h.plugins[id]
	if exists && lp.State == StateFaulted {
		h.mu.Unlock()
		return false
	}
	if exists {
		lp.State = state
	}
	h.mu.Unlock()
	if !exists {
		return false
	}
	h.audit.Append(auditlog.Entry{PluginID: id, EventType: evt})
	h.publish(kind, map[string]interface{}{"plugin_id": id})
	return true
}

// executeOutcome carries instance.Execute's result across the goroutine
// boundary in Execute's cancellation race.
type executeOutcome struct {
	output interface{}
	err    error
}

// Execute runs actionID on pluginID with parameters. Precondition: the
// plugin exists and is Enabled. On instance.Execute failure, the host
// audits ActionFailed, raises PluginError, and moves the plugin to
// Faulted; faulted plugins must be explicitly unloaded and re-loaded.
//
// If ctx is cancelled before instance.Execute returns, Execute audits
// ActionFailed with a Cancelled reason and returns immediately without
// waiting for the plugin; the plugin is left Enabled, not Faulted, since
// cancellation is the caller's decision, not plugin misbehavior. The
// plugin's goroutine keeps running in the background and its eventual
// result, if any, is discarded.
func (h *Host) Execute(ctx context.Context, pluginID, actionID string, parameters map[string]interface{}) (ExecutionResult, error) {
	h.mu.Lock()
	lp, exists := h.plugins[pluginID]
	if !exists {
		h.mu.Unlock()
		return ExecutionResult{}, fmt.Errorf("plugin %s is not loaded", pluginID)
	}
	if lp.State != StateEnabled {
		h.mu.Unlock()
		return ExecutionResult{}, fmt.Errorf("plugin %s is not enabled (state=%s)", pluginID, lp.State)
	}
	instance := lp.Instance
	pctx := lp.Context
	h.mu.Unlock()

	executionID := uuid.NewString()
	h.audit.Append(auditlog.Entry{PluginID: pluginID, EventType: auditlog.EventActionStarted, ActionID: actionID, ExecutionID: executionID})

	start := time.Now()
	done := make(chan executeOutcome, 1)
	go func() {
		output, err := instance.Execute(ctx, actionID, parameters, pctx)
		done <- executeOutcome{output: output, err: err}
	}()

	select {
	case <-ctx.Done():
		duration := time.Since(start)
		success := false
		h.audit.Append(auditlog.Entry{
			PluginID: pluginID, EventType: auditlog.EventActionFailed, ActionID: actionID,
			ExecutionID: executionID, Success: &success, Duration: duration,
			Details: map[string]interface{}{"reason": "Cancelled", "error": ctx.Err().Error()},
		})
		h.publish(kernelevents.PluginError, map[string]interface{}{"plugin_id": pluginID, "action": actionID, "reason": "Cancelled"})
		return ExecutionResult{
			PluginID: pluginID, ActionID: actionID, ExecutionID: executionID,
			Success: false, Error: "Cancelled", Duration: duration,
		}, kernelerrors.NewCancelledError(pluginID, actionID)

	case outcome := <-done:
		duration := time.Since(start)
		if outcome.err != nil {
			h.mu.Lock()
			if lp, exists := h.plugins[pluginID]; exists {
				lp.State = StateFaulted
			}
			h.mu.Unlock()

			success := false
			h.audit.Append(auditlog.Entry{
				PluginID: pluginID, EventType: auditlog.EventActionFailed, ActionID: actionID,
				ExecutionID: executionID, Success: &success, Duration: duration,
				Details: map[string]interface{}{"error": outcome.err.Error()},
			})
			if h.metrics != nil {
				h.metrics.PluginFaults.Inc()
			}
			h.publish(kernelevents.PluginError, map[string]interface{}{"plugin_id": pluginID, "action": actionID, "error": outcome.err.Error()})

			return ExecutionResult{
				PluginID: pluginID, ActionID: actionID, ExecutionID: executionID,
				Success: false, Error: outcome.err.Error(), Duration: duration,
			}, kernelerrors.NewPluginFaultError(outcome.err, pluginID, actionID)
		}

		success := true
		h.audit.Append(auditlog.Entry{
			PluginID: pluginID, EventType: auditlog.EventActionCompleted, ActionID: actionID,
			ExecutionID: executionID, Success: &success, Duration: duration,
		})

		return ExecutionResult{
			PluginID: pluginID, ActionID: actionID, ExecutionID: executionID,
			Success: true, Output: outcome.output, Duration: duration,
		}, nil
	}
}

// State returns id's current lifecycle state and whether it is loaded.
func (h *Host) State(id string) (State, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	lp, exists := h.plugins[id]
	if !exists {
		return "", false
	}
	return lp.State, true
}

// DisableAll is the operator kill-switch: synchronously disables every
// loaded plugin.
func (h *Host) DisableAll() {
	h.mu.Lock()
	ids := make([]string, 0, len(h.plugins))
	for id, lp := range h.plugins {
		lp.State = StateDisabled
		ids = append(ids, id)
	}
	h.mu.Unlock()

	for _, id := range ids {
		h.audit.Append(auditlog.Entry{PluginID: id, EventType: auditlog.EventDisabled})
		h.publish(kernelevents.Kind("plugin_disabled"), map[string]interface{}{"plugin_id": id})
	}
}

// Dispose iterates and disposes every loaded plugin, swallowing individual
// errors so one plugin's misbehaving disposal never blocks the rest.
func (h *Host) Dispose() {
	h.mu.Lock()
	ids := make([]string, 0, len(h.plugins))
	for id := range h.plugins {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	for _, id := range ids {
		h.Unload(id)
	}
}
