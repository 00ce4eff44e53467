// Copyright 2025 James Ross
package sdk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/incontrol/trust-kernel/internal/auditlog"
	"github.com/incontrol/trust-kernel/internal/host"
	"github.com/incontrol/trust-kernel/internal/manifest"
	"github.com/incontrol/trust-kernel/internal/sandbox"
)

func greetCap() manifest.Capability {
	return manifest.Capability{ToolID: "greet", Name: "Greet", Description: "says hello"}
}

func TestHandleDispatchesToRegisteredHandler(t *testing.T) {
	p := New().Handle(greetCap(), func(ctx context.Context, params map[string]interface{}, pctx *sandbox.PluginContext) (interface{}, error) {
		return "hello " + params["who"].(string), nil
	})

	out, err := p.Execute(context.Background(), "greet", map[string]interface{}{"who": "world"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestExecuteUnknownActionFails(t *testing.T) {
	p := New()
	_, err := p.Execute(context.Background(), "missing", nil, nil)
	assert.Error(t, err)
}

func TestCapabilitiesReflectRegistrationOrder(t *testing.T) {
	p := New().
		Handle(manifest.Capability{ToolID: "a", Name: "A", Description: "a"}, nil).
		Handle(manifest.Capability{ToolID: "b", Name: "B", Description: "b"}, nil)

	caps := p.Capabilities()
	require.Len(t, caps, 2)
	assert.Equal(t, "a", caps[0].ToolID)
	assert.Equal(t, "b", caps[1].ToolID)
}

func TestReRegisteringToolIDDoesNotDuplicateCapability(t *testing.T) {
	p := New().
		Handle(greetCap(), nil).
		Handle(greetCap(), nil)
	assert.Len(t, p.Capabilities(), 1)
}

func TestPluginRunsUnderHost(t *testing.T) {
	audit := auditlog.New(100)
	sb := sandbox.New(audit, t.TempDir())
	h := host.New(sb, audit)

	p := New().
		OnInitialize(func(pctx *sandbox.PluginContext) error { return nil }).
		Handle(greetCap(), func(ctx context.Context, params map[string]interface{}, pctx *sandbox.PluginContext) (interface{}, error) {
			return "hi", nil
		})

	m := &manifest.Manifest{
		ID: "com.x.greeter", Version: "1.0.0", Name: "Greeter", Author: "X",
		Description: "says hello", RiskLevel: manifest.RiskReadOnly,
		Capabilities: p.Capabilities(),
	}
	require.True(t, h.Load(m, p).Success)

	res, err := h.Execute(context.Background(), m.ID, "greet", nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "hi", res.Output)
}
