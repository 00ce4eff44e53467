// Copyright 2025 James Ross
package sandbox

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/incontrol/trust-kernel/internal/auditlog"
	"github.com/incontrol/trust-kernel/internal/kernelerrors"
	"github.com/incontrol/trust-kernel/internal/manifest"
)

// NetworkMediator mediates a plugin's outbound network requests. Every
// attempt is audited with method, intent, and permitted flag regardless
// of outcome.
type NetworkMediator struct {
	ctx          *PluginContext
	audit        *auditlog.Log
	connectivity ConnectivityChecker
}

// IsAvailable reflects the connectivity manager's current state.
func (n *NetworkMediator) IsAvailable() bool {
	if n.connectivity == nil {
		return true
	}
	return n.connectivity.IsAvailable()
}

// Request mediates a network request to endpoint. It first checks
// endpoint against the manifest's network-permission scopes, then defers
// to the connectivity manager, which re-checks domain policy. It sends
// nothing: when every check passes it returns a nil body and a nil error.
func (n *NetworkMediator) Request(endpoint, method string, body []byte, intent string) ([]byte, error) {
	scoped := n.ctx.HasPermission(manifest.PermissionNetwork, manifest.AccessRead, endpoint)

	permitted := scoped
	var reason string
	if scoped {
		if host := hostOf(endpoint); host != "" && n.connectivity != nil {
			allowed, r := n.connectivity.CheckDomain(host)
			permitted = allowed
			reason = r
		}
	}

	forwardedIntent := fmt.Sprintf("[Plugin:%s] %s", n.ctx.PluginID, intent)
	n.audit.Append(auditlog.Entry{
		PluginID:     n.ctx.PluginID,
		EventType:    auditlog.EventResourceAccess,
		ResourceType: "network",
		Resource:     endpoint,
		Permitted:    boolPtr(permitted),
		Details: map[string]interface{}{
			"method": method,
			"intent": forwardedIntent,
			"reason": reason,
		},
	})

	if !permitted {
		return nil, kernelerrors.NewPermissionMissingError("network", endpoint, "network access not permitted")
	}
	if !n.IsAvailable() {
		return nil, kernelerrors.NewPermissionMissingError("network", endpoint, "connectivity unavailable")
	}
	return nil, nil
}

func hostOf(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func boolPtr(b bool) *bool { return &b }
