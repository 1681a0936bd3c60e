package rpc

import "fmt"

// API version 2 added the read-only forwarding.query_account lookup.
const (
	rpcAPICurrentVersion      = 2
	rpcAPIMinSupportedVersion = 1
)

type rpcMethod struct {
	Name   string `json:"name"`
	Since  int    `json:"since"`
	Params string `json:"params,omitempty"`
}

var rpcMethods = []rpcMethod{
	{Name: "health_check", Since: 1},
	{Name: "rpc.version", Since: 1},
	{Name: "forwarding.ensure_account", Since: 1, Params: "recipient, channel?, fallback?, api_version?"},
	{Name: "forwarding.query_account", Since: 2, Params: "recipient, channel?, fallback?, api_version?"},
}

// validateMethodVersion checks a caller-pinned api_version against the server
// range and against the version that introduced method. Unpinned calls
// always get current behavior.
func validateMethodVersion(method string, v *int) *rpcError {
	if v == nil {
		return nil
	}
	switch {
	case *v < rpcAPIMinSupportedVersion:
		return &rpcError{Code: codeVersionDeprecated, Message: "rpc api version is deprecated and no longer supported"}
	case *v > rpcAPICurrentVersion:
		return &rpcError{Code: codeVersionTooNew, Message: "rpc api version is not supported by this server"}
	}
	for _, m := range rpcMethods {
		if m.Name == method && *v < m.Since {
			return &rpcError{
				Code:    codeMethodNotFound,
				Message: fmt.Sprintf("%s requires api_version >= %d", method, m.Since),
			}
		}
	}
	return nil
}

func rpcVersionInfo() map[string]any {
	return map[string]any{
		"current_version":       rpcAPICurrentVersion,
		"min_supported_version": rpcAPIMinSupportedVersion,
		"methods":               rpcMethods,
	}
}
