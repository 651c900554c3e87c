package enforce

import (
	"fmt"
	"net/http"
)

// CodeMCPDenied is the stable error code for tool/bridge denials.
const CodeMCPDenied = "mcp_denied"

// Default header names identifying a tool/bridge-mediated call.
const (
	DefaultMCPServerHeader = "X-MCP-Server"
	DefaultMCPToolHeader   = "X-MCP-Tool"
)

// MCPConfig names the headers inspected for tool/bridge identification.
type MCPConfig struct {
	ServerHeader string
	ToolHeader   string
}

// headerNames returns the configured header names with defaults applied.
func (c MCPConfig) headerNames() (server, tool string) {
	server, tool = c.ServerHeader, c.ToolHeader
	if server == "" {
		server = DefaultMCPServerHeader
	}
	if tool == "" {
		tool = DefaultMCPToolHeader
	}
	return server, tool
}

// HeaderValues extracts the tool server and tool action names from the
// request headers. Callers keying caches on a request must include these:
// they are evaluator inputs just like the path.
func (c MCPConfig) HeaderValues(headers http.Header) (server, tool string) {
	serverHeader, toolHeader := c.headerNames()
	if headers == nil {
		return "", ""
	}
	return headers.Get(serverHeader), headers.Get(toolHeader)
}

// EvaluateMCP gates tool/bridge-mediated calls against an allowlist of
// server and tool names. The dimension only activates when the designated
// headers are present; plain calls pass through.
func EvaluateMCP(headers http.Header, allowedServers, allowedTools []string, cfg MCPConfig) Verdict {
	server, tool := cfg.HeaderValues(headers)

	if server == "" && tool == "" {
		return allow(DimensionMCP)
	}

	if server != "" && !listPermits(allowedServers, server) {
		return deny(DimensionMCP, CodeMCPDenied,
			fmt.Sprintf("tool server %q is not on the allowlist", server))
	}
	if tool != "" && !listPermits(allowedTools, tool) {
		return deny(DimensionMCP, CodeMCPDenied,
			fmt.Sprintf("tool action %q is not on the allowlist", tool))
	}
	return allow(DimensionMCP)
}

// listPermits reports whether the allowlist permits the value. An empty
// list permits everything.
func listPermits(list []string, value string) bool {
	if len(list) == 0 {
		return true
	}
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
