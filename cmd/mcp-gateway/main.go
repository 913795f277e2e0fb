// Command mcp-gateway runs a fixed-surface proxy in front of one or more
// downstream MCP servers, enforcing per-agent access policy on every call.
package main

import "github.com/roddutra/mcp-gateway/cmd/mcp-gateway/cmd"

func main() {
	cmd.Execute()
}
