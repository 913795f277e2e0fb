// Package cmd provides the CLI commands for the MCP gateway.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roddutra/mcp-gateway/internal/config"
)

var debugFlag bool

var rootCmd = &cobra.Command{
	Use:     "mcp-gateway",
	Version: Version,
	Short:   "mcp-gateway - a fixed-surface proxy for MCP servers",
	Long: `mcp-gateway aggregates one or more downstream MCP servers behind a
single fixed tool surface: list_servers, get_server_tools, and execute_tool
(plus get_gateway_status when run with --debug), enforcing a per-agent
wildcard allow/deny policy on every call.

Configuration is entirely environment-driven: two JSON documents describe
the downstream server catalog (.mcp.json) and the per-agent access rules
(.mcp-gateway-rules.json). Paths can be overridden with GATEWAY_MCP_CONFIG
and GATEWAY_RULES; GATEWAY_DEFAULT_AGENT sets the identity used when a
caller omits agent_id.

Commands:
  start     Start the gateway, speaking MCP over stdio
  stop      Stop a running gateway by PID file
  version   Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable get_gateway_status and verbose logging")
}

func initConfig() {
	config.InitViper()
}
