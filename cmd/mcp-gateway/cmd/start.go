package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roddutra/mcp-gateway/internal/audit"
	"github.com/roddutra/mcp-gateway/internal/config"
	"github.com/roddutra/mcp-gateway/internal/gateway"
	"github.com/roddutra/mcp-gateway/internal/proxy"
	"github.com/roddutra/mcp-gateway/internal/ratelimit"
)

var auditDir string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gateway",
	Long: `Start the gateway. It loads the server catalog (.mcp.json) and the
per-agent rules (.mcp-gateway-rules.json), then speaks MCP over stdio to
its caller, proxying execute_tool calls to the downstream servers named in
the catalog.

Configuration paths can be overridden with GATEWAY_MCP_CONFIG and
GATEWAY_RULES; GATEWAY_DEFAULT_AGENT supplies an identity for callers that
omit agent_id. The catalog and rules files are watched for changes and hot
reloaded; a SIGHUP also triggers a reload.`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&auditDir, "audit-dir", ".", "directory for the JSONL audit log")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	debug := debugFlag || config.DebugEnabled()

	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	// stdout is reserved for the MCP stream; all logging goes to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop() // restore default handling: a second Ctrl+C kills immediately
	}()

	pidPath := pidFilePath()
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("failed to write PID file", "path", pidPath, "error", err)
	} else {
		defer os.Remove(pidPath)
	}

	if err := run(ctx, debug, logger); err != nil {
		return err
	}
	logger.Info("gateway stopped")
	return nil
}

// run wires the five gateway components together: Config & Validator,
// Policy Engine, Audit Sink, Proxy Manager, and the Gateway Server itself.
func run(ctx context.Context, debug bool, logger *slog.Logger) error {
	paths := config.ResolvePaths()
	if err := config.ValidateSettings(config.Settings{
		CatalogPath:  paths.CatalogPath,
		RulesPath:    paths.RulesPath,
		DefaultAgent: config.DefaultAgent(),
		Debug:        debug,
	}); err != nil {
		return fmt.Errorf("validate settings: %w", err)
	}

	catalog, rules, warnings, err := config.LoadAndValidate(paths.CatalogPath, paths.RulesPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	for _, w := range warnings {
		logger.Warn("cross-check warning", "agent", w.Agent, "section", w.Section, "server", w.Server)
	}
	logger.Info("configuration loaded",
		"catalog", paths.CatalogPath, "rules", paths.RulesPath,
		"servers", len(catalog.Servers), "agents", len(rules.Agents))

	metrics := audit.NewMetrics(prometheus.DefaultRegisterer)
	sink, err := audit.NewSink(audit.Options{Dir: auditDir, Logger: logger, Metrics: metrics})
	if err != nil {
		return fmt.Errorf("open audit sink: %w", err)
	}
	defer func() { _ = sink.Close() }()

	tokenCacheDir, err := oauthTokenCacheDir()
	if err != nil {
		return fmt.Errorf("resolve oauth token cache dir: %w", err)
	}
	mgr := proxy.NewManager(tokenCacheDir, nil, logger)
	defer mgr.Shutdown()

	limiter := rateLimiterFromEnv()
	if limiter != nil {
		limiter.StartCleanup(5*time.Minute, time.Hour)
		defer limiter.Stop()
	}

	srv := gateway.New(gateway.Options{
		Catalog:     catalog,
		Rules:       rules,
		CatalogPath: paths.CatalogPath,
		RulesPath:   paths.RulesPath,
		Proxy:       mgr,
		Audit:       sink,
		Debug:       debug,
		Logger:      logger,
		Limiter:     limiter,
	})

	shutdownTelemetry, err := setupTelemetry(debug, logger, srv.ReloadStatus)
	if err != nil {
		return fmt.Errorf("start telemetry: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	reloader, err := gateway.NewReloader(srv, paths.CatalogPath, paths.RulesPath)
	if err != nil {
		return fmt.Errorf("start config watcher: %w", err)
	}
	reloadCtx, cancelReload := context.WithCancel(ctx)
	defer cancelReload()
	go reloader.Run(reloadCtx)
	gateway.WatchSIGHUP(reloadCtx, reloader)

	logger.Info("gateway ready", "debug", debug)
	return srv.Run(ctx, os.Stdin, os.Stdout)
}

// rateLimiterFromEnv builds the optional execute_tool rate limiter from
// GATEWAY_RATE_LIMIT_RPS (events/second per agent+server) and
// GATEWAY_RATE_LIMIT_BURST. Unset or non-positive disables limiting.
func rateLimiterFromEnv() *ratelimit.Limiter {
	rps, err := strconv.Atoi(os.Getenv("GATEWAY_RATE_LIMIT_RPS"))
	if err != nil || rps <= 0 {
		return nil
	}
	burst, _ := strconv.Atoi(os.Getenv("GATEWAY_RATE_LIMIT_BURST"))
	return ratelimit.New(ratelimit.Config{Rate: rps, Burst: burst, Period: time.Second})
}

func oauthTokenCacheDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return homeDir + "/.mcp-gateway/oauth-tokens", nil
}
