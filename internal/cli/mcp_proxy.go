package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gzhole/toolguard/internal/logger"
	"github.com/gzhole/toolguard/internal/mcp"
	"github.com/gzhole/toolguard/internal/metrics"
	"github.com/gzhole/toolguard/internal/ratelimit"
)

var (
	mcpSession     string
	mcpRun         string
	mcpAliases     []string
	mcpMetricsAddr string
	mcpAuditLog    string
)

var mcpProxyCmd = &cobra.Command{
	Use:   "mcp-proxy -- <server-command> [args...]",
	Short: "MCP stdio proxy that rate-limits tool calls",
	Long: `Starts a transparent MCP proxy between a client and an MCP server. Every
tools/call is checked against the guard policy before it reaches the server:
over-limit search and fetch calls, denied exec commands and repeated reads
are answered by the proxy instead of the server.

All other MCP messages (tools/list, notifications, responses) are forwarded
unchanged.

Usage in a client MCP config:
  "command": "toolguard mcp-proxy --alias read_file=read -- npx -y @modelcontextprotocol/server-filesystem /path"`,
	Args: cobra.MinimumNArgs(1),
	RunE: mcpProxyCommand,
}

func init() {
	mcpProxyCmd.Flags().StringVar(&mcpSession, "session", "", "Session key for calls without _meta.sessionKey (default: "+ratelimit.GlobalSession+")")
	mcpProxyCmd.Flags().StringVar(&mcpRun, "run", "", "Run id for calls without _meta.sessionId/runId (default: random)")
	mcpProxyCmd.Flags().StringSliceVar(&mcpAliases, "alias", nil, "Map a server tool onto a guarded tool, e.g. read_file=read")
	mcpProxyCmd.Flags().StringVar(&mcpMetricsAddr, "metrics-addr", "", "Serve /metrics and /healthz on this address")
	mcpProxyCmd.Flags().StringVar(&mcpAuditLog, "audit-log", "", "Decision log path (default: <home>/.openclaw/logs/guard-decisions.jsonl)")
	rootCmd.AddCommand(mcpProxyCmd)
}

func parseAliases(pairs []string) (map[string]string, error) {
	aliases := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		from, to, ok := strings.Cut(pair, "=")
		from, to = strings.TrimSpace(from), strings.TrimSpace(to)
		if !ok || from == "" || to == "" {
			return nil, fmt.Errorf("invalid alias %q, want server_tool=guarded_tool", pair)
		}
		aliases[from] = to
	}
	return aliases, nil
}

func mcpProxyCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig("", "")
	if err != nil {
		return err
	}
	diag, err := diagLogger()
	if err != nil {
		return err
	}
	defer func() { _ = diag.Sync() }()

	aliases, err := parseAliases(mcpAliases)
	if err != nil {
		return err
	}

	policy, err := ratelimit.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		diag.Warn("guard policy load failed, using defaults", zap.String("path", cfg.PolicyPath), zap.Error(err))
		policy = ratelimit.DefaultPolicy()
	}

	reg := prometheus.NewRegistry()
	rec := metrics.NewRecorder(reg)
	limiter, err := ratelimit.NewLimiter(policy, ratelimit.NewStore(ratelimit.StoreOptions{}), ratelimit.WithRecorder(rec))
	if err != nil {
		return err
	}

	auditPath := mcpAuditLog
	if auditPath == "" {
		auditPath = cfg.AuditLogPath
	}
	audit, err := logger.New(auditPath, logger.Options{})
	if err != nil {
		return fmt.Errorf("failed to open decision log: %w", err)
	}
	defer func() { _ = audit.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if mcpMetricsAddr != "" {
		metricsCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := metrics.Serve(metricsCtx, mcpMetricsAddr, reg); err != nil {
				diag.Error("metrics server stopped", zap.String("addr", mcpMetricsAddr), zap.Error(err))
			}
		}()
	}

	runID := mcpRun
	if runID == "" {
		runID = uuid.NewString()
	}
	handler := &mcp.MessageHandler{
		Limiter: limiter,
		Session: mcpSession,
		RunID:   runID,
		Aliases: aliases,
		OnAudit: func(event logger.AuditEvent) {
			if err := audit.Log(event); err != nil {
				diag.Warn("decision log write failed", zap.Error(err))
			}
		},
		Log: diag,
	}

	diag.Info("mcp proxy starting",
		zap.Strings("server", args),
		zap.String("policy", cfg.PolicyPath),
		zap.String("run_id", runID),
		zap.Duration("window", policy.Window()))

	proxy := mcp.NewProxy(mcp.ProxyConfig{
		ServerCmd: args,
		Handler:   handler,
		Stderr:    os.Stderr,
		Log:       diag,
	})
	return proxy.Run(ctx)
}
