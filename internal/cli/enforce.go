package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gzhole/toolguard/internal/approval"
	"github.com/gzhole/toolguard/internal/config"
	"github.com/gzhole/toolguard/internal/guardspec"
	"github.com/gzhole/toolguard/internal/metrics"
	"github.com/gzhole/toolguard/internal/patch"
	"github.com/gzhole/toolguard/internal/report"
)

// exitDegraded is the status of a run that recorded failures.
const exitDegraded = 2

var (
	enforceDir         string
	enforceGlob        string
	enforcePacks       string
	enforceDryRun      bool
	enforceNoAlert     bool
	enforceJSON        bool
	enforceMetricsFile string
	enforceConfirm     bool
)

var enforceCmd = &cobra.Command{
	Use:   "enforce",
	Short: "Install guards into the OpenClaw runtime bundles",
	Long: `Scan the OpenClaw bundle directory, install every guard that is missing,
upgrade outdated guards, and record the run in the run log.

The command is idempotent: a second run against the same bundles changes
nothing. It exits 2 when any failure was recorded (ambiguous anchor, no
bundles found, concurrent run, unwritable file) and sends a sanitised
Telegram alert using the bot configured in openclaw.json.

Examples:
  toolguard enforce                          # default bundle dir
  toolguard enforce --dir ./dist --dry-run   # preview against a copy
  toolguard enforce --confirm                # preview, then ask before writing
  toolguard enforce --metrics-file /var/lib/node_exporter/toolguard.prom`,
	RunE: enforceCommand,
}

func init() {
	enforceCmd.Flags().StringVar(&enforceDir, "dir", "", "Bundle directory (default: $TOOLGUARD_BUNDLE_DIR or "+config.DefaultBundleDir+")")
	enforceCmd.Flags().StringVar(&enforceGlob, "glob", patch.DefaultGlob, "Artifact pattern relative to the bundle directory")
	enforceCmd.Flags().StringVar(&enforcePacks, "packs", "", "Guard packs directory (default: <home>/.openclaw/guard-packs)")
	enforceCmd.Flags().BoolVar(&enforceDryRun, "dry-run", false, "Report outcomes without writing bundles, log or alert")
	enforceCmd.Flags().BoolVar(&enforceNoAlert, "no-alert", false, "Never send an alert")
	enforceCmd.Flags().BoolVar(&enforceJSON, "json", false, "Print the run summary as JSON")
	enforceCmd.Flags().BoolVar(&enforceConfirm, "confirm", false, "Preview changes and ask before writing (requires a terminal)")
	enforceCmd.Flags().StringVar(&enforceMetricsFile, "metrics-file", "", "Write run metrics in node_exporter textfile format")
	rootCmd.AddCommand(enforceCmd)
}

func enforceCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(enforceDir, enforcePacks)
	if err != nil {
		return err
	}
	diag, err := diagLogger()
	if err != nil {
		return err
	}
	defer func() { _ = diag.Sync() }()

	specs, infos, err := guardspec.LoadPacks(cfg.PacksDir, guardspec.Builtin())
	if err != nil {
		return fmt.Errorf("failed to load guard packs: %w", err)
	}
	for _, info := range infos {
		if info.Err != nil {
			diag.Warn("guard pack skipped", zap.String("pack", info.Path), zap.Error(info.Err))
		}
	}

	engine := patch.NewEngine(specs)
	engine.Glob = enforceGlob
	engine.DryRun = enforceDryRun
	engine.Log = diag

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if enforceConfirm && !enforceDryRun {
		ok, err := confirmChanges(ctx, engine, cfg.BundleDir, approval.AskTerminal)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "enforce cancelled, nothing written")
			return nil
		}
	}

	summary, err := engine.Run(ctx, cfg.BundleDir)
	if err != nil {
		return err
	}

	if enforceJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			return err
		}
	}

	if enforceDryRun {
		if !enforceJSON {
			printDryRun(cmd, summary)
		}
	} else {
		if err := reportRun(ctx, cmd, cfg, summary, diag); err != nil {
			return err
		}
	}

	if enforceMetricsFile != "" {
		reg := prometheus.NewRegistry()
		rec := metrics.NewRecorder(reg)
		rec.ObserveRun(summary.PatchedFiles, summary.AlreadyPatchedFiles, len(summary.Failures), time.Now())
		if err := metrics.WriteTextfile(enforceMetricsFile, reg); err != nil {
			diag.Warn("failed to write metrics file", zap.String("path", enforceMetricsFile), zap.Error(err))
		}
	}

	if summary.Failed() {
		return &ExitError{Code: exitDegraded}
	}
	return nil
}

// confirmChanges previews a run and asks whether to apply it. A run that
// would change nothing needs no confirmation.
func confirmChanges(ctx context.Context, engine *patch.Engine, dir string, ask func(approval.Prompt) approval.Result) (bool, error) {
	preview := *engine
	preview.DryRun = true
	planned, err := preview.Run(ctx, dir)
	if err != nil {
		return false, err
	}

	var changes []string
	for _, r := range planned.Results {
		if r.Outcome.Changed() {
			changes = append(changes, fmt.Sprintf("%s: %s %s", r.Artifact, r.GuardID, r.Outcome))
		}
	}
	if len(changes) == 0 {
		return true, nil
	}
	return ask(approval.Prompt{Title: "install guards", Target: dir, Changes: changes}).Approved, nil
}

func reportRun(ctx context.Context, cmd *cobra.Command, cfg *config.Config, summary patch.RunSummary, diag *zap.Logger) error {
	opts := report.RunLogOptions{}
	if !enforceJSON {
		opts.Echo = cmd.OutOrStdout()
	}
	runLog, err := report.OpenRunLog(cfg.RunLogPath, opts)
	if err != nil {
		return err
	}
	defer func() { _ = runLog.Close() }()

	reporter := &report.Reporter{
		Log:   runLog,
		Paths: cfg.SanitizePrefixes(),
		Diag:  diag,
	}
	if !enforceNoAlert {
		reporter.Dispatcher = report.NewTelegramDispatcher(telegramSource(cfg))
	}
	return reporter.Report(ctx, summary)
}

func telegramSource(cfg *config.Config) report.CredentialSource {
	return func() (report.TelegramCredentials, error) {
		tg, err := config.ReadTelegram(cfg.OpenClawConfig)
		if err != nil {
			return report.TelegramCredentials{}, err
		}
		return report.TelegramCredentials{BotToken: tg.BotToken, ChatID: tg.ChatID}, nil
	}
}

func printDryRun(cmd *cobra.Command, summary patch.RunSummary) {
	out := cmd.OutOrStdout()
	for _, r := range summary.Results {
		if r.Outcome == patch.OutcomeNotApplicable {
			continue
		}
		fmt.Fprintf(out, "  %-40s %-14s %s\n", r.Artifact, r.GuardID, r.Outcome)
	}
	fmt.Fprintf(out, "dry run: patched=%d already=%d failures=%d\n",
		summary.PatchedFiles, summary.AlreadyPatchedFiles, len(summary.Failures))
	for _, f := range summary.Failures {
		fmt.Fprintf(out, "  %s\n", f)
	}
}
