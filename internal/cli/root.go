package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/gzhole/toolguard/internal/config"
	"github.com/gzhole/toolguard/internal/logger"
)

var (
	homeDir    string
	configPath string
	logPath    string
	policyPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "toolguard",
	Short: "toolguard - runtime tool-call guards for OpenClaw",
	Long: `toolguard installs rate-limit and deny-list guards into the OpenClaw
runtime bundles and enforces the same policy in front of MCP servers.

It bounds how often an agent may call web_search, web_fetch and read within
a session window, and blocks gateway service-control commands from exec.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "OpenClaw home (default: $OPENCLAW_HOME or $HOME)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to openclaw.json (default: <home>/.openclaw/openclaw.json)")
	rootCmd.PersistentFlags().StringVar(&logPath, "log", "", "Path to the run log (default: <home>/.openclaw/logs/websearch-guard.log)")
	rootCmd.PersistentFlags().StringVar(&policyPath, "policy", "", "Path to guard policy YAML (default: <home>/.openclaw/guard-policy.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Diagnostic log level: debug, info, warn, error")
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}
	if ee, ok := err.(*ExitError); ok {
		if ee.Err != nil {
			fmt.Fprintln(os.Stderr, "toolguard:", ee.Err)
		}
		return ee.Code
	}
	fmt.Fprintln(os.Stderr, "toolguard:", err)
	return 1
}

// ExitError carries a specific exit status out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func loadConfig(bundleDir, packsDir string) (*config.Config, error) {
	cfg, err := config.Load(config.Options{
		Home:       homeDir,
		ConfigPath: configPath,
		LogPath:    logPath,
		PolicyPath: policyPath,
		BundleDir:  bundleDir,
		PacksDir:   packsDir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func diagLogger() (*zap.Logger, error) {
	return logger.NewDiagnostic(logLevel)
}

// fancy reports whether stdout is a terminal that gets icons.
func fancy() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func mark(ok bool) string {
	switch {
	case !fancy() && ok:
		return "[ok]"
	case !fancy():
		return "[--]"
	case ok:
		return "\xe2\x9c\x85" // check mark
	default:
		return "\xe2\x9d\x8c" // cross mark
	}
}
