package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gzhole/toolguard/internal/config"
	"github.com/gzhole/toolguard/internal/guardspec"
	"github.com/gzhole/toolguard/internal/patch"
	"github.com/gzhole/toolguard/internal/ratelimit"
	"github.com/gzhole/toolguard/internal/report"
)

var (
	statusDir string
	statusAll bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which guards are installed and how toolguard is configured",
	Long: `Report, per runtime bundle, which guards are installed, plus the active
guard policy, guard packs and the last enforcement run.

By default only bundles that carry at least one guard are listed. Use --all
to list every scanned bundle.`,
	RunE: statusCommand,
}

func init() {
	statusCmd.Flags().StringVar(&statusDir, "dir", "", "Bundle directory (default: $TOOLGUARD_BUNDLE_DIR or "+config.DefaultBundleDir+")")
	statusCmd.Flags().BoolVar(&statusAll, "all", false, "List every scanned bundle")
	rootCmd.AddCommand(statusCmd)
}

func statusCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(statusDir, "")
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	specs, infos, err := guardspec.LoadPacks(cfg.PacksDir, guardspec.Builtin())
	if err != nil {
		return fmt.Errorf("failed to load guard packs: %w", err)
	}

	fmt.Fprintln(out, "toolguard status")
	fmt.Fprintln(out, strings.Repeat("─", 60))
	fmt.Fprintf(out, "  Home:        %s\n", cfg.Home)
	fmt.Fprintf(out, "  Bundle dir:  %s\n", cfg.BundleDir)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Guards:")
	engine := patch.NewEngine(specs)
	matrix, err := engine.Status(cfg.BundleDir)
	if err != nil {
		fmt.Fprintf(out, "  %s cannot scan bundles: %v\n", mark(false), err)
	} else {
		printGuardMatrix(out, specs, matrix, statusAll)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Policy:")
	printPolicy(out, cfg.PolicyPath)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Guard packs:")
	if len(infos) == 0 {
		fmt.Fprintf(out, "  none (%s)\n", cfg.PacksDir)
	}
	for _, info := range infos {
		switch {
		case info.Err != nil:
			fmt.Fprintf(out, "  %s %s: %v\n", mark(false), info.Name, info.Err)
		case !info.Enabled:
			fmt.Fprintf(out, "  %s %s (disabled)\n", mark(false), info.Name)
		default:
			fmt.Fprintf(out, "  %s %s (%d guards)\n", mark(true), info.Name, info.GuardCount)
		}
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Last run:")
	printLastRun(out, cfg.RunLogPath)
	return nil
}

func printGuardMatrix(out io.Writer, specs []guardspec.Spec, matrix map[string]map[string]bool, all bool) {
	names := make([]string, 0, len(matrix))
	for name := range matrix {
		names = append(names, name)
	}
	sort.Strings(names)

	shown := 0
	for _, name := range names {
		installed := matrix[name]
		var have []string
		for _, s := range specs {
			if installed[s.ID] {
				have = append(have, s.ID)
			}
		}
		if len(have) == 0 && !all {
			continue
		}
		shown++
		fmt.Fprintf(out, "  %s %-40s %s\n", mark(len(have) > 0), name, strings.Join(have, ", "))
	}
	if shown == 0 {
		fmt.Fprintf(out, "  %s no guarded bundles among %d scanned\n", mark(false), len(names))
	}
}

func printPolicy(out io.Writer, path string) {
	p, err := ratelimit.LoadPolicy(path)
	if err != nil {
		fmt.Fprintf(out, "  %s %s: %v\n", mark(false), path, err)
		return
	}
	source := "built-in defaults"
	if _, err := os.Stat(path); err == nil {
		source = path
	}
	fmt.Fprintf(out, "  Source:      %s\n", source)
	fmt.Fprintf(out, "  Window:      %s\n", p.Window())
	fmt.Fprintf(out, "  web_search:  %d per window, %d per query\n", p.WebSearch.Total, p.WebSearch.PerKey)
	fmt.Fprintf(out, "  web_fetch:   %d per window, %d per URL\n", p.WebFetch.Total, p.WebFetch.PerKey)
	fmt.Fprintf(out, "  read:        %d per path per run, %d dated memory files per run\n", p.ReadRepeat, p.DateSweep)
	fmt.Fprintf(out, "  exec:        %d deny patterns\n", len(p.ExecPatterns))
}

func printLastRun(out io.Writer, path string) {
	entries, err := readRunLog(path)
	if err != nil {
		fmt.Fprintf(out, "  %s %v\n", mark(false), err)
		return
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if strings.HasPrefix(entries[i].Message, "SUMMARY ") {
			ok := strings.HasSuffix(entries[i].Message, " failures=0")
			fmt.Fprintf(out, "  %s %s %s\n", mark(ok), entries[i].Time.Format("2006-01-02 15:04:05Z07:00"), entries[i].Message)
			return
		}
	}
	fmt.Fprintf(out, "  no runs recorded in %s\n", path)
}

func readRunLog(path string) ([]report.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return report.ReadEntries(f)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
