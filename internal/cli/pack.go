package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gzhole/toolguard/internal/guardspec"
)

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Manage guard packs",
	Long: `Manage toolguard guard packs.

Guard packs are YAML files of extra guards installed next to the builtin
ones by enforce. Packs live in <home>/.openclaw/guard-packs/; a pack whose
file name starts with "_" is disabled.

Examples:
  toolguard pack list                  # List installed packs
  toolguard pack enable cron-guard     # Enable a pack
  toolguard pack disable cron-guard    # Disable a pack
  toolguard pack show cron-guard       # Show pack details`,
}

var packListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed guard packs",
	RunE:  packList,
}

var packEnableCmd = &cobra.Command{
	Use:   "enable <pack-name>",
	Short: "Enable a disabled guard pack",
	Args:  cobra.ExactArgs(1),
	RunE:  packEnable,
}

var packDisableCmd = &cobra.Command{
	Use:   "disable <pack-name>",
	Short: "Disable a guard pack (prefix with underscore)",
	Args:  cobra.ExactArgs(1),
	RunE:  packDisable,
}

var packShowCmd = &cobra.Command{
	Use:   "show <pack-name>",
	Short: "Show the YAML of a guard pack",
	Args:  cobra.ExactArgs(1),
	RunE:  packShow,
}

var packsFlag string

func init() {
	packCmd.PersistentFlags().StringVar(&packsFlag, "packs", "", "Guard packs directory (default: <home>/.openclaw/guard-packs)")
	packCmd.AddCommand(packListCmd)
	packCmd.AddCommand(packEnableCmd)
	packCmd.AddCommand(packDisableCmd)
	packCmd.AddCommand(packShowCmd)
	rootCmd.AddCommand(packCmd)
}

// packsDir resolves the packs directory. Only commands that change packs
// pass create; read-only commands leave a missing directory missing.
func packsDir(create bool) (string, error) {
	cfg, err := loadConfig("", packsFlag)
	if err != nil {
		return "", err
	}
	if create {
		if err := os.MkdirAll(cfg.PacksDir, 0700); err != nil {
			return "", err
		}
	}
	return cfg.PacksDir, nil
}

func packList(cmd *cobra.Command, args []string) error {
	dir, err := packsDir(false)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	_, infos, err := guardspec.LoadPacks(dir, guardspec.Builtin())
	if err != nil {
		return fmt.Errorf("failed to load packs: %w", err)
	}

	if len(infos) == 0 {
		fmt.Fprintln(out, "No guard packs installed.")
		fmt.Fprintf(out, "\nTo install packs, copy YAML files to: %s\n", dir)
		return nil
	}

	fmt.Fprintln(out, "Installed Guard Packs:")
	fmt.Fprintln(out, strings.Repeat("─", 60))
	for _, info := range infos {
		fmt.Fprintf(out, "  %s  %-25s %s\n", mark(info.Enabled && info.Err == nil), info.Name, filepath.Base(info.Path))
		switch {
		case info.Err != nil:
			fmt.Fprintf(out, "       error: %v\n", info.Err)
		case info.Version != "":
			fmt.Fprintf(out, "       v%s  (%d guards)\n", info.Version, info.GuardCount)
		default:
			fmt.Fprintf(out, "       %d guards\n", info.GuardCount)
		}
	}
	fmt.Fprintln(out, strings.Repeat("─", 60))
	fmt.Fprintf(out, "\nPacks directory: %s\n", dir)
	return nil
}

// packFile finds the pack file for name, enabled or not.
func packFile(dir, name string) (path string, enabled bool, err error) {
	for _, ext := range []string{".yaml", ".yml"} {
		p := filepath.Join(dir, name+ext)
		if _, err := os.Stat(p); err == nil {
			return p, true, nil
		}
		p = filepath.Join(dir, "_"+name+ext)
		if _, err := os.Stat(p); err == nil {
			return p, false, nil
		}
	}
	return "", false, fmt.Errorf("pack '%s' not found in %s", name, dir)
}

func packEnable(cmd *cobra.Command, args []string) error {
	dir, err := packsDir(true)
	if err != nil {
		return err
	}
	name := args[0]
	path, enabled, err := packFile(dir, name)
	if err != nil {
		return err
	}
	if enabled {
		fmt.Fprintf(cmd.OutOrStdout(), "Pack '%s' is already enabled.\n", name)
		return nil
	}
	target := filepath.Join(dir, strings.TrimPrefix(filepath.Base(path), "_"))
	if err := os.Rename(path, target); err != nil {
		return fmt.Errorf("failed to enable pack: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Pack '%s' enabled.\n", mark(true), name)
	return nil
}

func packDisable(cmd *cobra.Command, args []string) error {
	dir, err := packsDir(true)
	if err != nil {
		return err
	}
	name := args[0]
	path, enabled, err := packFile(dir, name)
	if err != nil {
		return err
	}
	if !enabled {
		fmt.Fprintf(cmd.OutOrStdout(), "Pack '%s' is already disabled.\n", name)
		return nil
	}
	target := filepath.Join(dir, "_"+filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		return fmt.Errorf("failed to disable pack: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Pack '%s' disabled.\n", mark(false), name)
	return nil
}

func packShow(cmd *cobra.Command, args []string) error {
	dir, err := packsDir(false)
	if err != nil {
		return err
	}
	path, _, err := packFile(dir, args[0])
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
