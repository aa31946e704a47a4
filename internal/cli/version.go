package cli

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gzhole/toolguard/internal/guardspec"
)

// Set at link time with -ldflags "-X github.com/gzhole/toolguard/internal/cli.Version=...".
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var versionShort bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print toolguard version and builtin guards",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		if versionShort {
			fmt.Fprintln(out, Version)
			return
		}
		ids := make([]string, 0, 4)
		for _, s := range guardspec.Builtin() {
			ids = append(ids, s.ID)
		}
		fmt.Fprintf(out, "toolguard %s (%s)\n", Version, runtime.Version())
		fmt.Fprintf(out, "  Commit: %s\n", GitCommit)
		fmt.Fprintf(out, "  Built:  %s\n", BuildDate)
		fmt.Fprintf(out, "  Guards: %s\n", strings.Join(ids, ", "))
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Print only the version number")
	rootCmd.AddCommand(versionCmd)
}
