// Package approval asks the operator to confirm a change before it is
// written to a live installation.
package approval

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

type Result struct {
	Approved   bool
	UserAction string
}

// Prompt describes the pending change.
type Prompt struct {
	Title   string
	Target  string
	Changes []string
}

func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// AskTerminal prompts on the process terminal. Without a terminal the
// change is refused.
func AskTerminal(p Prompt) Result {
	if !IsInteractive() {
		return Result{
			Approved:   false,
			UserAction: "auto_deny_non_interactive",
		}
	}
	return Ask(os.Stdin, os.Stderr, p)
}

// Ask shows p on out and reads the answer from in, re-asking until the
// answer is yes or no.
func Ask(in io.Reader, out io.Writer, p Prompt) Result {
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintf(out, "║  %-60s║\n", "CONFIRM: "+p.Title)
	fmt.Fprintln(out, "╚══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(out, "")
	if p.Target != "" {
		fmt.Fprintf(out, "Target: %s\n", p.Target)
		fmt.Fprintln(out, "")
	}

	if len(p.Changes) > 0 {
		fmt.Fprintln(out, "Pending changes:")
		for _, c := range p.Changes {
			fmt.Fprintf(out, "  • %s\n", c)
		}
		fmt.Fprintln(out, "")
	}

	reader := bufio.NewReader(in)
	for {
		fmt.Fprint(out, "Apply these changes? [y/n]: ")
		input, err := reader.ReadString('\n')
		if err != nil && input == "" {
			return Result{
				Approved:   false,
				UserAction: "error_reading_input",
			}
		}

		switch strings.TrimSpace(strings.ToLower(input)) {
		case "y", "yes", "a", "approve":
			return Result{Approved: true, UserAction: "approve"}
		case "n", "no", "d", "deny":
			return Result{Approved: false, UserAction: "deny"}
		default:
			if err != nil {
				return Result{Approved: false, UserAction: "error_reading_input"}
			}
			fmt.Fprintln(out, "Invalid input. Please enter 'y' to apply or 'n' to cancel.")
		}
	}
}
