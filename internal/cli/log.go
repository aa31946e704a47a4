package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gzhole/toolguard/internal/logger"
	"github.com/gzhole/toolguard/internal/report"
)

var (
	logDecisions      bool
	logFilterDecision string
	logFailures       bool
	logLast           int
	logSummary        bool
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "View the enforcement run log or the MCP decision log",
	Long: `View the enforcement run log, or with --decisions the JSONL log of tool
calls decided by mcp-proxy.

Examples:
  toolguard log                          # every run log line
  toolguard log --last 20                # last 20 lines
  toolguard log --failures               # failures and alert outcomes only
  toolguard log --decisions --decision BLOCK
  toolguard log --decisions --summary`,
	RunE: logCommand,
}

func init() {
	logCmd.Flags().BoolVar(&logDecisions, "decisions", false, "Show the mcp-proxy decision log instead of the run log")
	logCmd.Flags().StringVar(&logFilterDecision, "decision", "", "Filter decisions (ALLOW, BLOCK, RUNAWAY, ERROR)")
	logCmd.Flags().BoolVar(&logFailures, "failures", false, "Show only failure and alert lines of the run log")
	logCmd.Flags().IntVar(&logLast, "last", 0, "Show last N entries")
	logCmd.Flags().BoolVar(&logSummary, "summary", false, "Show decision counts")
	rootCmd.AddCommand(logCmd)
}

func logCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig("", "")
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if !logDecisions {
		entries, err := readRunLog(cfg.RunLogPath)
		if err != nil {
			return fmt.Errorf("failed to read run log: %w", err)
		}
		if logFailures {
			entries = failureEntries(entries)
		}
		entries = lastN(entries, logLast)
		if len(entries) == 0 {
			fmt.Fprintln(out, "No run log entries found.")
			return nil
		}
		for _, e := range entries {
			fmt.Fprintf(out, "%s %s\n", e.Time.Local().Format("2006-01-02 15:04:05"), e.Message)
		}
		return nil
	}

	events, err := readAuditLog(cfg.AuditLogPath)
	if err != nil {
		return fmt.Errorf("failed to read decision log: %w", err)
	}
	if len(events) == 0 {
		fmt.Fprintln(out, "No decision log entries found.")
		return nil
	}
	if logSummary {
		printSummary(out, events)
		return nil
	}
	printEvents(out, lastN(filterEvents(events, logFilterDecision), logLast))
	return nil
}

func lastN[T any](items []T, n int) []T {
	if n > 0 && n < len(items) {
		return items[len(items)-n:]
	}
	return items
}

func failureEntries(entries []report.Entry) []report.Entry {
	var out []report.Entry
	for _, e := range entries {
		if strings.HasPrefix(e.Message, "SUMMARY ") {
			continue
		}
		out = append(out, e)
	}
	return out
}

func readAuditLog(path string) ([]logger.AuditEvent, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var events []logger.AuditEvent
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		var event logger.AuditEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue // skip malformed lines
		}
		events = append(events, event)
	}
	return events, scanner.Err()
}

func filterEvents(events []logger.AuditEvent, decision string) []logger.AuditEvent {
	if decision == "" {
		return events
	}
	var filtered []logger.AuditEvent
	for _, e := range events {
		if strings.EqualFold(e.Decision, decision) {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

func printEvents(out io.Writer, events []logger.AuditEvent) {
	for _, e := range events {
		fmt.Fprintf(out, "%s %s %-10s %s\n", decisionIcon(e.Decision), formatTimestamp(e.Timestamp), e.Tool, e.Decision)
		if e.SessionKey != "" || e.RunID != "" {
			fmt.Fprintf(out, "     Session: %s  Run: %s\n", e.SessionKey, e.RunID)
		}
		if e.Code != "" {
			fmt.Fprintf(out, "     Code: %s\n", e.Code)
		}
		if e.Message != "" {
			fmt.Fprintf(out, "     Reason: %s\n", e.Message)
		}
		if e.Error != "" {
			fmt.Fprintf(out, "     Error: %s\n", e.Error)
		}
		fmt.Fprintln(out)
	}
}

func printSummary(out io.Writer, events []logger.AuditEvent) {
	counts := map[string]int{}
	perTool := map[string]int{}
	for _, e := range events {
		counts[e.Decision]++
		if e.Decision == logger.DecisionBlock || e.Decision == logger.DecisionRunaway {
			perTool[e.Tool]++
		}
	}

	rule := strings.Repeat("═", 43)
	fmt.Fprintln(out, rule)
	fmt.Fprintln(out, "  toolguard Decision Summary")
	fmt.Fprintln(out, rule)
	fmt.Fprintf(out, "  Total calls:     %d\n", len(events))
	fmt.Fprintf(out, "  ALLOW:           %d\n", counts[logger.DecisionAllow])
	fmt.Fprintf(out, "  BLOCK:           %d\n", counts[logger.DecisionBlock])
	fmt.Fprintf(out, "  RUNAWAY:         %d\n", counts[logger.DecisionRunaway])
	fmt.Fprintf(out, "  ERROR:           %d\n", counts[logger.DecisionError])
	fmt.Fprintln(out, rule)
	fmt.Fprintf(out, "  First call:      %s\n", formatTimestamp(events[0].Timestamp))
	fmt.Fprintf(out, "  Last call:       %s\n", formatTimestamp(events[len(events)-1].Timestamp))

	if len(perTool) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "  Stopped calls by tool:")
		for _, tool := range sortedKeys(perTool) {
			fmt.Fprintf(out, "    %-12s %d\n", tool, perTool[tool])
		}
	}
	fmt.Fprintln(out)
}

func decisionIcon(decision string) string {
	if !fancy() {
		return "[" + strings.ToLower(decision) + "]"
	}
	switch decision {
	case logger.DecisionBlock:
		return "\xf0\x9f\x9b\x91" // stop sign
	case logger.DecisionRunaway:
		return "\xf0\x9f\x94\x81" // repeat
	case logger.DecisionAllow:
		return "\xe2\x9c\x85" // check mark
	default:
		return "\xe2\x9d\x93" // question mark
	}
}

func formatTimestamp(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
