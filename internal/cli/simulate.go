package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/gzhole/toolguard/internal/logger"
	"github.com/gzhole/toolguard/internal/ratelimit"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Replay tool calls from stdin through the guard policy",
	Long: `Read one JSON tool call per line from stdin and print one JSON decision
per line, applying the guard policy exactly as mcp-proxy would. Each call
may carry its own timestamp so window expiry can be replayed.

Input line:
  {"ts":"2026-01-02T03:04:05Z","tool":"web_search","session":"s1","run":"r1","args":{"query":"x"}}

Examples:
  toolguard simulate < calls.jsonl
  toolguard simulate --policy ./strict.yaml < calls.jsonl`,
	Args: cobra.NoArgs,
	RunE: simulateCommand,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
}

type simulatedCall struct {
	TS      string         `json:"ts,omitempty"`
	Tool    string         `json:"tool"`
	Session string         `json:"session,omitempty"`
	Run     string         `json:"run,omitempty"`
	Args    map[string]any `json:"args,omitempty"`
}

type simulatedDecision struct {
	Line     int                      `json:"line"`
	Tool     string                   `json:"tool"`
	Decision string                   `json:"decision"`
	Blocked  *ratelimit.BlockedResult `json:"blocked,omitempty"`
	Code     string                   `json:"code,omitempty"`
	Error    string                   `json:"error,omitempty"`
}

func simulateCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig("", "")
	if err != nil {
		return err
	}
	policy, err := ratelimit.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		return fmt.Errorf("failed to load guard policy: %w", err)
	}
	return simulate(cmd.InOrStdin(), cmd.OutOrStdout(), policy)
}

// simulate replays calls from r. Calls without a timestamp happen at the
// time of the previous call, or now for the first one.
func simulate(r io.Reader, w io.Writer, policy ratelimit.Policy) error {
	clock := time.Now()
	limiter, err := ratelimit.NewLimiter(policy, ratelimit.NewStore(ratelimit.StoreOptions{}),
		ratelimit.WithClock(func() time.Time { return clock }))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var in simulatedCall
		if err := json.Unmarshal(raw, &in); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if in.TS != "" {
			ts, err := time.Parse(time.RFC3339Nano, in.TS)
			if err != nil {
				return fmt.Errorf("line %d: invalid ts: %w", line, err)
			}
			clock = ts
		}

		out := simulatedDecision{Line: line, Tool: in.Tool}
		d, err := limiter.Check(ratelimit.Call{Tool: in.Tool, SessionKey: in.Session, RunID: in.Run, Args: in.Args})
		var runaway *ratelimit.RunawayLoopError
		switch {
		case errors.As(err, &runaway):
			out.Decision = logger.DecisionRunaway
			out.Code = runaway.Code
			out.Error = runaway.Error()
		case err != nil:
			out.Decision = logger.DecisionError
			out.Error = err.Error()
		case d.Allowed:
			out.Decision = logger.DecisionAllow
		default:
			out.Decision = logger.DecisionBlock
			out.Blocked = d.Blocked
			out.Code = d.Blocked.Error
		}
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
	return scanner.Err()
}
