// Package ratelimit is the call-time half of toolguard: the policy the
// injected bundle guards enforce, implemented natively for Go hosts.
//
// Window semantics are the simple reset-on-expiry kind the
// bundle guards use. A window resets once a call arrives more than the
// window duration after the previous call, so a burst straddling a reset
// can see up to twice the cap.
package ratelimit

import (
	"fmt"
	"time"
)

// Tool names the limiter knows about. Anything else is allowed untouched.
const (
	ToolWebSearch = "web_search"
	ToolWebFetch  = "web_fetch"
	ToolExec      = "exec"
	ToolBash      = "bash"
	ToolShell     = "shell"
	ToolRead      = "read"
)

// Stable error codes carried in blocked results.
const (
	CodeSearchLimit     = "web_search_limit_exceeded"
	CodeSearchDuplicate = "web_search_duplicate_query_limit_exceeded"
	CodeFetchLimit      = "web_fetch_limit_exceeded"
	CodeFetchDuplicate  = "web_fetch_duplicate_url_limit_exceeded"
	CodeExecBlocked     = "exec_command_blocked"

	CodeReadRepeat = "read_path_repeat_limit_exceeded"
	CodeDateSweep  = "memory_date_sweep_limit_exceeded"

	ServiceControlBlocked = "SERVICE_CONTROL_BLOCKED"
)

// Fallback keys used when the host supplies no identity.
const (
	GlobalSession = "__global__"
	UnknownRun    = "unknown"
)

// Call is one tool invocation as seen by the limiter.
type Call struct {
	Tool       string
	SessionKey string
	RunID      string
	Args       map[string]any
}

// Decision is the limiter's verdict. Blocked is set exactly when the call
// must not reach its handler.
type Decision struct {
	Allowed bool
	Blocked *BlockedResult
}

var allow = Decision{Allowed: true}

func block(r *BlockedResult) Decision {
	return Decision{Allowed: false, Blocked: r}
}

// BlockedResult is returned to the agent in place of the tool output. The
// JSON shape matches what the injected bundle guards return.
type BlockedResult struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Code       string `json:"code,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	TotalCalls int    `json:"totalCalls,omitempty"`
	Query      string `json:"query,omitempty"`
	QueryCalls int    `json:"queryCalls,omitempty"`
	URL        string `json:"url,omitempty"`
	URLCalls   int    `json:"urlCalls,omitempty"`
	WindowMs   int64  `json:"windowMs,omitempty"`
}

// RunawayLoopError is raised instead of a soft block when a read pattern
// indicates the agent is stuck in a loop.
type RunawayLoopError struct {
	Code  string
	RunID string
	Path  string
	Count int
	Limit int
}

func (e *RunawayLoopError) Error() string {
	if e.Code == CodeDateSweep {
		return fmt.Sprintf("%s: run=%s count=%d", e.Code, e.RunID, e.Count)
	}
	return fmt.Sprintf("%s: path=%s count=%d", e.Code, e.Path, e.Count)
}

// Clock returns the current time. Tests inject a fixed or stepping clock.
type Clock func() time.Time

// Recorder observes limiter verdicts, e.g. for metrics.
type Recorder interface {
	RecordDecision(tool string, d Decision)
	RecordRunaway(code string)
}
