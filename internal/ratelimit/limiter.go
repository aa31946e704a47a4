package ratelimit

import (
	"fmt"
	"regexp"
	"time"

	"github.com/gzhole/toolguard/internal/normalize"
)

var datedMemoryFile = regexp.MustCompile(`/memory/\d{4}-\d{2}-\d{2}\.md$`)

// Limiter decides, per tool call, whether the call may proceed.
type Limiter struct {
	policy   Policy
	execDeny []*regexp.Regexp
	store    *Store
	now      Clock
	rec      Recorder
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(c Clock) Option {
	return func(l *Limiter) { l.now = c }
}

// WithRecorder attaches a decision observer.
func WithRecorder(r Recorder) Option {
	return func(l *Limiter) { l.rec = r }
}

// NewLimiter builds a limiter over store. A nil store gets a fresh one.
func NewLimiter(p Policy, store *Store, opts ...Option) (*Limiter, error) {
	deny, err := p.compileExec()
	if err != nil {
		return nil, err
	}
	if store == nil {
		store = NewStore(StoreOptions{})
	}
	store.ensureIdleTTL(p.Window())
	l := &Limiter{
		policy:   p,
		execDeny: deny,
		store:    store,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Policy returns the limiter's policy.
func (l *Limiter) Policy() Policy { return l.policy }

// Store returns the limiter's state store.
func (l *Limiter) Store() *Store { return l.store }

// Check routes a call to its guard. Tools without a guard are allowed.
// A *RunawayLoopError is returned when the call must fail hard; any other
// error means the call arguments were unusable.
func (l *Limiter) Check(call Call) (Decision, error) {
	var (
		d   Decision
		err error
	)
	switch call.Tool {
	case ToolWebSearch:
		q, ok := normalize.StringArg(call.Args, "query")
		if !ok {
			return Decision{}, fmt.Errorf("%s: missing query argument", call.Tool)
		}
		d = l.CheckSearch(call.SessionKey, q)
	case ToolWebFetch:
		u, ok := normalize.StringArg(call.Args, "url")
		if !ok {
			return Decision{}, fmt.Errorf("%s: missing url argument", call.Tool)
		}
		d = l.CheckFetch(call.SessionKey, u)
	case ToolExec, ToolBash, ToolShell:
		cmd, ok := normalize.StringArg(call.Args, "command")
		if !ok {
			return Decision{}, fmt.Errorf("%s: missing command argument", call.Tool)
		}
		d = l.CheckExec(cmd)
	case ToolRead:
		d, err = l.CheckRead(call.RunID, normalize.ReadPath(call.Args))
		if err != nil {
			return Decision{}, err
		}
	default:
		return allow, nil
	}
	if l.rec != nil {
		l.rec.RecordDecision(call.Tool, d)
	}
	return d, nil
}

// CheckSearch applies the web_search window caps.
func (l *Limiter) CheckSearch(session, query string) Decision {
	caps := l.policy.WebSearch
	key := normalize.Query(query)
	total, keyCalls := l.count(ToolWebSearch, session, key)

	if total > caps.Total {
		return block(&BlockedResult{
			Error:      CodeSearchLimit,
			Message:    fmt.Sprintf("web_search limit reached (max %d per session window). Stop searching and answer with available information.", caps.Total),
			Limit:      caps.Total,
			TotalCalls: total,
			WindowMs:   l.policy.WindowMs,
		})
	}
	if keyCalls > caps.PerKey {
		return block(&BlockedResult{
			Error:      CodeSearchDuplicate,
			Message:    fmt.Sprintf("Duplicate web_search query limit reached (max %d for same normalized query per session window).", caps.PerKey),
			Limit:      caps.PerKey,
			Query:      query,
			QueryCalls: keyCalls,
			WindowMs:   l.policy.WindowMs,
		})
	}
	return allow
}

// CheckFetch applies the web_fetch window caps.
func (l *Limiter) CheckFetch(session, url string) Decision {
	caps := l.policy.WebFetch
	key := normalize.URL(url)
	total, keyCalls := l.count(ToolWebFetch, session, key)

	if total > caps.Total {
		return block(&BlockedResult{
			Error:      CodeFetchLimit,
			Message:    fmt.Sprintf("web_fetch limit reached (max %d per session window). Use local git/read for repo comparison; avoid repeated URL fetches.", caps.Total),
			Limit:      caps.Total,
			TotalCalls: total,
			WindowMs:   l.policy.WindowMs,
		})
	}
	if keyCalls > caps.PerKey {
		return block(&BlockedResult{
			Error:    CodeFetchDuplicate,
			Message:  fmt.Sprintf("Duplicate web_fetch URL limit reached (max %d for same URL per session window).", caps.PerKey),
			Limit:    caps.PerKey,
			URL:      normalize.Truncate(key, normalize.MaxKeyRunes),
			URLCalls: keyCalls,
			WindowMs: l.policy.WindowMs,
		})
	}
	return allow
}

// count advances the session window for one call and returns the totals
// after this call.
func (l *Limiter) count(tool, session, key string) (total, keyCalls int) {
	now := l.now()
	window := l.policy.Window()
	l.store.update(WindowKey(tool, session), func(w *SessionWindow) {
		if w.LastTs.IsZero() || now.Sub(w.LastTs) > window {
			w.reset(now)
		}
		w.Total++
		w.PerKey[key]++
		w.LastTs = now
		total, keyCalls = w.Total, w.PerKey[key]
	})
	return total, keyCalls
}

// CheckExec blocks service-lifecycle commands. The deny-list is matched
// against the flat command and against each parsed simple command, so
// quoting or escaping a word does not hide it. It keeps no state.
func (l *Limiter) CheckExec(command string) Decision {
	candidates := append([]string{normalize.Command(command)}, normalize.CommandSegments(command)...)
	for _, re := range l.execDeny {
		if matchesAny(re, candidates) {
			return block(&BlockedResult{
				Error:   CodeExecBlocked,
				Message: "Service-control commands are blocked from chat/agent exec. Use manual operator SSH for gateway lifecycle operations.",
				Code:    ServiceControlBlocked,
			})
		}
	}
	return allow
}

// CheckRead counts reads per run. Reads of dated memory files share one
// sweep counter per run; every path also has its own repeat counter.
// Exceeding either returns a *RunawayLoopError.
func (l *Limiter) CheckRead(runID, path string) (Decision, error) {
	if path == "" {
		return allow, nil
	}
	if runID == "" {
		runID = UnknownRun
	}

	if datedMemoryFile.MatchString(path) {
		n := l.store.incr(sweepKey(runID))
		if n > l.policy.DateSweep {
			return Decision{}, l.runaway(&RunawayLoopError{Code: CodeDateSweep, RunID: runID, Path: path, Count: n, Limit: l.policy.DateSweep})
		}
	}

	n := l.store.incr(readKey(runID, path))
	if n > l.policy.ReadRepeat {
		return Decision{}, l.runaway(&RunawayLoopError{Code: CodeReadRepeat, RunID: runID, Path: path, Count: n, Limit: l.policy.ReadRepeat})
	}
	return allow, nil
}

func matchesAny(re *regexp.Regexp, candidates []string) bool {
	for _, c := range candidates {
		if re.MatchString(c) {
			return true
		}
	}
	return false
}

func (l *Limiter) runaway(err *RunawayLoopError) error {
	if l.rec != nil {
		l.rec.RecordRunaway(err.Code)
	}
	return err
}
