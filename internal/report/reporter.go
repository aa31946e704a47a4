package report

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/gzhole/toolguard/internal/patch"
	"github.com/gzhole/toolguard/internal/redact"
)

// Dispatcher delivers an alert. Implementations must bound their own
// latency and must not retry.
type Dispatcher interface {
	Send(ctx context.Context, text string) error
}

// Skip reasons. A dispatcher returning one of these did not attempt
// delivery; the reporter logs ALERT_SKIPPED instead of ALERT_FAILED.
var (
	ErrMissingCredentials = errors.New("missing telegram token/chat_id")
	ErrConfigRead         = errors.New("config read failed")
)

// Reporter writes run summaries and raises alerts for degraded runs.
type Reporter struct {
	Log        *RunLog
	Dispatcher Dispatcher // nil disables alerting
	Paths      []redact.PathPrefix
	Diag       *zap.Logger
}

// Report logs s and, when the run has failures, dispatches an alert.
// Alert problems are logged, never returned; the only error is a failure
// to write the run log itself.
func (r *Reporter) Report(ctx context.Context, s patch.RunSummary) error {
	diag := r.Diag
	if diag == nil {
		diag = zap.NewNop()
	}

	if err := r.Log.Log(SummaryLine(s)); err != nil {
		return fmt.Errorf("failed to write run log: %w", err)
	}
	for _, f := range s.Failures {
		if err := r.Log.Log(f); err != nil {
			return fmt.Errorf("failed to write run log: %w", err)
		}
	}
	if !s.Failed() {
		return nil
	}

	if r.Dispatcher == nil {
		return r.Log.Log("ALERT_SKIPPED no dispatcher configured")
	}
	text := redact.Sanitize(AlertText(s), r.Paths...)
	err := r.Dispatcher.Send(ctx, text)
	switch {
	case err == nil:
		diag.Info("alert sent", zap.String("run_id", s.RunID))
		return r.Log.Log("ALERT_SENT telegram (sanitised)")
	case errors.Is(err, ErrMissingCredentials), errors.Is(err, ErrConfigRead):
		diag.Warn("alert skipped", zap.String("run_id", s.RunID), zap.Error(err))
		return r.Log.Log("ALERT_SKIPPED " + redact.Sanitize(err.Error(), r.Paths...))
	default:
		diag.Warn("alert failed", zap.String("run_id", s.RunID), zap.Error(err))
		return r.Log.Log("ALERT_FAILED " + redact.Sanitize(err.Error(), r.Paths...))
	}
}

// SummaryLine is the run log line written for every run.
func SummaryLine(s patch.RunSummary) string {
	return fmt.Sprintf("SUMMARY run=%s patched=%d already=%d failures=%d",
		s.RunID, s.PatchedFiles, s.AlreadyPatchedFiles, len(s.Failures))
}

// AlertText is the human-readable alert for a degraded run, before
// sanitization.
func AlertText(s patch.RunSummary) string {
	return fmt.Sprintf("[ops-guard] Runtime guard enforcement issue: patched=%d, already=%d, issues=%d. Check ops-combined-report for details.",
		s.PatchedFiles, s.AlreadyPatchedFiles, len(s.Failures))
}
