package patch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gzhole/toolguard/internal/guardspec"
)

// DefaultGlob selects the artifacts a run scans, relative to the bundle dir.
const DefaultGlob = "*.js"

// Engine runs guard installation against a directory of artifacts.
type Engine struct {
	Specs []guardspec.Spec

	// Glob is a doublestar pattern relative to the scanned dir.
	Glob string

	// LockPath overrides the run lock location (default <dir>/.toolguard.lock).
	LockPath string

	// DryRun computes outcomes without writing anything back.
	DryRun bool

	Log *zap.Logger
}

// NewEngine returns an engine for specs with default settings.
func NewEngine(specs []guardspec.Spec) *Engine {
	return &Engine{Specs: specs, Glob: DefaultGlob, Log: zap.NewNop()}
}

// Run scans dir, applies the engine's specs to every artifact and writes
// changed artifacts back atomically. Per-file problems become summary
// failures; the returned error is reserved for cancellation. Successful
// patches are never rolled back.
func (e *Engine) Run(ctx context.Context, dir string) (RunSummary, error) {
	summary := RunSummary{RunID: uuid.NewString()}
	log := e.logger().With(zap.String("run_id", summary.RunID))

	// A dry run writes nothing, the lock file included.
	if !e.DryRun {
		lockPath := e.LockPath
		if lockPath == "" {
			lockPath = filepath.Join(dir, LockFileName)
		}
		lock, err := AcquireLock(lockPath)
		if err != nil {
			if errors.Is(err, ErrLocked) {
				log.Warn("another enforcement run holds the lock")
				summary.Failures = append(summary.Failures, FailureRunLocked)
				return summary, nil
			}
			// The bundle dir itself may be missing; let the scan report it.
			log.Warn("run lock unavailable", zap.Error(err))
		} else {
			defer func() { _ = lock.Release() }()
		}
	}

	names, err := e.scan(dir)
	if err != nil {
		log.Warn("artifact scan failed", zap.Error(err))
	}
	if len(names) == 0 {
		log.Warn("no artifacts found")
		summary.Failures = append(summary.Failures, FailureNoArtifacts)
		return summary, nil
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		e.runOne(dir, name, &summary, log)
	}

	log.Info("enforcement run finished",
		zap.Int("patched", summary.PatchedFiles),
		zap.Int("already", summary.AlreadyPatchedFiles),
		zap.Int("failures", len(summary.Failures)))
	return summary, nil
}

func (e *Engine) runOne(dir, name string, summary *RunSummary, log *zap.Logger) {
	path := filepath.Join(dir, filepath.FromSlash(name))
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn("read failed", zap.String("artifact", name), zap.Error(err))
		summary.Failures = append(summary.Failures, "READ_FAILED: "+name)
		return
	}

	a := &Artifact{Name: name, Path: path, Content: string(data)}
	results := ApplyArtifact(a, e.Specs)

	written := true
	if a.Dirty() && !e.DryRun {
		if err := WriteFileAtomic(path, []byte(a.Content)); err != nil {
			log.Error("write failed", zap.String("artifact", name), zap.Error(err))
			summary.Failures = append(summary.Failures, "WRITE_FAILED: "+name)
			written = false
		}
	}
	summary.record(a, e.Specs, results, written)

	for _, r := range results {
		if r.Outcome == OutcomeNotApplicable {
			continue
		}
		log.Debug("guard outcome",
			zap.String("artifact", name),
			zap.String("guard", r.GuardID),
			zap.String("outcome", string(r.Outcome)))
	}
}

// scan lists regular files under dir matching the engine glob, sorted.
func (e *Engine) scan(dir string) ([]string, error) {
	pattern := e.Glob
	if pattern == "" {
		pattern = DefaultGlob
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid artifact glob %q", pattern)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	fsys := os.DirFS(dir)
	matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

func (e *Engine) logger() *zap.Logger {
	if e.Log == nil {
		return zap.NewNop()
	}
	return e.Log
}

// Status reports which guards are installed in each artifact of dir.
func (e *Engine) Status(dir string) (map[string]map[string]bool, error) {
	names, err := e.scan(dir)
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]bool, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name)))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		out[name] = Inspect(string(data), e.Specs)
	}
	return out, nil
}
