// Package patch installs guard specs into runtime bundles. It is a
// single-pass batch job: every artifact is read, transformed in memory
// against each spec in registry order, and written back at most once.
package patch

import (
	"strings"

	"github.com/gzhole/toolguard/internal/guardspec"
)

// Outcome is the per (artifact, guard) result of a run.
type Outcome string

const (
	OutcomePatched         Outcome = "patched"
	OutcomeMigrated        Outcome = "migrated"
	OutcomeAlreadyPresent  Outcome = "already_present"
	OutcomeAmbiguousAnchor Outcome = "ambiguous_anchor"
	OutcomeNotApplicable   Outcome = "not_applicable"
)

// Changed reports whether the outcome mutated the artifact.
func (o Outcome) Changed() bool {
	return o == OutcomePatched || o == OutcomeMigrated
}

// Run-level failure identifiers.
const (
	FailureNoArtifacts = "NO_ARTIFACTS_FOUND"
	FailureRunLocked   = "RUN_LOCKED"
)

// Artifact is a named text blob, typically one bundled JS file.
type Artifact struct {
	Name    string // reported in failures; never a full path
	Path    string // empty for in-memory artifacts
	Content string

	dirty bool
}

// Dirty reports whether any guard changed the content since it was loaded.
func (a *Artifact) Dirty() bool { return a.dirty }

// Result records one (artifact, guard) outcome.
type Result struct {
	Artifact string  `json:"artifact"`
	GuardID  string  `json:"guard"`
	Outcome  Outcome `json:"outcome"`
}

// RunSummary aggregates a whole invocation.
type RunSummary struct {
	RunID               string   `json:"run_id"`
	PatchedFiles        int      `json:"patched_files"`
	AlreadyPatchedFiles int      `json:"already_patched_files"`
	Failures            []string `json:"failures"`
	Results             []Result `json:"results,omitempty"`
}

// Failed reports whether the run should be treated as degraded.
func (s RunSummary) Failed() bool { return len(s.Failures) > 0 }

// ApplyArtifact applies every spec to a, in order, mutating a.Content in
// place. Each spec is independent: an ambiguous anchor for one guard
// leaves the content untouched for that guard only.
func ApplyArtifact(a *Artifact, specs []guardspec.Spec) []Result {
	results := make([]Result, 0, len(specs))
	for _, spec := range specs {
		out := applySpec(a, spec)
		results = append(results, Result{Artifact: a.Name, GuardID: spec.ID, Outcome: out})
	}
	return results
}

func applySpec(a *Artifact, spec guardspec.Spec) Outcome {
	if strings.Contains(a.Content, spec.Marker) {
		return OutcomeAlreadyPresent
	}

	if m := spec.Legacy; m != nil {
		if m.NewMarker != "" && strings.Contains(a.Content, m.NewMarker) {
			return OutcomeAlreadyPresent
		}
		if strings.Contains(a.Content, m.OldText) {
			a.Content = strings.Replace(a.Content, m.OldText, m.NewText, 1)
			a.dirty = true
			return OutcomeMigrated
		}
	}

	if spec.Anchor == nil {
		return OutcomeNotApplicable
	}

	locs := spec.Anchor.FindAllStringIndex(a.Content, 2)
	switch len(locs) {
	case 0:
		return OutcomeNotApplicable
	case 1:
		start, end := locs[0][0], locs[0][1]
		a.Content = a.Content[:start] + spec.Inject + a.Content[end:]
		a.dirty = true
		return OutcomePatched
	default:
		return OutcomeAmbiguousAnchor
	}
}

// Apply runs every spec over every artifact in memory and tallies the
// run. Artifacts are mutated in place; nothing is written.
func Apply(artifacts []*Artifact, specs []guardspec.Spec) RunSummary {
	var summary RunSummary
	if len(artifacts) == 0 {
		summary.Failures = append(summary.Failures, FailureNoArtifacts)
		return summary
	}
	for _, a := range artifacts {
		results := ApplyArtifact(a, specs)
		summary.record(a, specs, results, true)
	}
	return summary
}

// record folds one artifact's results into the summary. written is false
// when the artifact was dirty but its write failed, in which case it is
// not counted as patched.
func (s *RunSummary) record(a *Artifact, specs []guardspec.Spec, results []Result, written bool) {
	s.Results = append(s.Results, results...)

	changed, already, ambiguous := false, false, false
	for i, r := range results {
		switch {
		case r.Outcome.Changed():
			changed = true
		case r.Outcome == OutcomeAlreadyPresent:
			already = true
		case r.Outcome == OutcomeAmbiguousAnchor:
			ambiguous = true
			s.Failures = append(s.Failures, specs[i].AmbiguousFailure(a.Name))
		}
	}

	switch {
	case changed && written:
		s.PatchedFiles++
	case !changed && already && !ambiguous:
		s.AlreadyPatchedFiles++
	}
}

// Inspect reports, per guard, whether it is installed in content.
func Inspect(content string, specs []guardspec.Spec) map[string]bool {
	installed := make(map[string]bool, len(specs))
	for _, s := range specs {
		installed[s.ID] = strings.Contains(content, s.Marker)
	}
	return installed
}
