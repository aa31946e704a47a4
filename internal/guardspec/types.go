// Package guardspec defines the guards toolguard installs into OpenClaw
// runtime bundles. A Spec says where a guard goes (its anchor), what gets
// spliced in, and how to recognise that it is already there.
package guardspec

import (
	"fmt"
	"regexp"
	"strings"
)

// Spec is one installable guard. Specs are immutable once built.
type Spec struct {
	// ID is the stable guard name, e.g. "search-guard".
	ID string

	// Anchor matches the unique insertion point. The whole match is
	// replaced by Inject, so Inject must reproduce the anchored text.
	Anchor *regexp.Regexp

	// Inject is the guard logic spliced in at the anchor.
	Inject string

	// Marker is a literal whose presence proves the guard is installed.
	// It must occur in Inject and must not occur in an unpatched bundle.
	Marker string

	// FailureTag prefixes failure identifiers, e.g. "WEB_FETCH" yields
	// "WEB_FETCH_ANCHOR_MULTI: <file>".
	FailureTag string

	// Legacy upgrades an older installed version in place.
	Legacy *Migration
}

// Migration describes an exact-text upgrade from an older guard version.
type Migration struct {
	OldText   string
	NewText   string
	NewMarker string
}

// AmbiguousFailure returns the failure identifier recorded when the
// spec's anchor matches more than once in the named artifact.
func (s Spec) AmbiguousFailure(artifact string) string {
	tag := s.FailureTag
	if tag == "" {
		tag = strings.ToUpper(strings.ReplaceAll(s.ID, "-", "_"))
	}
	return tag + "_ANCHOR_MULTI: " + artifact
}

// Validate checks the invariants every spec must hold before the engine
// is allowed to use it.
func Validate(s Spec) error {
	if s.ID == "" {
		return fmt.Errorf("guard spec has no id")
	}
	if s.Marker == "" {
		return fmt.Errorf("guard %s: empty idempotency marker", s.ID)
	}
	if s.Anchor == nil && s.Legacy == nil {
		return fmt.Errorf("guard %s: needs an anchor or a legacy migration", s.ID)
	}
	if s.Anchor != nil && !strings.Contains(s.Inject, s.Marker) {
		return fmt.Errorf("guard %s: marker %q not present in injected logic", s.ID, s.Marker)
	}
	if m := s.Legacy; m != nil {
		if m.OldText == "" || m.NewText == "" {
			return fmt.Errorf("guard %s: legacy migration needs old and new text", s.ID)
		}
		if !strings.Contains(m.NewText, m.NewMarker) {
			return fmt.Errorf("guard %s: legacy marker %q not present in new text", s.ID, m.NewMarker)
		}
		if strings.Contains(m.OldText, m.NewMarker) {
			return fmt.Errorf("guard %s: legacy old text already carries marker %q", s.ID, m.NewMarker)
		}
	}
	return nil
}
