package guardspec

import (
	"strings"
	"testing"
)

func TestBuiltin_OrderAndValidity(t *testing.T) {
	specs := Builtin()
	want := []string{SearchGuard, FetchGuard, ExecGuard, ReadGuard}
	if len(specs) != len(want) {
		t.Fatalf("expected %d builtin guards, got %d", len(want), len(specs))
	}
	for i, s := range specs {
		if s.ID != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], s.ID)
		}
		if err := Validate(s); err != nil {
			t.Errorf("builtin %s invalid: %v", s.ID, err)
		}
	}
}

func TestBuiltin_MarkersAbsentFromUnpatchedText(t *testing.T) {
	unpatched := []string{
		"const params = args;\n\t\t\tconst query = readStringParam(params, \"query\", { required: true });",
		"const params = args;\n\t\t\tconst url = readStringParam(params, \"url\", { required: true });",
		"const params = args;\n\t\t\tconst command = readStringParam(params, \"command\", { required: true });",
		ReadUnguarded,
	}
	for _, s := range Builtin() {
		for _, text := range unpatched {
			if strings.Contains(text, s.Marker) {
				t.Errorf("%s marker %q found in unpatched text", s.ID, s.Marker)
			}
		}
	}
}

func TestBuiltin_AnchorsMatchUnpatchedOnce(t *testing.T) {
	tests := []struct {
		id   string
		text string
	}{
		{SearchGuard, "x;\nconst params = args;\n\t\t\tconst query = readStringParam(params, \"query\", { required: true });\ny;"},
		{FetchGuard, "const params = args;\n    const url = readStringParam(params, 'url', { required: true });"},
		{ExecGuard, "const params = args;\n\tconst command = readStringParam(params, \"command\", { required: true });"},
		{ReadGuard, "function handle() {\n" + ReadUnguarded + "}\n"},
	}
	specs := Builtin()
	for _, tt := range tests {
		s, ok := Lookup(specs, tt.id)
		if !ok {
			t.Fatalf("guard %s not found", tt.id)
		}
		if n := len(s.Anchor.FindAllStringIndex(tt.text, -1)); n != 1 {
			t.Errorf("%s: expected exactly one anchor match, got %d", tt.id, n)
		}
	}
}

func TestReadGuard_LegacyMigrationTexts(t *testing.T) {
	s, _ := Lookup(Builtin(), ReadGuard)
	if s.Legacy == nil {
		t.Fatal("read-guard must carry a legacy migration")
	}
	if !strings.Contains(s.Legacy.OldText, ReadRepeatMarker) {
		t.Error("legacy text should be the repeat-only guard")
	}
	if strings.Contains(s.Legacy.OldText, ReadSweepMarker) {
		t.Error("legacy text must not contain the date-sweep marker")
	}
	if s.Legacy.NewText != s.Inject {
		t.Error("migration target must equal the current injected logic")
	}
	if !strings.Contains(ReadCurrent, `/\/memory\/\d{4}-\d{2}-\d{2}\.md$/`) {
		t.Error("current read-guard lost its dated-memory pattern")
	}
}

func TestExecGuard_InjectsDenyList(t *testing.T) {
	s, _ := Lookup(Builtin(), ExecGuard)
	for _, frag := range []string{`openclaw\s+gateway`, `systemctl\s+--user`, `SERVICE_CONTROL_BLOCKED`} {
		if !strings.Contains(s.Inject, frag) {
			t.Errorf("exec guard missing %q", frag)
		}
	}
}

func TestValidate_Rejects(t *testing.T) {
	good, _ := Lookup(Builtin(), SearchGuard)

	tests := []struct {
		name string
		mut  func(*Spec)
	}{
		{"empty id", func(s *Spec) { s.ID = "" }},
		{"empty marker", func(s *Spec) { s.Marker = "" }},
		{"marker not injected", func(s *Spec) { s.Marker = "not_in_inject" }},
		{"no anchor or migration", func(s *Spec) { s.Anchor = nil }},
		{"legacy old text has marker", func(s *Spec) {
			s.Legacy = &Migration{OldText: "web_search_limit_exceeded", NewText: s.Inject, NewMarker: s.Marker}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := good
			tt.mut(&s)
			if err := Validate(s); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestAmbiguousFailure(t *testing.T) {
	s, _ := Lookup(Builtin(), FetchGuard)
	if got := s.AmbiguousFailure("pi-tools.js"); got != "WEB_FETCH_ANCHOR_MULTI: pi-tools.js" {
		t.Errorf("unexpected failure id %q", got)
	}
	custom := Spec{ID: "memory-guard"}
	if got := custom.AmbiguousFailure("a.js"); got != "MEMORY_GUARD_ANCHOR_MULTI: a.js" {
		t.Errorf("unexpected derived failure id %q", got)
	}
}
