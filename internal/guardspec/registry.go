package guardspec

import (
	"embed"
	"regexp"
)

// Guard IDs, in the order the engine applies them.
const (
	SearchGuard = "search-guard"
	FetchGuard  = "fetch-guard"
	ExecGuard   = "exec-guard"
	ReadGuard   = "read-guard"
)

// Idempotency markers. Each is also the error code the guard reports at
// call time, which is what makes it absent from an unpatched bundle.
const (
	SearchMarker     = "web_search_limit_exceeded"
	FetchMarker      = "web_fetch_limit_exceeded"
	ExecMarker       = "exec_command_blocked"
	ReadRepeatMarker = "read_path_repeat_limit_exceeded"
	ReadSweepMarker  = "memory_date_sweep_limit_exceeded"
)

//go:embed js/*.js
var jsFS embed.FS

var (
	searchAnchor = regexp.MustCompile(`const params = args;\n\s*const query = readStringParam\(params, "query", \{ required: true \}\);`)
	fetchAnchor  = regexp.MustCompile(`const params = args;\n\s*const url = readStringParam\(params, ["']url["'], \{ required: true \}\);`)
	execAnchor   = regexp.MustCompile(`const params = args;\n\s*const command = readStringParam\(params, "command", \{ required: true \}\);`)
)

// ReadUnguarded is the read-tool block as shipped by OpenClaw, before any
// guard is installed. It is the read-guard anchor.
var ReadUnguarded = mustJS("read_unguarded.js")

// ReadRepeatOnly is the previous read-guard: it caps repeated reads of one
// path but has no dated-memory sweep counter.
var ReadRepeatOnly = mustJS("read_repeat.js")

// ReadCurrent is the current read-guard.
var ReadCurrent = mustJS("read_sweep.js")

// Builtin returns the guard registry in application order. The slice is
// freshly allocated; callers may append pack specs to it.
func Builtin() []Spec {
	return []Spec{
		{
			ID:         SearchGuard,
			Anchor:     searchAnchor,
			Inject:     mustJS("search.js"),
			Marker:     SearchMarker,
			FailureTag: "WEB",
		},
		{
			ID:         FetchGuard,
			Anchor:     fetchAnchor,
			Inject:     mustJS("fetch.js"),
			Marker:     FetchMarker,
			FailureTag: "WEB_FETCH",
		},
		{
			ID:         ExecGuard,
			Anchor:     execAnchor,
			Inject:     mustJS("exec.js"),
			Marker:     ExecMarker,
			FailureTag: "EXEC",
		},
		{
			ID:         ReadGuard,
			Anchor:     regexp.MustCompile(regexp.QuoteMeta(ReadUnguarded)),
			Inject:     ReadCurrent,
			Marker:     ReadSweepMarker,
			FailureTag: "READ",
			Legacy: &Migration{
				OldText:   ReadRepeatOnly,
				NewText:   ReadCurrent,
				NewMarker: ReadSweepMarker,
			},
		},
	}
}

// Lookup returns the spec with the given id from specs.
func Lookup(specs []Spec, id string) (Spec, bool) {
	for _, s := range specs {
		if s.ID == id {
			return s, true
		}
	}
	return Spec{}, false
}

func mustJS(name string) string {
	data, err := jsFS.ReadFile("js/" + name)
	if err != nil {
		panic("guardspec: missing embedded guard " + name + ": " + err.Error())
	}
	return string(data)
}
