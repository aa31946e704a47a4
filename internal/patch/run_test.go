package patch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gzhole/toolguard/internal/guardspec"
)

func writeArtifact(t *testing.T, dir, name, content string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestEngineRun_PatchesAndIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, "pi-tools.js", "// head\n"+searchSite, 0640)
	writeArtifact(t, dir, "README.md", searchSite, 0644)

	engine := NewEngine(guardspec.Builtin())
	summary, err := engine.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.PatchedFiles != 1 || summary.AlreadyPatchedFiles != 0 || summary.Failed() {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.RunID == "" {
		t.Error("expected a run id")
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), guardspec.SearchMarker) {
		t.Error("artifact on disk was not patched")
	}
	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0640 {
		t.Errorf("file mode not preserved: %v", info.Mode().Perm())
	}
	md, _ := os.ReadFile(filepath.Join(dir, "README.md"))
	if strings.Contains(string(md), guardspec.SearchMarker) {
		t.Error("files outside the glob must not be touched")
	}

	second, err := engine.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.PatchedFiles != 0 || second.AlreadyPatchedFiles != 1 || second.Failed() {
		t.Errorf("second run: unexpected summary %+v", second)
	}
	again, _ := os.ReadFile(path)
	if string(again) != string(data) {
		t.Error("second run changed the artifact")
	}

	leftovers, _ := filepath.Glob(filepath.Join(dir, ".toolguard-*.tmp"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestEngineRun_NoArtifacts(t *testing.T) {
	for name, dir := range map[string]string{
		"empty dir":   t.TempDir(),
		"missing dir": filepath.Join(t.TempDir(), "dist"),
	} {
		t.Run(name, func(t *testing.T) {
			summary, err := NewEngine(guardspec.Builtin()).Run(context.Background(), dir)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if len(summary.Failures) != 1 || summary.Failures[0] != FailureNoArtifacts {
				t.Errorf("expected %s, got %v", FailureNoArtifacts, summary.Failures)
			}
		})
	}
}

func TestEngineRun_AmbiguousDoesNotBlockOtherFiles(t *testing.T) {
	dir := t.TempDir()
	dupPath := writeArtifact(t, dir, "a-dup.js", searchSite+searchSite, 0644)
	writeArtifact(t, dir, "b-ok.js", fetchSite, 0644)

	summary, err := NewEngine(guardspec.Builtin()).Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.PatchedFiles != 1 {
		t.Errorf("expected the unambiguous file patched, got %+v", summary)
	}
	if len(summary.Failures) != 1 || summary.Failures[0] != "WEB_ANCHOR_MULTI: a-dup.js" {
		t.Errorf("unexpected failures %v", summary.Failures)
	}
	data, _ := os.ReadFile(dupPath)
	if string(data) != searchSite+searchSite {
		t.Error("ambiguous file must be byte-identical")
	}
}

func TestEngineRun_DryRunWritesNothing(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, "x.js", execSite, 0644)

	engine := NewEngine(guardspec.Builtin())
	engine.DryRun = true
	summary, err := engine.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.PatchedFiles != 1 {
		t.Errorf("dry run should still report what it would patch, got %+v", summary)
	}
	data, _ := os.ReadFile(path)
	if string(data) != execSite {
		t.Error("dry run modified the artifact")
	}
	if _, err := os.Stat(filepath.Join(dir, LockFileName)); !os.IsNotExist(err) {
		t.Errorf("dry run left a lock file behind: %v", err)
	}
}

func TestEngineRun_RecursiveGlob(t *testing.T) {
	dir := t.TempDir()
	nested := writeArtifact(t, dir, "chunks/deep/tools.js", searchSite, 0644)

	engine := NewEngine(guardspec.Builtin())
	engine.Glob = "**/*.js"
	summary, err := engine.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.PatchedFiles != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	data, _ := os.ReadFile(nested)
	if !strings.Contains(string(data), guardspec.SearchMarker) {
		t.Error("nested artifact not patched")
	}
}

func TestEngineRun_LockedRunFailsFast(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "x.js", searchSite, 0644)

	held, err := AcquireLock(filepath.Join(dir, LockFileName))
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	defer func() { _ = held.Release() }()

	summary, err := NewEngine(guardspec.Builtin()).Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(summary.Failures) != 1 || summary.Failures[0] != FailureRunLocked {
		t.Errorf("expected %s, got %v", FailureRunLocked, summary.Failures)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "x.js"))
	if strings.Contains(string(data), guardspec.SearchMarker) {
		t.Error("locked run must not write")
	}
}

func TestEngineRun_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "x.js", searchSite, 0644)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewEngine(guardspec.Builtin()).Run(ctx, dir); err == nil {
		t.Error("expected cancellation error")
	}
}

func TestEngineStatus(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "a.js", searchSite, 0644)
	engine := NewEngine(guardspec.Builtin())
	if _, err := engine.Run(context.Background(), dir); err != nil {
		t.Fatal(err)
	}
	status, err := engine.Status(dir)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status["a.js"][guardspec.SearchGuard] || status["a.js"][guardspec.ExecGuard] {
		t.Errorf("unexpected status %v", status)
	}
}

func TestWriteFileAtomic_NewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.js")
	if err := WriteFileAtomic(path, []byte("hello")); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "hello" {
		t.Errorf("unexpected content %q", data)
	}
}

func TestAcquireLock_Exclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), LockFileName)
	first, err := AcquireLock(path)
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	if _, err := AcquireLock(path); err != ErrLocked {
		t.Errorf("expected ErrLocked, got %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	again, err := AcquireLock(path)
	if err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	_ = again.Release()
}
