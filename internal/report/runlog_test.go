package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRunLog_LineFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewRunLog(&buf)
	l.now = func() time.Time { return time.Date(2026, 3, 1, 8, 30, 0, 500, time.FixedZone("X", 3600)) }

	if err := l.Logf("SUMMARY run=%s", "abc"); err != nil {
		t.Fatal(err)
	}
	want := "[2026-03-01T07:30:00.0000005Z] SUMMARY run=abc\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestOpenRunLog_AppendsAndEchoes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "websearch-guard.log")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("[2026-01-01T00:00:00Z] older\n"), 0644); err != nil {
		t.Fatal(err)
	}

	var echo bytes.Buffer
	l, err := OpenRunLog(path, RunLogOptions{Echo: &echo})
	if err != nil {
		t.Fatal(err)
	}
	_ = l.Log("first")
	_ = l.Log("second")
	_ = l.Close()

	data, _ := os.ReadFile(path)
	entries, err := ReadEntries(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 || entries[0].Message != "older" || entries[2].Message != "second" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if !strings.Contains(echo.String(), "] first\n") {
		t.Errorf("echo missing line: %q", echo.String())
	}
}

func TestReadEntries_UnprefixedLines(t *testing.T) {
	in := "[2026-01-01T00:00:00Z] ok\nplain line\n\n[bad] x\n"
	entries, err := ReadEntries(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[0].Time.IsZero() || entries[0].Message != "ok" {
		t.Errorf("entry 0 = %+v", entries[0])
	}
	if !entries[1].Time.IsZero() || entries[1].Message != "plain line" {
		t.Errorf("entry 1 = %+v", entries[1])
	}
	if entries[2].Message != "[bad] x" {
		t.Errorf("entry 2 = %+v", entries[2])
	}
}
