package normalize

import (
	"strings"
	"testing"
)

func TestQuery_TrimsAndLowercases(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Go Generics  ", "go generics"},
		{"GO GENERICS", "go generics"},
		{"\tweather oslo\n", "weather oslo"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Query(tt.in); got != tt.want {
			t.Errorf("Query(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestURL_SameKeyForCaseAndWhitespace(t *testing.T) {
	a := URL(" https://Example.com/Docs ")
	b := URL("https://example.com/docs")
	if a != b {
		t.Errorf("expected identical keys, got %q and %q", a, b)
	}
}

func TestCommand_StripsInvisibleCharacters(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"SYSTEMCTL restart openclaw-gateway", "systemctl restart openclaw-gateway"},
		{"system\u200Bctl restart x", "systemctl restart x"},
		{"openclaw\u202E gateway", "openclaw gateway"},
		{"  ls -la  ", "ls -la"},
	}
	for _, tt := range tests {
		if got := Command(tt.in); got != tt.want {
			t.Errorf("Command(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReadPath_AcceptsBothArgumentNames(t *testing.T) {
	if got := ReadPath(map[string]any{"path": " /a/b.md "}); got != "/a/b.md" {
		t.Errorf("path arg: got %q", got)
	}
	if got := ReadPath(map[string]any{"file_path": "/c.md"}); got != "/c.md" {
		t.Errorf("file_path arg: got %q", got)
	}
	if got := ReadPath(map[string]any{"path": 42}); got != "" {
		t.Errorf("non-string path: got %q", got)
	}
	if got := ReadPath(nil); got != "" {
		t.Errorf("nil args: got %q", got)
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("å", MaxKeyRunes+10)
	got := Truncate(long, MaxKeyRunes)
	if n := len([]rune(got)); n != MaxKeyRunes {
		t.Errorf("expected %d runes, got %d", MaxKeyRunes, n)
	}
	if Truncate("short", MaxKeyRunes) != "short" {
		t.Error("short strings must be returned unchanged")
	}
}

func TestCommandSegments(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"simple", "ls -la", []string{"ls -la"}},
		{"quoted words", `'openclaw' "gateway" restart`, []string{"openclaw gateway restart"}},
		{"escaped word", `sys\temctl stop openclaw-gateway`, []string{"systemctl stop openclaw-gateway"}},
		{"list", "cd /tmp && openclaw gateway stop", []string{"cd /tmp", "openclaw gateway stop"}},
		{"pipeline", "echo hi | tee out.txt", []string{"echo hi", "tee out.txt"}},
		{"subshell", "(systemctl restart openclaw-gateway)", []string{"systemctl restart openclaw-gateway"}},
		{"invisible", "system\u200bctl stop x", []string{"systemctl stop x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CommandSegments(tt.in)
			if strings.Join(got, "\n") != strings.Join(tt.want, "\n") {
				t.Errorf("CommandSegments(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCommandSegments_SubstitutionIsWalked(t *testing.T) {
	got := CommandSegments("echo $(openclaw gateway restart)")
	found := false
	for _, s := range got {
		if s == "openclaw gateway restart" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected inner command among %q", got)
	}
}

func TestCommandSegments_ParseErrorYieldsNil(t *testing.T) {
	if got := CommandSegments(`echo "unterminated`); got != nil {
		t.Errorf("expected nil, got %q", got)
	}
}
