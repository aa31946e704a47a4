package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"
)

// nopWriteCloser wraps an io.Writer with a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

func TestProxy_BlocksSixthSearchAndForwardsRest(t *testing.T) {
	h, _ := newTestHandler(t)
	proxy := NewProxy(ProxyConfig{Handler: h, Stderr: io.Discard})

	var in strings.Builder
	for i := 1; i <= 6; i++ {
		fmt.Fprintf(&in, `{"jsonrpc":"2.0","id":%d,"method":"tools/call","params":{"name":"web_search","arguments":{"query":"q%d"}}}`+"\n", i, i)
	}
	in.WriteString(`{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n")
	in.WriteString("not json\n")

	clientOut := &bytes.Buffer{}
	serverIn := &bytes.Buffer{}
	serverOut := strings.NewReader(`{"jsonrpc":"2.0","id":1,"result":{"content":[]}}` + "\n")

	proxy.RunWithIO(strings.NewReader(in.String()), clientOut, serverOut, nopWriteCloser{serverIn})

	forwarded := strings.Split(strings.TrimSpace(serverIn.String()), "\n")
	if len(forwarded) != 7 {
		t.Fatalf("expected 5 calls + notification + raw line forwarded, got %d:\n%s", len(forwarded), serverIn.String())
	}
	if forwarded[6] != "not json" {
		t.Errorf("unparseable line not passed through: %q", forwarded[6])
	}

	var sawBlock, sawServer bool
	for _, line := range strings.Split(strings.TrimSpace(clientOut.String()), "\n") {
		var msg Response
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			t.Fatalf("client got invalid JSON %q", line)
		}
		switch string(msg.ID) {
		case "6":
			sawBlock = msg.Result != nil && len(msg.Result.Content) == 1 &&
				strings.Contains(msg.Result.Content[0].Text, "web_search_limit_exceeded")
		case "1":
			sawServer = true
		}
	}
	if !sawBlock {
		t.Error("client did not receive the blocked result for id 6")
	}
	if !sawServer {
		t.Error("server response was not relayed")
	}
}

func TestProxy_NoHandlerIsTransparent(t *testing.T) {
	proxy := NewProxy(ProxyConfig{Stderr: io.Discard})
	line := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"exec","arguments":{"command":"openclaw gateway stop"}}}`
	serverIn := &bytes.Buffer{}
	proxy.RunWithIO(strings.NewReader(line+"\n"), io.Discard, strings.NewReader(""), nopWriteCloser{serverIn})
	if strings.TrimSpace(serverIn.String()) != line {
		t.Errorf("expected verbatim forward, got %q", serverIn.String())
	}
}

func TestProxy_RunWithoutCommand(t *testing.T) {
	if err := NewProxy(ProxyConfig{}).Run(context.Background()); err == nil {
		t.Error("expected error without a server command")
	}
}
