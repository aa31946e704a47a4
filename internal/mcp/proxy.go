package mcp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"go.uber.org/zap"
)

// maxFrameBytes bounds one newline-delimited JSON-RPC frame.
const maxFrameBytes = 10 * 1024 * 1024

// ProxyConfig holds configuration for the MCP stdio proxy.
type ProxyConfig struct {
	// ServerCmd is the command to launch the real MCP server.
	ServerCmd []string

	// Handler checks tools/call frames. Nil forwards everything.
	Handler *MessageHandler

	// Stderr receives the child server's stderr. Defaults to os.Stderr.
	Stderr io.Writer
	Log    *zap.Logger
}

// Proxy relays MCP stdio traffic between a client and a spawned server,
// answering guarded tool calls itself.
type Proxy struct {
	cmd     []string
	handler *MessageHandler
	stderr  io.Writer
	log     *zap.Logger
}

func NewProxy(cfg ProxyConfig) *Proxy {
	p := &Proxy{cmd: cfg.ServerCmd, handler: cfg.Handler, stderr: cfg.Stderr, log: cfg.Log}
	if p.stderr == nil {
		p.stderr = os.Stderr
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	return p
}

// Run spawns the server, bridges the process stdio to it, and blocks until
// the client closes stdin and the server exits. Cancelling ctx kills the
// server.
func (p *Proxy) Run(ctx context.Context) error {
	if len(p.cmd) == 0 {
		return fmt.Errorf("no server command specified")
	}

	server := exec.CommandContext(ctx, p.cmd[0], p.cmd[1:]...)
	server.Stderr = p.stderr
	stdin, err := server.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create server stdin pipe: %w", err)
	}
	stdout, err := server.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create server stdout pipe: %w", err)
	}
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start MCP server: %w", err)
	}
	p.log.Info("mcp server started", zap.Strings("cmd", p.cmd), zap.Int("pid", server.Process.Pid))

	p.RunWithIO(os.Stdin, os.Stdout, stdout, stdin)

	if err := server.Wait(); err != nil {
		return fmt.Errorf("MCP server exited with error: %w", err)
	}
	return nil
}

// RunWithIO bridges explicit streams without spawning a process. toServer
// is closed once the client side is exhausted.
func (p *Proxy) RunWithIO(fromClient io.Reader, toClient io.Writer, fromServer io.Reader, toServer io.WriteCloser) {
	client := &frameWriter{w: toClient}
	server := &frameWriter{w: toServer}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer func() { _ = toServer.Close() }()
		p.pump("client", fromClient, func(frame []byte) {
			if p.handler != nil && Classify(frame) == KindToolCall {
				if blocked, resp := p.handler.HandleToolCall(frame); blocked {
					client.write(resp)
					return
				}
			}
			server.write(frame)
		})
	}()
	go func() {
		defer wg.Done()
		p.pump("server", fromServer, client.write)
	}()
	wg.Wait()
}

// pump calls fn for every non-empty line of r until r is exhausted.
func (p *Proxy) pump(side string, r io.Reader, fn func(frame []byte)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)
	for scanner.Scan() {
		if line := scanner.Bytes(); len(line) > 0 {
			fn(line)
		}
	}
	if err := scanner.Err(); err != nil {
		p.log.Warn("stream ended", zap.String("side", side), zap.Error(err))
	}
}

// frameWriter writes whole newline-terminated frames; both directions
// share the client writer.
type frameWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (fw *frameWriter) write(frame []byte) {
	buf := make([]byte, 0, len(frame)+1)
	buf = append(buf, frame...)
	buf = append(buf, '\n')

	fw.mu.Lock()
	defer fw.mu.Unlock()
	_, _ = fw.w.Write(buf)
}
