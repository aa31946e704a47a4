// Package logger writes the JSONL decision log for proxied tool calls and
// builds the process diagnostic logger.
package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/gzhole/toolguard/internal/redact"
)

// Decisions recorded in the audit log.
const (
	DecisionAllow   = "ALLOW"
	DecisionBlock   = "BLOCK"
	DecisionRunaway = "RUNAWAY"
	DecisionError   = "ERROR"
)

type AuditEvent struct {
	Timestamp  string         `json:"timestamp"`
	Tool       string         `json:"tool"`
	SessionKey string         `json:"session_key,omitempty"`
	RunID      string         `json:"run_id,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
	Decision   string         `json:"decision"`
	Code       string         `json:"code,omitempty"`
	Message    string         `json:"message,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Options tunes rotation of the audit file.
type Options struct {
	MaxSizeMB  int
	MaxBackups int
}

const (
	defaultMaxSizeMB  = 10
	defaultMaxBackups = 3
)

type AuditLogger struct {
	out *lumberjack.Logger
	mu  sync.Mutex
}

func New(path string, opts Options) (*AuditLogger, error) {
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = defaultMaxSizeMB
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = defaultMaxBackups
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}
	return &AuditLogger{out: &lumberjack.Logger{
		Filename:   path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
	}}, nil
}

func (l *AuditLogger) Log(event AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Redact sensitive data before logging
	event.Args = redact.RedactArgs(event.Args)
	if event.Error != "" {
		event.Error = redact.Redact(event.Error)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	data = append(data, '\n')
	_, err = l.out.Write(data)
	return err
}

func (l *AuditLogger) Close() error {
	if l.out != nil {
		return l.out.Close()
	}
	return nil
}
