// Package report records patch runs and raises an alert when a run
// degrades.
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// RunLogOptions tunes rotation of the run log file.
type RunLogOptions struct {
	MaxSizeMB  int
	MaxBackups int
	// Echo, when set, receives a copy of every line.
	Echo io.Writer
}

// RunLog is the append-only text log of enforcement runs. Each line is
// "[<RFC3339 UTC timestamp>] <message>".
type RunLog struct {
	mu     sync.Mutex
	out    io.Writer
	closer io.Closer
	echo   io.Writer
	now    func() time.Time
}

// OpenRunLog opens (creating if needed) a rotating run log at path.
func OpenRunLog(path string, opts RunLogOptions) (*RunLog, error) {
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 5
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 5
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create run log directory: %w", err)
	}
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
	}
	return &RunLog{out: lj, closer: lj, echo: opts.Echo, now: time.Now}, nil
}

// NewRunLog writes log lines to w. The caller owns w.
func NewRunLog(w io.Writer) *RunLog {
	return &RunLog{out: w, now: time.Now}
}

// Log appends one line.
func (l *RunLog) Log(msg string) error {
	line := fmt.Sprintf("[%s] %s\n", l.now().UTC().Format(time.RFC3339Nano), msg)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.echo != nil {
		_, _ = io.WriteString(l.echo, line)
	}
	_, err := io.WriteString(l.out, line)
	return err
}

// Logf appends one formatted line.
func (l *RunLog) Logf(format string, args ...any) error {
	return l.Log(fmt.Sprintf(format, args...))
}

func (l *RunLog) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// Entry is one parsed run log line.
type Entry struct {
	Time    time.Time
	Message string
}

// ReadEntries parses a run log. Lines that do not carry a timestamp
// prefix are returned with a zero Time.
func ReadEntries(r io.Reader) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		entries = append(entries, parseEntry(line))
	}
	return entries, sc.Err()
}

func parseEntry(line string) Entry {
	if !strings.HasPrefix(line, "[") {
		return Entry{Message: line}
	}
	end := strings.Index(line, "] ")
	if end < 0 {
		return Entry{Message: line}
	}
	ts, err := time.Parse(time.RFC3339Nano, line[1:end])
	if err != nil {
		return Entry{Message: line}
	}
	return Entry{Time: ts, Message: line[end+2:]}
}
