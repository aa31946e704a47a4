package ratelimit

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPolicyFile = "guard-policy.yaml"

// Caps bounds calls within one session window.
type Caps struct {
	Total  int `yaml:"total"`
	PerKey int `yaml:"per_key"`
}

// Policy holds every threshold the guards apply. All caps are exceeded
// strictly: count > cap blocks, count == cap is still allowed.
type Policy struct {
	WindowMs     int64    `yaml:"window_ms"`
	WebSearch    Caps     `yaml:"web_search"`
	WebFetch     Caps     `yaml:"web_fetch"`
	ReadRepeat   int      `yaml:"read_repeat"`
	DateSweep    int      `yaml:"memory_date_sweep"`
	ExecPatterns []string `yaml:"exec_deny_patterns"`
}

// DefaultPolicy mirrors the limits baked into the bundle guards.
func DefaultPolicy() Policy {
	return Policy{
		WindowMs:   600000,
		WebSearch:  Caps{Total: 5, PerKey: 2},
		WebFetch:   Caps{Total: 5, PerKey: 2},
		ReadRepeat: 2,
		DateSweep:  20,
		ExecPatterns: []string{
			`\bopenclaw\s+gateway\s+(restart|stop)\b`,
			`\bsystemctl\s+--user\s+(restart|stop)\s+openclaw-gateway(\.service)?\b`,
			`\bsystemctl\s+(restart|stop)\s+openclaw-gateway(\.service)?\b`,
		},
	}
}

// Window returns the window duration.
func (p Policy) Window() time.Duration {
	return time.Duration(p.WindowMs) * time.Millisecond
}

// LoadPolicy reads a YAML policy. A missing file yields DefaultPolicy;
// fields left at zero in the file keep their default value.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return Policy{}, err
	}

	var file Policy
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Policy{}, fmt.Errorf("failed to parse guard policy %s: %w", path, err)
	}
	p.merge(file)
	if _, err := p.compileExec(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

func (p *Policy) merge(o Policy) {
	if o.WindowMs > 0 {
		p.WindowMs = o.WindowMs
	}
	if o.WebSearch.Total > 0 {
		p.WebSearch.Total = o.WebSearch.Total
	}
	if o.WebSearch.PerKey > 0 {
		p.WebSearch.PerKey = o.WebSearch.PerKey
	}
	if o.WebFetch.Total > 0 {
		p.WebFetch.Total = o.WebFetch.Total
	}
	if o.WebFetch.PerKey > 0 {
		p.WebFetch.PerKey = o.WebFetch.PerKey
	}
	if o.ReadRepeat > 0 {
		p.ReadRepeat = o.ReadRepeat
	}
	if o.DateSweep > 0 {
		p.DateSweep = o.DateSweep
	}
	if len(o.ExecPatterns) > 0 {
		p.ExecPatterns = o.ExecPatterns
	}
}

// compileExec compiles the deny-list. Patterns match the normalized
// (lower-cased) command, so they are written in lower case.
func (p Policy) compileExec() ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(p.ExecPatterns))
	for _, expr := range p.ExecPatterns {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid exec deny pattern %q: %w", expr, err)
		}
		out = append(out, re)
	}
	return out, nil
}
