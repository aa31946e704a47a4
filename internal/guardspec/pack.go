package guardspec

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Pack is a YAML file of additional guards, installed next to the builtin
// ones. Pack guards use regex anchors only; exact-text migrations stay a
// builtin concern.
type Pack struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Version     string      `yaml:"version"`
	Guards      []PackGuard `yaml:"guards"`
}

// PackGuard is the YAML form of a Spec.
type PackGuard struct {
	ID         string `yaml:"id"`
	Anchor     string `yaml:"anchor"`
	Literal    bool   `yaml:"literal,omitempty"` // anchor is plain text, not a regex
	Inject     string `yaml:"inject"`
	Marker     string `yaml:"marker"`
	FailureTag string `yaml:"failure_tag,omitempty"`
}

// PackInfo summarizes a pack for listing.
type PackInfo struct {
	Name       string
	Version    string
	Path       string
	Enabled    bool
	GuardCount int
	Err        error
}

// LoadPacks reads every .yaml/.yml file in dir and appends its guards to
// base. Files whose name starts with "_" are listed but not loaded. A
// pack that fails to parse or validate is reported in its PackInfo and
// skipped; it never affects the other packs. A missing dir is not an error.
func LoadPacks(dir string, base []Spec) ([]Spec, []PackInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil, nil
		}
		return nil, nil, err
	}

	result := make([]Spec, len(base))
	copy(result, base)
	seen := make(map[string]bool, len(base))
	for _, s := range base {
		seen[s.ID] = true
	}

	var infos []PackInfo
	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		baseName := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		info := PackInfo{Name: baseName, Path: path, Enabled: !strings.HasPrefix(baseName, "_")}

		pack, err := loadPack(path)
		if err != nil {
			info.Err = err
			infos = append(infos, info)
			continue
		}
		if pack.Name != "" {
			info.Name = pack.Name
		}
		info.Version = pack.Version
		info.GuardCount = len(pack.Guards)

		if !info.Enabled {
			infos = append(infos, info)
			continue
		}

		specs, err := pack.specs(seen)
		if err != nil {
			info.Err = err
			infos = append(infos, info)
			continue
		}
		for _, s := range specs {
			seen[s.ID] = true
		}
		result = append(result, specs...)
		infos = append(infos, info)
	}

	return result, infos, nil
}

func loadPack(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pack Pack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("failed to parse pack %s: %w", path, err)
	}
	return &pack, nil
}

// specs converts and validates every guard in the pack. It is all or
// nothing: one bad guard rejects the pack.
func (p *Pack) specs(taken map[string]bool) ([]Spec, error) {
	out := make([]Spec, 0, len(p.Guards))
	local := make(map[string]bool, len(p.Guards))
	for _, g := range p.Guards {
		if taken[g.ID] || local[g.ID] {
			return nil, fmt.Errorf("duplicate guard id %q", g.ID)
		}
		local[g.ID] = true

		if g.Anchor == "" {
			return nil, fmt.Errorf("guard %q: empty anchor", g.ID)
		}
		expr := g.Anchor
		if g.Literal {
			expr = regexp.QuoteMeta(g.Anchor)
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("guard %q: invalid anchor: %w", g.ID, err)
		}
		s := Spec{
			ID:         g.ID,
			Anchor:     re,
			Inject:     g.Inject,
			Marker:     g.Marker,
			FailureTag: g.FailureTag,
		}
		if err := Validate(s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func isYAMLFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
