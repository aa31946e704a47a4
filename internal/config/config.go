// Package config resolves where toolguard finds the OpenClaw installation
// and reads the parts of openclaw.json it needs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/muhammadmuzzammil1998/jsonc"
	"github.com/tidwall/gjson"

	"github.com/gzhole/toolguard/internal/redact"
)

const (
	DefaultConfigDir  = ".openclaw"
	DefaultConfigFile = "openclaw.json"
	DefaultRunLogFile = "websearch-guard.log"
	DefaultAuditFile  = "guard-decisions.jsonl"
	DefaultPolicyFile = "guard-policy.yaml"
	DefaultPacksDir   = "guard-packs"
	DefaultBundleDir  = "/usr/lib/node_modules/openclaw/dist"
	stockHome         = "/root/openclaw-stock-home"
	envHome           = "OPENCLAW_HOME"
	envBundleDir      = "TOOLGUARD_BUNDLE_DIR"
)

// Options carries command-line overrides. Empty fields use defaults.
type Options struct {
	Home       string
	ConfigPath string
	LogPath    string
	PolicyPath string
	BundleDir  string
	PacksDir   string
}

type Config struct {
	Home           string
	ConfigDir      string
	OpenClawConfig string
	RunLogPath     string
	AuditLogPath   string
	PolicyPath     string
	PacksDir       string
	BundleDir      string
}

// Load resolves every path toolguard uses. It does not create anything;
// writers create their own directories.
func Load(opts Options) (*Config, error) {
	home, err := ResolveHome(opts.Home)
	if err != nil {
		return nil, err
	}

	configDir := filepath.Join(home, DefaultConfigDir)
	cfg := &Config{
		Home:           home,
		ConfigDir:      configDir,
		OpenClawConfig: filepath.Join(configDir, DefaultConfigFile),
		RunLogPath:     filepath.Join(configDir, "logs", DefaultRunLogFile),
		AuditLogPath:   filepath.Join(configDir, "logs", DefaultAuditFile),
		PolicyPath:     filepath.Join(configDir, DefaultPolicyFile),
		PacksDir:       filepath.Join(configDir, DefaultPacksDir),
		BundleDir:      DefaultBundleDir,
	}
	if env := os.Getenv(envBundleDir); env != "" {
		cfg.BundleDir = env
	}

	override(&cfg.OpenClawConfig, opts.ConfigPath)
	override(&cfg.RunLogPath, opts.LogPath)
	override(&cfg.PolicyPath, opts.PolicyPath)
	override(&cfg.BundleDir, opts.BundleDir)
	override(&cfg.PacksDir, opts.PacksDir)
	return cfg, nil
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// ResolveHome picks the OpenClaw home: the explicit flag, then
// $OPENCLAW_HOME, then the user's home. A bare /root home is the
// operator account, whose OpenClaw state lives under the stock home.
func ResolveHome(flag string) (string, error) {
	home := flag
	if home == "" {
		home = os.Getenv(envHome)
	}
	if home == "" {
		h, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		home = h
	}
	home = filepath.Clean(home)
	if home == "/root" {
		home = stockHome
	}
	return home, nil
}

// SanitizePrefixes lists the host directories that must never appear in
// an outgoing alert.
func (c *Config) SanitizePrefixes() []redact.PathPrefix {
	return []redact.PathPrefix{
		{Dir: c.BundleDir, Placeholder: redact.BundlePlaceholder},
		{Dir: c.ConfigDir, Placeholder: redact.ConfigPlaceholder},
	}
}

// Telegram holds the alert destination found in openclaw.json.
type Telegram struct {
	BotToken string
	ChatID   string
}

// ReadTelegram extracts alert credentials from an openclaw.json file.
// Comments and trailing commas are tolerated. The chat is the first
// allowlist entry, else chatId, else defaultChatId. Missing values come
// back empty; only an unreadable or malformed file is an error.
func ReadTelegram(path string) (Telegram, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Telegram{}, fmt.Errorf("read %s: %w", path, err)
	}
	clean := stripTrailingCommas(jsonc.ToJSON(data))
	if !gjson.ValidBytes(clean) {
		return Telegram{}, fmt.Errorf("parse %s: invalid JSON", path)
	}

	tg := gjson.GetBytes(clean, "channels.telegram")
	t := Telegram{BotToken: strings.TrimSpace(tg.Get("botToken").String())}
	for _, key := range []string{"allowlist.0", "chatId", "defaultChatId"} {
		if v := strings.TrimSpace(tg.Get(key).String()); v != "" {
			t.ChatID = v
			break
		}
	}
	return t, nil
}

// stripTrailingCommas drops commas that directly precede a closing
// bracket or brace. Input must already be free of comments.
func stripTrailingCommas(data []byte) []byte {
	out := make([]byte, 0, len(data))
	inString, escaped := false, false
	for i := 0; i < len(data); i++ {
		c := data[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			out = append(out, c)
			continue
		}
		if c == '"' {
			inString = true
		}
		if c == ',' {
			j := i + 1
			for j < len(data) && isJSONSpace(data[j]) {
				j++
			}
			if j < len(data) && (data[j] == '}' || data[j] == ']') {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

func isJSONSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
