// pkg/config/config.go
//
// Configuration for the 2kc broker: a single JSON document at
// ~/.2kc/config.json, mode 0600, with field-wise defaults. Secrets that
// should not live in the file (bot token, auth token) may instead come
// from ~/.2kc/.env.

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	cerr "github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Defaults.
const (
	DefaultHost              = "127.0.0.1"
	DefaultPort              = 2274
	DefaultApprovalTimeoutMs = 300000

	ModeStandalone = "standalone"
	ModeClient     = "client"
)

// ErrInvalidConfig marks configuration validation failures.
var ErrInvalidConfig = cerr.New("invalid configuration")

// ServerConfig is where the broker daemon listens, and the bearer token
// protecting it.
type ServerConfig struct {
	Host      string `json:"host" validate:"required"`
	Port      int    `json:"port" validate:"min=1,max=65535"`
	AuthToken string `json:"authToken,omitempty"`
}

// StoreConfig locates the secret store file.
type StoreConfig struct {
	Path string `json:"path" validate:"required"`
}

// DiscordConfig wires the approval channel.
type DiscordConfig struct {
	WebhookURL string `json:"webhookUrl"`
	BotToken   string `json:"botToken"`
	ChannelID  string `json:"channelId"`
}

// Config is the full broker configuration.
type Config struct {
	Mode                   string          `json:"mode" validate:"oneof=standalone client"`
	Server                 ServerConfig    `json:"server"`
	Store                  StoreConfig     `json:"store"`
	Discord                *DiscordConfig  `json:"discord,omitempty"`
	RequireApproval        map[string]bool `json:"requireApproval"`
	DefaultRequireApproval bool            `json:"defaultRequireApproval"`
	ApprovalTimeoutMs      int             `json:"approvalTimeoutMs" validate:"gt=0"`
}

var validate = validator.New()

// Dir returns the 2kc home directory (~/.2kc).
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", cerr.Wrap(err, "failed to resolve home directory")
	}
	return filepath.Join(home, ".2kc"), nil
}

// DefaultPath returns ~/.2kc/config.json.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Default returns a configuration with every field at its default.
func Default() *Config {
	storePath := "~/.2kc/secrets.json"
	return &Config{
		Mode: ModeStandalone,
		Server: ServerConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Store:                  StoreConfig{Path: storePath},
		RequireApproval:        map[string]bool{},
		DefaultRequireApproval: false,
		ApprovalTimeoutMs:      DefaultApprovalTimeoutMs,
	}
}

// Load reads the config file, applies defaults for missing fields, expands
// the store path, and overlays env-provided credentials. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	loadDotenv()

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, cerr.Wrapf(err, "failed to read config %s", path)
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, cerr.Wrapf(ErrInvalidConfig, "%s: %v", path, err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	cfg.Store.Path = ExpandHome(cfg.Store.Path)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path with mode 0600, creating the parent directory.
func Save(path string, cfg *Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return cerr.Wrapf(err, "failed to create config directory for %s", path)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return cerr.Wrap(err, "failed to encode config")
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return cerr.Wrapf(err, "failed to write config %s", path)
	}
	return os.Chmod(path, 0600)
}

// Validate checks the struct-tag field constraints (mode, port range,
// required host and store path, positive approval timeout). It does not
// check per-mode requirements: the client-mode auth token is checked by
// service.New.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if cerr.As(err, &verrs) && len(verrs) > 0 {
			return cerr.Wrapf(ErrInvalidConfig, "field %s failed %s validation", verrs[0].Namespace(), verrs[0].Tag())
		}
		return cerr.Wrap(ErrInvalidConfig, err.Error())
	}
	return nil
}

// Redacted returns a copy safe for display: tokens are cut to a short
// prefix, the webhook url likewise.
func (c *Config) Redacted() *Config {
	cp := *c
	cp.Server.AuthToken = redactPrefix(c.Server.AuthToken, 4)
	if c.Discord != nil {
		d := *c.Discord
		d.BotToken = redactPrefix(d.BotToken, 4)
		d.WebhookURL = redactPrefix(d.WebhookURL, 20)
		cp.Discord = &d
	}
	if c.RequireApproval != nil {
		cp.RequireApproval = make(map[string]bool, len(c.RequireApproval))
		for k, v := range c.RequireApproval {
			cp.RequireApproval[k] = v
		}
	}
	return &cp
}

// ExpandHome expands a leading "~" to the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/"))
	}
	return path
}

func applyDefaults(cfg *Config) {
	if cfg.Mode == "" {
		cfg.Mode = ModeStandalone
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "~/.2kc/secrets.json"
	}
	if cfg.RequireApproval == nil {
		cfg.RequireApproval = map[string]bool{}
	}
	if cfg.ApprovalTimeoutMs == 0 {
		cfg.ApprovalTimeoutMs = DefaultApprovalTimeoutMs
	}
}

func applyEnvOverrides(cfg *Config) {
	if tok := os.Getenv("2KC_AUTH_TOKEN"); tok != "" {
		cfg.Server.AuthToken = tok
	}
	if cfg.Discord != nil {
		if tok := os.Getenv("DISCORD_BOT_TOKEN"); tok != "" {
			cfg.Discord.BotToken = tok
		}
		if url := os.Getenv("DISCORD_WEBHOOK_URL"); url != "" {
			cfg.Discord.WebhookURL = url
		}
	}
}

// loadDotenv loads ~/.2kc/.env into the process environment when present.
func loadDotenv() {
	dir, err := Dir()
	if err != nil {
		return
	}
	_ = godotenv.Load(filepath.Join(dir, ".env"))
}

func redactPrefix(s string, keep int) string {
	if s == "" {
		return ""
	}
	if len(s) <= keep {
		return s + "..."
	}
	return s[:keep] + "..."
}
