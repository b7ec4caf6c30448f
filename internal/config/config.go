// Package config loads chii's settings from a YAML file and the
// environment.
//
// Precedence, lowest first: built-in defaults, the file, CHII_* variables.
// The file is checked against an embedded CUE schema before it is decoded.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/chii/internal/remote"
	"github.com/roach88/chii/internal/store"
	"github.com/roach88/chii/internal/syncer"
)

//go:embed schema.cue
var schemaSource string

// Environment variables read by Load.
const (
	EnvDBPath   = "CHII_DB_PATH"
	EnvToken    = "CHII_TOKEN"
	EnvAPIURL   = "CHII_API_URL"
	EnvUsername = "CHII_USERNAME"
	EnvListen   = "CHII_LISTEN"
	EnvConfig   = "CHII_CONFIG"
)

// Defaults.
const (
	DefaultListen  = "127.0.0.1:8787"
	DefaultTimeout = 30 * time.Second
)

// ErrInvalidConfig is wrapped by every schema or decode failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds every setting.
type Config struct {
	DBPath    string   `yaml:"db_path" json:"db_path"`
	APIURL    string   `yaml:"api_url" json:"api_url"`
	Token     string   `yaml:"token" json:"token,omitempty"`
	Username  string   `yaml:"username" json:"username,omitempty"`
	UserAgent string   `yaml:"user_agent" json:"user_agent"`
	PageSize  int      `yaml:"page_size" json:"page_size"`
	ReadConns int      `yaml:"read_conns" json:"read_conns"`
	MaxPages  int64    `yaml:"max_pages" json:"max_pages,omitempty"` // 0 leaves the database uncapped
	Timeout   Duration `yaml:"timeout" json:"timeout"`
	Listen    string   `yaml:"listen" json:"listen"`
	LogLevel  string   `yaml:"log_level" json:"log_level"`
	LogFile   string   `yaml:"log_file" json:"log_file,omitempty"` // empty logs to stderr only
}

// Duration is a time.Duration written as a Go duration string.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses "30s" style values.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// UnmarshalText parses "30s" style values from JSON.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText renders the duration for JSON and YAML output.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		DBPath:    DefaultDBPath(),
		APIURL:    remote.DefaultBaseURL,
		UserAgent: remote.DefaultUserAgent,
		PageSize:  syncer.DefaultPageSize,
		ReadConns: store.DefaultReadConns,
		Timeout:   Duration{DefaultTimeout},
		Listen:    DefaultListen,
		LogLevel:  "info",
	}
}

// DefaultDBPath is ~/.chii/cache.db, or ./.chii/cache.db without a home
// directory.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".chii", "cache.db")
}

// DefaultPath is the config file used when none is given.
func DefaultPath() string {
	return filepath.Join(filepath.Dir(DefaultDBPath()), "config.yaml")
}

// Load reads path (or $CHII_CONFIG, or DefaultPath) and applies the
// environment. A missing file is not an error unless path was given
// explicitly.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		if p := os.Getenv(EnvConfig); p != "" {
			path, explicit = p, true
		} else {
			path = DefaultPath()
		}
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && !explicit:
		slog.Debug("no config file", "path", path)
	case err != nil:
		return Config{}, fmt.Errorf("read config: %w", err)
	default:
		if err := decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	}

	applyEnv(&cfg, os.Getenv)
	return cfg, nil
}

// Parse validates and decodes one config document over the defaults.
// The environment is not consulted.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := decode(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	if err := Validate(data); err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Validate checks a YAML document against the #Config schema.
func Validate(data []byte) error {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := def.Unify(ctx.Encode(doc))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, firstCUEError(err))
	}
	return nil
}

func firstCUEError(err error) string {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err.Error()
	}
	return errs[0].Error()
}

func applyEnv(cfg *Config, getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.DBPath, EnvDBPath)
	set(&cfg.Token, EnvToken)
	set(&cfg.APIURL, EnvAPIURL)
	set(&cfg.Username, EnvUsername)
	set(&cfg.Listen, EnvListen)
}

// Level maps LogLevel to a slog level.
func (c Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Redacted returns c with the token masked, for display.
func (c Config) Redacted() Config {
	if c.Token != "" {
		c.Token = "***"
	}
	return c
}

// EnsureDir creates the directory holding the database file.
func (c Config) EnsureDir() error {
	return os.MkdirAll(filepath.Dir(c.DBPath), 0o755)
}
