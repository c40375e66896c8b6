// Package config loads the hypergraph binary configuration from YAML.
//
// Every field has a default, so an empty or missing file is valid. Flags
// set on the command line are applied on top by the CLI.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/hypergraph/internal/constraint"
	"github.com/roach88/hypergraph/internal/domain"
	"github.com/roach88/hypergraph/internal/journal"
	"github.com/roach88/hypergraph/internal/schema"
	"github.com/roach88/hypergraph/internal/session"
)

// Config is the top-level configuration document.
type Config struct {
	// Schema is a CUE package directory, a .cue file or a YAML schema file.
	// Relative paths resolve against the config file's directory.
	Schema  string        `yaml:"schema"`
	Journal JournalConfig `yaml:"journal"`
	Session SessionConfig `yaml:"session"`
	Log     LogConfig     `yaml:"log"`
}

// JournalConfig selects the SQLite journal.
type JournalConfig struct {
	// Path is the database file. Empty disables journaling.
	Path       string `yaml:"path"`
	Serializer string `yaml:"serializer"`
}

// SessionConfig holds store-wide session defaults.
type SessionConfig struct {
	// RollbackDispatch is "default" or "originating".
	RollbackDispatch string `yaml:"rollback_dispatch"`
	Silent           bool   `yaml:"silent"`
	// CorrelationPrefix switches correlation ids from UUIDv7 to
	// prefix-N sequence ids.
	CorrelationPrefix string `yaml:"correlation_prefix"`
}

// LogConfig controls the default slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Journal: JournalConfig{Serializer: string(journal.SerializerJSON)},
		Session: SessionConfig{RollbackDispatch: session.RollbackDefault.String()},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	base := filepath.Dir(path)
	if cfg.Schema != "" && !filepath.IsAbs(cfg.Schema) {
		cfg.Schema = filepath.Join(base, cfg.Schema)
	}
	if p := cfg.Journal.Path; p != "" && p != ":memory:" && !filepath.IsAbs(p) {
		cfg.Journal.Path = filepath.Join(base, p)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every enumerated field.
func (c Config) Validate() error {
	var errs []error
	if _, err := journal.ParseSerializer(c.Journal.Serializer); err != nil {
		errs = append(errs, fmt.Errorf("journal.serializer: %w", err))
	}
	if _, err := session.ParseRollbackDispatch(c.Session.RollbackDispatch); err != nil {
		errs = append(errs, fmt.Errorf("session.rollback_dispatch: %w", err))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Logger builds the slog logger described by the log section.
func (c Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}

// LoadSchema loads the configured schema. A Config without a schema yields
// a nil registry.
func (c Config) LoadSchema() (*schema.Registry, error) {
	if c.Schema == "" {
		return nil, nil
	}
	return schema.Load(c.Schema)
}

// StoreOptions translates the session section and the schema into domain
// store options. Required properties declared by reg become check rules.
func (c Config) StoreOptions(reg *schema.Registry, logger *slog.Logger) ([]domain.Option, error) {
	dispatch, err := session.ParseRollbackDispatch(c.Session.RollbackDispatch)
	if err != nil {
		return nil, err
	}
	opts := []domain.Option{
		domain.WithRollbackDispatch(dispatch),
		domain.WithSilent(c.Session.Silent),
	}
	if logger != nil {
		opts = append(opts, domain.WithLogger(logger))
	}
	if c.Session.CorrelationPrefix != "" {
		opts = append(opts, domain.WithCorrelationGenerator(domain.NewSequenceGenerator(c.Session.CorrelationPrefix)))
	}
	if reg != nil {
		eng := constraint.NewEngine(constraint.WithHierarchy(reg))
		eng.RequireProperties(reg)
		opts = append(opts, domain.WithSchema(reg), domain.WithChecker(eng))
	}
	return opts, nil
}

// OpenJournal opens the configured journal, or returns nil when journaling
// is disabled.
func (c Config) OpenJournal() (*journal.Journal, error) {
	if c.Journal.Path == "" {
		return nil, nil
	}
	ser, err := journal.ParseSerializer(c.Journal.Serializer)
	if err != nil {
		return nil, err
	}
	return journal.Open(c.Journal.Path, journal.WithSerializer(ser))
}
