// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/walteh/llmopt/pkg/chunk"
	"github.com/walteh/llmopt/pkg/llm"
	"github.com/walteh/llmopt/pkg/partition"
	"github.com/walteh/llmopt/pkg/status"
	"gitlab.com/tozd/go/errors"
)

// 🔌 Parser is the interface for config parsers
type Parser interface {
	// 📝 Parse parses the config from bytes
	Parse(ctx context.Context, data []byte) (*Config, error)

	// 🔍 CanParse checks if this parser can handle the given file
	CanParse(filename string) bool
}

var (
	// 🗺️ parsers is a list of available parsers
	parsers []Parser
)

// 📝 Register registers a parser
func Register(p Parser) {
	parsers = append(parsers, p)
}

// 🎯 GetParser returns a parser that can handle the given file
func GetParser(filename string) Parser {
	for _, p := range parsers {
		if p.CanParse(filename) {
			return p
		}
	}
	return nil
}

// ⚙️ Defaults applied by Validate
const (
	DefaultRoot                = "."
	DefaultOutputDir           = ".llmopt"
	DefaultAPIKeyEnv           = "OPENAI_API_KEY"
	DefaultTransientDelay      = "10s"
	DefaultChunkDelay          = "5s"
	DefaultMaxThrottleRetries  = 20
	DefaultMaxTransientRetries = 10
	DefaultMaxChunkAttempts    = 5
)

// 🤖 LLMConfig configures the transformation service
type LLMConfig struct {
	Model        string `json:"model,omitempty" yaml:"model,omitempty" hcl:"model,optional"`
	APIKeyEnv    string `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty" hcl:"api_key_env,optional"`
	BaseURL      string `json:"base_url,omitempty" yaml:"base_url,omitempty" hcl:"base_url,optional"`
	PromptPrefix string `json:"prompt_prefix,omitempty" yaml:"prompt_prefix,omitempty" hcl:"prompt_prefix,optional"`
	CacheSize    *int   `json:"cache_size,omitempty" yaml:"cache_size,omitempty" hcl:"cache_size,optional"`
}

// 🔁 RetryConfig configures waits and ceilings; a zero ceiling retries forever
type RetryConfig struct {
	ThrottleMargin      float64 `json:"throttle_margin,omitempty" yaml:"throttle_margin,omitempty" hcl:"throttle_margin,optional"`
	TransientDelay      string  `json:"transient_delay,omitempty" yaml:"transient_delay,omitempty" hcl:"transient_delay,optional"`
	ChunkDelay          string  `json:"chunk_delay,omitempty" yaml:"chunk_delay,omitempty" hcl:"chunk_delay,optional"`
	MaxThrottleRetries  *int    `json:"max_throttle_retries,omitempty" yaml:"max_throttle_retries,omitempty" hcl:"max_throttle_retries,optional"`
	MaxTransientRetries *int    `json:"max_transient_retries,omitempty" yaml:"max_transient_retries,omitempty" hcl:"max_transient_retries,optional"`
	MaxChunkAttempts    *int    `json:"max_chunk_attempts,omitempty" yaml:"max_chunk_attempts,omitempty" hcl:"max_chunk_attempts,optional"`

	transientDelay time.Duration
	chunkDelay     time.Duration
}

// 🚦 RateConfig paces requests; zero disables a dimension
type RateConfig struct {
	RequestsPerMinute int  `json:"requests_per_minute,omitempty" yaml:"requests_per_minute,omitempty" hcl:"requests_per_minute,optional"`
	TokensPerMinute   *int `json:"tokens_per_minute,omitempty" yaml:"tokens_per_minute,omitempty" hcl:"tokens_per_minute,optional"`
}

// 💾 StatusConfig selects the status store backend
type StatusConfig struct {
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty" hcl:"backend,optional"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty" hcl:"path,optional"`
	DSN     string `json:"dsn,omitempty" yaml:"dsn,omitempty" hcl:"dsn,optional"`
	Table   string `json:"table,omitempty" yaml:"table,omitempty" hcl:"table,optional"`
	Addr    string `json:"addr,omitempty" yaml:"addr,omitempty" hcl:"addr,optional"`
	Prefix  string `json:"prefix,omitempty" yaml:"prefix,omitempty" hcl:"prefix,optional"`
}

// 📚 Config represents the complete configuration
type Config struct {
	Root        string   `json:"root,omitempty" yaml:"root,omitempty" hcl:"root,optional"`
	OutputDir   string   `json:"output_dir,omitempty" yaml:"output_dir,omitempty" hcl:"output_dir,optional"`
	Extensions  []string `json:"extensions,omitempty" yaml:"extensions,omitempty" hcl:"extensions,optional"`
	Ignore      []string `json:"ignore,omitempty" yaml:"ignore,omitempty" hcl:"ignore,optional"`
	BatchSize   int      `json:"batch_size,omitempty" yaml:"batch_size,omitempty" hcl:"batch_size,optional"`
	Workers     int      `json:"workers,omitempty" yaml:"workers,omitempty" hcl:"workers,optional"`
	ChunkSize   int      `json:"chunk_size,omitempty" yaml:"chunk_size,omitempty" hcl:"chunk_size,optional"`
	ResumeMode  string   `json:"resume_mode,omitempty" yaml:"resume_mode,omitempty" hcl:"resume_mode,optional"`
	Snapshot    *bool    `json:"snapshot,omitempty" yaml:"snapshot,omitempty" hcl:"snapshot,optional"`
	MetricsFile string   `json:"metrics_file,omitempty" yaml:"metrics_file,omitempty" hcl:"metrics_file,optional"`

	LLM    *LLMConfig    `json:"llm,omitempty" yaml:"llm,omitempty" hcl:"llm,block"`
	Retry  *RetryConfig  `json:"retry,omitempty" yaml:"retry,omitempty" hcl:"retry,block"`
	Rate   *RateConfig   `json:"rate,omitempty" yaml:"rate,omitempty" hcl:"rate,block"`
	Status *StatusConfig `json:"status,omitempty" yaml:"status,omitempty" hcl:"status,block"`
}

// 🏭 Default returns a validated config with every default filled in
func Default() *Config {
	cfg := &Config{}
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("default config is invalid: %v", err))
	}
	return cfg
}

// 🎯 Load loads the configuration from a file
func Load(ctx context.Context, path string) (*Config, error) {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Str("path", path).Msg("loading configuration")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Errorf("reading config file: %w", err)
	}

	var cfg *Config
	if p := GetParser(path); p != nil {
		cfg, err = p.Parse(ctx, data)
		if err != nil {
			return nil, errors.Errorf("parsing config: %w", err)
		}
	} else if filepath.Ext(path) == "" || filepath.Base(path) == RCFile {
		// extensionless rc files may be YAML or HCL
		cfg, err = parseAny(ctx, data)
		if err != nil {
			return nil, errors.Errorf("parsing %s: %w", filepath.Base(path), err)
		}
	} else {
		return nil, errors.Errorf("no parser found for file: %s", path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func parseAny(ctx context.Context, data []byte) (*Config, error) {
	cfg, yamlErr := (&YAMLParser{}).Parse(ctx, data)
	if yamlErr == nil {
		return cfg, nil
	}
	cfg, hclErr := (&HCLParser{}).Parse(ctx, data)
	if hclErr == nil {
		return cfg, nil
	}
	return nil, errors.Errorf("not YAML (%v) or HCL: %w", yamlErr, hclErr)
}

func intOr(p *int, def int) *int {
	if p != nil {
		return p
	}
	return &def
}

// 🔍 Validate checks the configuration and fills defaults in place
func (cfg *Config) Validate() error {
	if cfg.Root == "" {
		cfg.Root = DefaultRoot
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir
	}
	cfg.Root = filepath.Clean(cfg.Root)
	cfg.OutputDir = filepath.Clean(cfg.OutputDir)

	if len(cfg.Extensions) == 0 {
		cfg.Extensions = append([]string(nil), partition.DefaultExtensions...)
	}
	if err := cfg.Filter().Validate(); err != nil {
		return err
	}

	switch {
	case cfg.BatchSize < 0:
		return errors.Errorf("batch_size must not be negative, got %d", cfg.BatchSize)
	case cfg.BatchSize == 0:
		cfg.BatchSize = partition.DefaultBatchSize
	}
	switch {
	case cfg.Workers < 0:
		return errors.Errorf("workers must not be negative, got %d", cfg.Workers)
	case cfg.Workers == 0:
		cfg.Workers = 10
	}
	switch {
	case cfg.ChunkSize < 0:
		return errors.Errorf("chunk_size must not be negative, got %d", cfg.ChunkSize)
	case cfg.ChunkSize == 0:
		cfg.ChunkSize = chunk.DefaultLimit
	}

	switch status.ResumeMode(cfg.ResumeMode) {
	case "":
		cfg.ResumeMode = string(status.ResumeCompleted)
	case status.ResumeCompleted, status.ResumeTerminal:
	default:
		return errors.Errorf("resume_mode must be %q or %q, got %q", status.ResumeCompleted, status.ResumeTerminal, cfg.ResumeMode)
	}

	if cfg.Snapshot == nil {
		on := true
		cfg.Snapshot = &on
	}

	if err := cfg.validateLLM(); err != nil {
		return err
	}
	if err := cfg.validateRetry(); err != nil {
		return err
	}
	if err := cfg.validateRate(); err != nil {
		return err
	}
	return cfg.validateStatus()
}

func (cfg *Config) validateLLM() error {
	if cfg.LLM == nil {
		cfg.LLM = &LLMConfig{}
	}
	l := cfg.LLM
	if l.Model == "" {
		l.Model = llm.DefaultModel
	}
	if l.APIKeyEnv == "" {
		l.APIKeyEnv = DefaultAPIKeyEnv
	}
	if l.PromptPrefix == "" {
		l.PromptPrefix = llm.DefaultPromptPrefix
	}
	l.CacheSize = intOr(l.CacheSize, llm.DefaultCacheSize)
	if *l.CacheSize < 0 {
		return errors.Errorf("llm.cache_size must not be negative, got %d", *l.CacheSize)
	}
	return nil
}

func (cfg *Config) validateRetry() error {
	if cfg.Retry == nil {
		cfg.Retry = &RetryConfig{}
	}
	r := cfg.Retry

	if r.ThrottleMargin == 0 {
		r.ThrottleMargin = llm.DefaultThrottleMargin
	}
	if r.ThrottleMargin < 1 {
		return errors.Errorf("retry.throttle_margin must be at least 1, got %v", r.ThrottleMargin)
	}

	if r.TransientDelay == "" {
		r.TransientDelay = DefaultTransientDelay
	}
	if r.ChunkDelay == "" {
		r.ChunkDelay = DefaultChunkDelay
	}
	var err error
	if r.transientDelay, err = parseDelay("retry.transient_delay", r.TransientDelay); err != nil {
		return err
	}
	if r.chunkDelay, err = parseDelay("retry.chunk_delay", r.ChunkDelay); err != nil {
		return err
	}

	r.MaxThrottleRetries = intOr(r.MaxThrottleRetries, DefaultMaxThrottleRetries)
	r.MaxTransientRetries = intOr(r.MaxTransientRetries, DefaultMaxTransientRetries)
	r.MaxChunkAttempts = intOr(r.MaxChunkAttempts, DefaultMaxChunkAttempts)
	for name, v := range map[string]int{
		"retry.max_throttle_retries":  *r.MaxThrottleRetries,
		"retry.max_transient_retries": *r.MaxTransientRetries,
		"retry.max_chunk_attempts":    *r.MaxChunkAttempts,
	} {
		if v < 0 {
			return errors.Errorf("%s must not be negative, got %d", name, v)
		}
	}
	return nil
}

func parseDelay(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.Errorf("parsing %s: %w", name, err)
	}
	if d <= 0 {
		return 0, errors.Errorf("%s must be positive, got %s", name, value)
	}
	return d, nil
}

func (cfg *Config) validateRate() error {
	if cfg.Rate == nil {
		cfg.Rate = &RateConfig{}
	}
	cfg.Rate.TokensPerMinute = intOr(cfg.Rate.TokensPerMinute, llm.DefaultTokensPerMinute)
	if cfg.Rate.RequestsPerMinute < 0 {
		return errors.Errorf("rate.requests_per_minute must not be negative, got %d", cfg.Rate.RequestsPerMinute)
	}
	if *cfg.Rate.TokensPerMinute < 0 {
		return errors.Errorf("rate.tokens_per_minute must not be negative, got %d", *cfg.Rate.TokensPerMinute)
	}
	return nil
}

func (cfg *Config) validateStatus() error {
	if cfg.Status == nil {
		cfg.Status = &StatusConfig{}
	}
	s := cfg.Status
	if s.Backend == "" {
		s.Backend = status.BackendFile
	}
	switch s.Backend {
	case status.BackendFile, status.BackendBadger:
	case status.BackendPostgres:
		if s.DSN == "" {
			return errors.Errorf("status.dsn is required for the postgres backend")
		}
	case status.BackendRedis:
		if s.Addr == "" {
			return errors.Errorf("status.addr is required for the redis backend")
		}
	default:
		return errors.Errorf("unknown status.backend %q", s.Backend)
	}
	return nil
}

// 🔍 Filter returns the discovery filter
func (cfg *Config) Filter() partition.Filter {
	return partition.Filter{Extensions: cfg.Extensions, Ignore: cfg.Ignore}
}

// 💾 StatusOptions returns the store options; the file backend lives in OutputDir
func (cfg *Config) StatusOptions() status.Options {
	return status.Options{
		Backend: cfg.Status.Backend,
		Dir:     cfg.OutputDir,
		Path:    cfg.Status.Path,
		DSN:     cfg.Status.DSN,
		Table:   cfg.Status.Table,
		Addr:    cfg.Status.Addr,
		Prefix:  cfg.Status.Prefix,
	}
}

// Mode returns the resume mode
func (cfg *Config) Mode() status.ResumeMode {
	return status.ResumeMode(cfg.ResumeMode)
}

// SnapshotEnabled reports whether optimize.json is written
func (cfg *Config) SnapshotEnabled() bool {
	return cfg.Snapshot == nil || *cfg.Snapshot
}

// TransientDelay is the parsed retry.transient_delay
func (cfg *Config) TransientDelay() time.Duration {
	return cfg.Retry.transientDelay
}

// ChunkDelay is the parsed retry.chunk_delay
func (cfg *Config) ChunkDelay() time.Duration {
	return cfg.Retry.chunkDelay
}

// 🔑 APIKey reads the key from the configured environment variable
func (cfg *Config) APIKey() (string, error) {
	key := strings.TrimSpace(os.Getenv(cfg.LLM.APIKeyEnv))
	if key == "" {
		return "", errors.Errorf("environment variable %s is not set", cfg.LLM.APIKeyEnv)
	}
	return key, nil
}

// 📝 String returns a string representation of the config
func (cfg *Config) String() string {
	return fmt.Sprintf("%s -> %s [%s, %s backend, %d workers x %d files]",
		cfg.Root, cfg.OutputDir, cfg.LLM.Model, cfg.Status.Backend, cfg.Workers, cfg.BatchSize)
}
