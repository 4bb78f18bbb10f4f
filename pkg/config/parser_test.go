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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 🧪 TestParserRegistration tests the parser registration system
func TestParserRegistration(t *testing.T) {
	originalParsers := parsers
	defer func() {
		parsers = originalParsers
	}()

	parsers = nil

	p := &JSONParser{}
	Register(p)
	assert.Len(t, parsers, 1, "should have 1 parser registered")
	assert.Same(t, p, parsers[0], "registered parser should match")
	assert.Nil(t, GetParser("config.yaml"), "yaml parser was removed")
}

// 🧪 TestParserSelection tests parser selection by file extension
func TestParserSelection(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     Parser
	}{
		{name: "yaml_file", filename: "config.yaml", want: &YAMLParser{}},
		{name: "yml_file", filename: ".llmopt.yml", want: &YAMLParser{}},
		{name: "hcl_file", filename: ".llmopt.hcl", want: &HCLParser{}},
		{name: "json_file", filename: "config.json", want: &JSONParser{}},
		{name: "json_upper", filename: "CONFIG.JSON ", want: &JSONParser{}},
		{name: "rc_file", filename: RCFile, want: nil},
		{name: "unknown_extension", filename: "config.txt", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GetParser(tt.filename)
			if tt.want == nil {
				assert.Nil(t, got, "should return nil without a known extension")
				return
			}
			require.NotNil(t, got, "should return a parser")
			assert.IsType(t, tt.want, got, "should return correct parser type")
		})
	}
}

// 🧪 TestHCLParsing tests HCL config parsing
func TestHCLParsing(t *testing.T) {
	t.Setenv("LLMOPT_TEST_DSN", "postgres://db/llmopt")

	tests := []struct {
		name        string
		config      string
		errContains string
		check       func(t *testing.T, cfg *Config)
	}{
		{
			name: "valid_hcl",
			config: `
extensions = [".php"]
ignore     = ["vendor/**", "storage/**"]
workers    = 4

retry {
  throttle_margin      = 1.5
  max_throttle_retries = 0
}
`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, []string{".php"}, cfg.Extensions)
				assert.Equal(t, []string{"vendor/**", "storage/**"}, cfg.Ignore)
				assert.Equal(t, 4, cfg.Workers)
				require.NotNil(t, cfg.Retry)
				assert.Equal(t, 1.5, cfg.Retry.ThrottleMargin)
				require.NotNil(t, cfg.Retry.MaxThrottleRetries)
				assert.Equal(t, 0, *cfg.Retry.MaxThrottleRetries)
				assert.Nil(t, cfg.Retry.MaxChunkAttempts)
				assert.Nil(t, cfg.LLM)
			},
		},
		{
			name: "env_reference",
			config: `
status {
  backend = "postgres"
  dsn     = env.LLMOPT_TEST_DSN
}
`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "postgres://db/llmopt", cfg.Status.DSN)
			},
		},
		{
			name:        "invalid_hcl_syntax",
			config:      "root = \n",
			errContains: "parsing HCL",
		},
		{
			name:        "invalid_block_type",
			config:      "unknown_block {\n  foo = \"bar\"\n}\n",
			errContains: "decoding HCL",
		},
		{
			name:        "wrong_type",
			config:      "workers = \"many\"\n",
			errContains: "decoding HCL",
		},
	}

	parser := &HCLParser{}
	ctx := context.Background()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := parser.Parse(ctx, []byte(tt.config))
			if tt.errContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

// 🧪 TestJSONParsing tests JSON config parsing
func TestJSONParsing(t *testing.T) {
	tests := []struct {
		name        string
		config      string
		errContains string
		check       func(t *testing.T, cfg *Config)
	}{
		{
			name:   "valid_json",
			config: `{"root": "src", "llm": {"model": "gpt-4o", "cache_size": 0}}`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "src", cfg.Root)
				assert.Equal(t, "gpt-4o", cfg.LLM.Model)
				require.NotNil(t, cfg.LLM.CacheSize)
				assert.Equal(t, 0, *cfg.LLM.CacheSize)
			},
		},
		{
			name:        "unknown_field",
			config:      `{"destination": "/tmp"}`,
			errContains: "unknown field",
		},
		{
			name:        "invalid_json",
			config:      `{"root": }`,
			errContains: "parsing .llmopt.json",
		},
		{
			name:        "trailing_object",
			config:      `{"root": "src"} {"root": "other"}`,
			errContains: "config must be a single JSON object",
		},
	}

	parser := &JSONParser{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := parser.Parse(context.Background(), []byte(tt.config))
			if tt.errContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

// 🧪 TestYAMLParsing tests YAML config parsing
func TestYAMLParsing(t *testing.T) {
	parser := &YAMLParser{}

	cfg, err := parser.Parse(context.Background(), []byte("status:\n  backend: redis\n  addr: localhost:6379\n"))
	require.NoError(t, err)
	require.NotNil(t, cfg.Status)
	assert.Equal(t, "redis", cfg.Status.Backend)
	assert.Equal(t, "localhost:6379", cfg.Status.Addr)

	_, err = parser.Parse(context.Background(), []byte("status:\n  backnd: redis\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing YAML")
}
