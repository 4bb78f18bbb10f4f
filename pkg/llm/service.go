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

package llm

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"gitlab.com/tozd/go/errors"
)

// DefaultModel is used when the configuration names none
const DefaultModel = "gpt-4o-mini"

// 💬 Completion is a single response from the transformation service
type Completion struct {
	Text        string
	TotalTokens int
}

// 🌐 Service is one request/response round trip to the transformation
// service, with no retry of its own
type Service interface {
	Complete(ctx context.Context, prompt string) (Completion, error)
}

// 🔧 OpenAIOptions configures the OpenAI-compatible service
type OpenAIOptions struct {
	APIKey  string
	BaseURL string // empty uses api.openai.com
	Model   string
}

// 🤖 OpenAIService talks to an OpenAI-compatible chat completions endpoint
type OpenAIService struct {
	client *openai.Client
	model  string
}

// 🏭 NewOpenAIService creates the production service
func NewOpenAIService(opts OpenAIOptions) (*OpenAIService, error) {
	if opts.APIKey == "" {
		return nil, errors.Errorf("api key is required")
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	model := opts.Model
	if model == "" {
		model = DefaultModel
	}

	return &OpenAIService{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}, nil
}

// Complete implements Service
func (s *OpenAIService) Complete(ctx context.Context, prompt string) (Completion, error) {
	zerolog.Ctx(ctx).Trace().Str("model", s.model).Int("prompt_len", len(prompt)).Msg("sending chat completion")

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return Completion{}, errors.Errorf("creating chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return Completion{}, errors.Errorf("chat completion returned no choices")
	}

	return Completion{
		Text:        resp.Choices[0].Message.Content,
		TotalTokens: resp.Usage.TotalTokens,
	}, nil
}
