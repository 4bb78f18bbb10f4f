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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCompletions serves /chat/completions with a fixed status and body
func fakeCompletions(t *testing.T, code int, body string, gotPrompt *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) && gotPrompt != nil && len(req.Messages) > 0 {
			*gotPrompt = req.Messages[0].Content
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewOpenAIServiceRequiresKey(t *testing.T) {
	_, err := NewOpenAIService(OpenAIOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key is required")
}

func TestOpenAIServiceComplete(t *testing.T) {
	var prompt string
	srv := fakeCompletions(t, http.StatusOK, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"model": "gpt-4o-mini",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "<?php echo 1;"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17}
	}`, &prompt)

	svc, err := NewOpenAIService(OpenAIOptions{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	got, err := svc.Complete(context.Background(), "Optimize: <?php echo  1 ;")
	require.NoError(t, err)
	assert.Equal(t, "<?php echo 1;", got.Text)
	assert.Equal(t, 17, got.TotalTokens)
	assert.Equal(t, "Optimize: <?php echo  1 ;", prompt)
}

func TestOpenAIServiceErrorsClassify(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		body     string
		wantKind Kind
		wantWait time.Duration
	}{
		{
			name:     "rate_limit_with_wait",
			code:     http.StatusTooManyRequests,
			body:     `{"error": {"message": "Rate limit reached for gpt-4o-mini. Please try again in 1.5s.", "type": "tokens", "code": "rate_limit_exceeded"}}`,
			wantKind: KindThrottle,
			wantWait: 1500 * time.Millisecond,
		},
		{
			name:     "rate_limit_without_wait",
			code:     http.StatusTooManyRequests,
			body:     `{"error": {"message": "Rate limit reached.", "type": "requests"}}`,
			wantKind: KindTransient,
		},
		{
			name:     "bad_request",
			code:     http.StatusBadRequest,
			body:     `{"error": {"message": "maximum context length exceeded", "type": "invalid_request_error"}}`,
			wantKind: KindInvalid,
		},
		{
			name:     "server_error",
			code:     http.StatusBadGateway,
			body:     `{"error": {"message": "upstream unavailable", "type": "server_error"}}`,
			wantKind: KindTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := fakeCompletions(t, tt.code, tt.body, nil)
			svc, err := NewOpenAIService(OpenAIOptions{APIKey: "sk-test", BaseURL: srv.URL})
			require.NoError(t, err)

			_, err = svc.Complete(context.Background(), "x")
			require.Error(t, err)

			kind, wait := Classify(err)
			assert.Equal(t, tt.wantKind, kind)
			assert.Equal(t, tt.wantWait, wait)
		})
	}
}

func TestOpenAIServiceNoChoices(t *testing.T) {
	srv := fakeCompletions(t, http.StatusOK, `{"id": "x", "choices": [], "usage": {"total_tokens": 3}}`, nil)
	svc, err := NewOpenAIService(OpenAIOptions{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = svc.Complete(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}
