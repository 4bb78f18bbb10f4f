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
	"net/http"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"gitlab.com/tozd/go/errors"
)

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name   string
		msg    string
		want   time.Duration
		wantOK bool
	}{
		{name: "seconds", msg: "Rate limit reached. Please try again in 2s.", want: 2 * time.Second, wantOK: true},
		{name: "fractional_seconds", msg: "Please try again in 1.25s", want: 1250 * time.Millisecond, wantOK: true},
		{name: "milliseconds", msg: "please TRY AGAIN IN 300ms", want: 300 * time.Millisecond, wantOK: true},
		{name: "no_wait", msg: "Rate limit reached.", wantOK: false},
		{name: "minutes_not_supported", msg: "try again in 2m", wantOK: false},
		{name: "short_milliseconds", msg: "Please try again in 20ms.", want: 20 * time.Millisecond, wantOK: true},
		{name: "upper_case", msg: "please TRY AGAIN IN 7s", want: 7 * time.Second, wantOK: true},
		{name: "no_duration", msg: "try later", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseRetryAfter(tt.msg)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind Kind
		wantWait time.Duration
	}{
		{name: "nil", err: nil, wantKind: KindTransient},
		{name: "canceled", err: errors.Errorf("calling: %w", context.Canceled), wantKind: KindCanceled},
		{name: "deadline", err: context.DeadlineExceeded, wantKind: KindCanceled},
		{name: "invalid_input", err: errors.Errorf("%w: too long", ErrInvalidInput), wantKind: KindInvalid},
		{name: "throttle_error", err: &ThrottleError{Wait: time.Second}, wantKind: KindThrottle, wantWait: time.Second},
		{name: "throttle_error_without_wait", err: &ThrottleError{}, wantKind: KindTransient},
		{name: "wrapped_throttle_error", err: errors.Errorf("calling: %w", &ThrottleError{Wait: time.Second}), wantKind: KindThrottle, wantWait: time.Second},
		{
			name:     "request_error_rate_limit",
			err:      &openai.RequestError{HTTPStatusCode: http.StatusTooManyRequests, Err: errors.New("Please try again in 2s")},
			wantKind: KindThrottle,
			wantWait: 2 * time.Second,
		},
		{
			name:     "plain_rate_limit_message",
			err:      errors.New("Rate limit reached. Please try again in 4s"),
			wantKind: KindThrottle,
			wantWait: 4 * time.Second,
		},
		{
			name:     "api_429_with_wait",
			err:      errors.Errorf("creating chat completion: %w", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "Please try again in 3s."}),
			wantKind: KindThrottle,
			wantWait: 3 * time.Second,
		},
		{name: "api_401", err: &openai.APIError{HTTPStatusCode: http.StatusUnauthorized, Message: "bad key"}, wantKind: KindInvalid},
		{name: "api_500", err: &openai.APIError{HTTPStatusCode: http.StatusInternalServerError}, wantKind: KindTransient},
		{name: "plain_rate_limit_text", err: errors.New("rate limit exceeded, try again in 500ms"), wantKind: KindThrottle, wantWait: 500 * time.Millisecond},
		{name: "plain_error", err: errors.New("connection reset by peer"), wantKind: KindTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, wait := Classify(tt.err)
			assert.Equal(t, tt.wantKind, kind)
			assert.Equal(t, tt.wantWait, wait)
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "throttle", KindThrottle.String())
	assert.Equal(t, "transient", KindTransient.String())
	assert.Equal(t, "invalid", KindInvalid.String())
	assert.Equal(t, "canceled", KindCanceled.String())
}
