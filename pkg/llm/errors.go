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
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"gitlab.com/tozd/go/errors"
)

var (
	// ErrInvalidInput marks a request the service rejected permanently. It is never retried.
	ErrInvalidInput = errors.Base("invalid input")

	// ErrRetriesExhausted is returned once a configured retry ceiling is reached.
	ErrRetriesExhausted = errors.Base("retries exhausted")
)

// 🚦 ThrottleError is a rate limit signal carrying the wait the service asked for
type ThrottleError struct {
	Wait time.Duration
	Err  error
}

func (e *ThrottleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("throttled (retry in %s): %v", e.Wait, e.Err)
	}
	return fmt.Sprintf("throttled (retry in %s)", e.Wait)
}

func (e *ThrottleError) Unwrap() error {
	return e.Err
}

// 🏷️ Kind is how the client reacts to a failed call
type Kind int

const (
	KindTransient Kind = iota
	KindThrottle
	KindInvalid
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindThrottle:
		return "throttle"
	case KindInvalid:
		return "invalid"
	case KindCanceled:
		return "canceled"
	default:
		return "transient"
	}
}

var retryAfterPattern = regexp.MustCompile(`(?i)try again in (\d+(?:\.\d+)?)\s*(ms|s)\b`)

// ⏱️ ParseRetryAfter extracts the wait from messages like "Please try again in 1.5s"
func ParseRetryAfter(msg string) (time.Duration, bool) {
	m := retryAfterPattern.FindStringSubmatch(msg)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	unit := time.Second
	if strings.EqualFold(m[2], "ms") {
		unit = time.Millisecond
	}
	return time.Duration(v * float64(unit)), true
}

// 🔍 Classify decides how a service error is retried. For throttles the
// returned duration is the wait the service asked for, before any margin.
func Classify(err error) (Kind, time.Duration) {
	if err == nil {
		return KindTransient, 0
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled, 0
	}
	if errors.Is(err, ErrInvalidInput) {
		return KindInvalid, 0
	}

	var te *ThrottleError
	if errors.As(err, &te) {
		if te.Wait > 0 {
			return KindThrottle, te.Wait
		}
		return KindTransient, 0
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode, apiErr.Message)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode, reqErr.Error())
	}

	if wait, ok := ParseRetryAfter(err.Error()); ok && strings.Contains(strings.ToLower(err.Error()), "rate limit") {
		return KindThrottle, wait
	}

	return KindTransient, 0
}

func classifyStatus(code int, msg string) (Kind, time.Duration) {
	switch code {
	case http.StatusTooManyRequests:
		// a 429 without a parseable wait falls back to the fixed transient delay
		if wait, ok := ParseRetryAfter(msg); ok {
			return KindThrottle, wait
		}
		return KindTransient, 0
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden,
		http.StatusNotFound, http.StatusUnprocessableEntity:
		return KindInvalid, 0
	default:
		return KindTransient, 0
	}
}
