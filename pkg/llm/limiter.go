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
	"sync"
	"time"
	"unicode/utf8"

	"gitlab.com/tozd/go/errors"
	"golang.org/x/time/rate"
)

// DefaultTokensPerMinute matches the account tier the tool was first run against
const DefaultTokensPerMinute = 30000

// 📊 Usage is a point-in-time view of the limiter's accounting
type Usage struct {
	Calls        int64 // successful service calls this run
	TotalTokens  int64 // tokens reported by the service this run
	WindowTokens int   // tokens reported in the current wall-clock minute
}

// 🚦 Limiter paces requests and tracks token usage. One Limiter is shared by
// every worker; all methods are safe for concurrent use.
type Limiter struct {
	requests *rate.Limiter
	tokens   *rate.Limiter
	now      func() time.Time

	mu           sync.Mutex
	window       time.Time
	windowTokens int
	totalTokens  int64
	calls        int64
}

// 🏭 NewLimiter builds a limiter; a zero rpm or tpm disables that dimension
func NewLimiter(rpm, tpm int) *Limiter {
	return &Limiter{
		requests: perMinute(rpm),
		tokens:   perMinute(tpm),
		now:      time.Now,
	}
}

func perMinute(n int) *rate.Limiter {
	if n <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(float64(n)/60.0), n)
}

// ⏳ Wait blocks until one request carrying roughly estTokens may be sent
func (l *Limiter) Wait(ctx context.Context, estTokens int) error {
	if err := l.requests.Wait(ctx); err != nil {
		return errors.Errorf("waiting for request budget: %w", err)
	}

	n := estTokens
	if burst := l.tokens.Burst(); l.tokens.Limit() != rate.Inf && n > burst {
		n = burst
	}
	if n <= 0 {
		return nil
	}
	if err := l.tokens.WaitN(ctx, n); err != nil {
		return errors.Errorf("waiting for token budget: %w", err)
	}
	return nil
}

// 📝 Record accounts the tokens a completed call actually used
func (l *Limiter) Record(tokens int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	minute := l.now().Truncate(time.Minute)
	if !minute.Equal(l.window) {
		l.window = minute
		l.windowTokens = 0
	}
	l.windowTokens += tokens
	l.totalTokens += int64(tokens)
	l.calls++
}

// Usage returns the current accounting
func (l *Limiter) Usage() Usage {
	l.mu.Lock()
	defer l.mu.Unlock()

	u := Usage{Calls: l.calls, TotalTokens: l.totalTokens}
	if l.now().Truncate(time.Minute).Equal(l.window) {
		u.WindowTokens = l.windowTokens
	}
	return u
}

// EstimateTokens approximates a prompt's token count at four characters per token
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text)/4 + 1
}
