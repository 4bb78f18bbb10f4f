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
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

const (
	DefaultThrottleMargin = 1.1
	DefaultTransientDelay = 10 * time.Second
)

// 😴 Sleeper blocks for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real Sleeper
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// 👀 Observer receives client events, used for metrics
type Observer interface {
	ObserveCall(err error)
	ObserveRetry(kind Kind, wait time.Duration)
	ObserveCacheHit()
	ObserveTokens(n int)
}

type nopObserver struct{}

func (nopObserver) ObserveCall(error)                {}
func (nopObserver) ObserveRetry(Kind, time.Duration) {}
func (nopObserver) ObserveCacheHit()                 {}
func (nopObserver) ObserveTokens(int)                {}

// 🔧 Options configures a Client
type Options struct {
	// Service performs the actual round trip
	Service Service
	// Limiter is shared by every worker; nil disables pacing
	Limiter *Limiter
	// CacheSize bounds the response cache; zero uses DefaultCacheSize, negative disables
	CacheSize int
	// ThrottleMargin multiplies the wait a throttle asks for
	ThrottleMargin float64
	// TransientDelay is the fixed wait after any other retryable error
	TransientDelay time.Duration
	// MaxThrottleRetries caps throttle retries per call, zero is unbounded
	MaxThrottleRetries int
	// MaxTransientRetries caps transient retries per call, zero is unbounded
	MaxTransientRetries int
	// Sleep defaults to llm.Sleep
	Sleep Sleeper
	// Observer defaults to a no-op
	Observer Observer
}

// 🤖 Client is the rate-limited, memoizing front of a Service. It is safe for
// concurrent use; a call may block for a long time while backing off.
type Client struct {
	service      Service
	limiter      *Limiter
	cache        *ResponseCache
	margin       float64
	transient    time.Duration
	maxThrottle  int
	maxTransient int
	sleep        Sleeper
	observer     Observer
}

// 🏭 NewClient creates a client with the given options
func NewClient(opts Options) (*Client, error) {
	if opts.Service == nil {
		return nil, errors.Errorf("service is required")
	}
	if opts.MaxThrottleRetries < 0 || opts.MaxTransientRetries < 0 {
		return nil, errors.Errorf("retry ceilings must not be negative")
	}

	c := &Client{
		service:      opts.Service,
		limiter:      opts.Limiter,
		margin:       opts.ThrottleMargin,
		transient:    opts.TransientDelay,
		maxThrottle:  opts.MaxThrottleRetries,
		maxTransient: opts.MaxTransientRetries,
		sleep:        opts.Sleep,
		observer:     opts.Observer,
	}

	size := opts.CacheSize
	if size == 0 {
		size = DefaultCacheSize
	}
	c.cache = NewResponseCache(size)

	if c.limiter == nil {
		c.limiter = NewLimiter(0, 0)
	}
	if c.margin <= 0 {
		c.margin = DefaultThrottleMargin
	}
	if c.transient <= 0 {
		c.transient = DefaultTransientDelay
	}
	if c.sleep == nil {
		c.sleep = Sleep
	}
	if c.observer == nil {
		c.observer = nopObserver{}
	}
	return c, nil
}

// 🔁 Transform sends text to the service and returns the response, retrying
// throttles and transient failures. Identical text within a run is served
// from the cache.
func (c *Client) Transform(ctx context.Context, text string) (string, error) {
	logger := zerolog.Ctx(ctx)

	if out, ok := c.cache.Get(text); ok {
		c.observer.ObserveCacheHit()
		logger.Debug().Int("prompt_len", len(text)).Msg("serving response from cache")
		return out, nil
	}

	throttles, transients := 0, 0
	for {
		if err := c.limiter.Wait(ctx, EstimateTokens(text)); err != nil {
			return "", err
		}

		res, err := c.service.Complete(ctx, text)
		c.observer.ObserveCall(err)
		if err == nil {
			c.limiter.Record(res.TotalTokens)
			c.observer.ObserveTokens(res.TotalTokens)
			c.cache.Add(text, res.Text)
			return res.Text, nil
		}

		kind, wait := Classify(err)
		switch kind {
		case KindCanceled:
			return "", errors.Errorf("calling service: %w", err)
		case KindInvalid:
			return "", errors.Errorf("%w: %s", ErrInvalidInput, err.Error())
		case KindThrottle:
			throttles++
			if c.maxThrottle > 0 && throttles > c.maxThrottle {
				return "", errors.Errorf("%w: throttled %d times: %s", ErrRetriesExhausted, c.maxThrottle, err.Error())
			}
			wait = time.Duration(float64(wait) * c.margin)
			logger.Warn().Err(err).Dur("wait", wait).Msg("rate limited, backing off")
		default:
			transients++
			if c.maxTransient > 0 && transients > c.maxTransient {
				return "", errors.Errorf("%w: failed %d times: %s", ErrRetriesExhausted, c.maxTransient, err.Error())
			}
			wait = c.transient
			logger.Error().Err(err).Dur("wait", wait).Msg("service error, retrying")
		}

		c.observer.ObserveRetry(kind, wait)
		if err := c.sleep(ctx, wait); err != nil {
			return "", errors.Errorf("backing off: %w", err)
		}
	}
}

// Usage returns the limiter's accounting
func (c *Client) Usage() Usage {
	return c.limiter.Usage()
}
