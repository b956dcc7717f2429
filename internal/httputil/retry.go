// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared across stages.
package httputil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/pdiddy/citation-crawler/pkg/types"
)

// RetryBaseDelay is the base backoff used when a policy leaves BaseDelay
// unset. Tests override this to avoid real sleeps.
var RetryBaseDelay = 1 * time.Second

const (
	defaultMaxAttempts = 5
	defaultMaxDelay    = 60 * time.Second
)

// RetryPolicy is a bounded exponential backoff. Attempt n (0-based) waits
// min(BaseDelay*2^n, MaxDelay) spread by ±Jitter before attempt n+1.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
}

// PolicyFrom converts configuration into a policy, filling unset fields.
func PolicyFrom(cfg types.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
		Jitter:      cfg.Jitter,
	}.withDefaults()
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = RetryBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Jitter > 1 {
		p.Jitter = 1
	}
	return p
}

// Backoff returns the delay to wait after the given failed attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	p = p.withDefaults()
	d := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		d *= 1 + p.Jitter*(2*rand.Float64()-1)
	}
	return time.Duration(d)
}

// Retryable reports whether a response status is transient: 429 or 5xx.
func Retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// RetryAfter parses a Retry-After header given in seconds or as an HTTP
// date. It returns 0 when the header is absent or unparseable.
func RetryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// Gate is called before every attempt, retries included. The graph client
// passes its rate limiter here.
type Gate func(ctx context.Context) error

// DoWithRetry executes req and retries transport errors, HTTP 429 and 5xx
// with the policy's backoff. A Retry-After header raises the delay up to
// MaxDelay. gate, when non-nil, runs before each attempt.
//
// Non-retryable responses are returned immediately. When attempts run out
// on a retryable status the last response is returned so the caller can
// inspect it; when they run out on transport errors the last error is
// returned wrapped. Context cancellation returns ctx.Err().
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, policy RetryPolicy, gate Gate) (*http.Response, error) {
	policy = policy.withDefaults()

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if gate != nil {
			if err := gate(ctx); err != nil {
				return nil, err
			}
		}

		resp, err := client.Do(req.Clone(ctx))
		last := attempt == policy.MaxAttempts-1

		var delay time.Duration
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			lastErr = err
			if last {
				break
			}
			delay = policy.Backoff(attempt)
		case !Retryable(resp.StatusCode):
			return resp, nil
		case last:
			return resp, nil
		default:
			delay = policy.Backoff(attempt)
			if ra := RetryAfter(resp); ra > delay {
				delay = min(ra, policy.MaxDelay)
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
		}
		if last {
			break
		}

		slog.Debug("retrying request",
			"url", req.URL.Redacted(), "attempt", attempt+1, "max_attempts", policy.MaxAttempts,
			"delay", delay, "cause", lastErr)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("giving up after %d attempts: %w", policy.MaxAttempts, lastErr)
}
