// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ratelimit gates every outbound graph API call behind one
// process-wide token bucket.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pdiddy/citation-crawler/internal/metrics"
	"github.com/pdiddy/citation-crawler/pkg/types"
)

// Tier names the API rate tier a limiter was built for.
type Tier string

const (
	TierAnonymous Tier = "anonymous"
	TierPolite    Tier = "polite"
)

// Default rates for the two tiers, in requests per second.
const (
	DefaultAnonymousRPS = 1.0
	DefaultPoliteRPS    = 10.0
)

// Limiter is safe for concurrent use. Acquire is the only call that blocks.
type Limiter struct {
	lim     *rate.Limiter
	tier    Tier
	metrics *metrics.Metrics
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithMetrics records acquisition wait times.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

// New builds a limiter for the tier selected by contact: a non-empty contact
// identifier unlocks the polite rate. Zero config values fall back to the
// defaults; Burst defaults to 1 so grants are spaced by at least 1/rate.
func New(cfg types.RateConfig, contact string, opts ...Option) *Limiter {
	tier := TierAnonymous
	rps := cfg.AnonymousRPS
	if rps <= 0 {
		rps = DefaultAnonymousRPS
	}
	if strings.TrimSpace(contact) != "" {
		tier = TierPolite
		rps = cfg.PoliteRPS
		if rps <= 0 {
			rps = DefaultPoliteRPS
		}
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	l := &Limiter{lim: rate.NewLimiter(rate.Limit(rps), burst), tier: tier}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Acquire blocks until one token is available and consumes it, or returns
// the context error.
func (l *Limiter) Acquire(ctx context.Context) error {
	start := time.Now()
	if err := l.lim.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("acquiring rate token: %w", err)
	}
	l.metrics.LimiterWait(time.Since(start))
	return nil
}

// Rate returns the configured tokens per second.
func (l *Limiter) Rate() float64 { return float64(l.lim.Limit()) }

func (l *Limiter) Burst() int { return l.lim.Burst() }

func (l *Limiter) Tier() Tier { return l.tier }
