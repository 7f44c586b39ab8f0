/*
Copyright 2025 PluginHub Authors
SPDX-License-Identifier: Apache-2.0
*/

package gh

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var (
	secondaryRateLimitTriggered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "github_secondary_rate_limit_triggered_total",
			Help: "Total number of times GitHub secondary rate limit was triggered",
		},
		[]string{"status_code", "reason"},
	)

	secondaryRateLimitWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "github_secondary_rate_limit_wait_seconds",
			Help:    "Duration of secondary rate limit pauses in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"reason"},
	)

	secondaryRateLimitRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "github_secondary_rate_limit_retries_total",
			Help: "Total number of automatic retries after secondary rate limit",
		},
		[]string{"outcome"},
	)
)

// https://docs.github.com/en/rest/using-the-rest-api/rate-limits-for-the-rest-api?apiVersion=2022-11-28#checking-the-status-of-your-rate-limit
// NOTE: Use the go canonical form (capitals) for these headers, even
// though they are lowercase in the docs.
const (
	HeaderRetryAfter = "Retry-After"
	// The time at which the current rate limit window resets, in UTC epoch seconds
	HeaderXRateLimitReset = "X-Ratelimit-Reset"
	// The number of requests remaining in the current rate limit window
	HeaderXRateLimitRemaining = "X-Ratelimit-Remaining"
)

// SecondaryRateLimitWaiter is an http.RoundTripper that pauses and retries
// requests when GitHub signals a secondary rate limit.
type SecondaryRateLimitWaiter struct {
	base              http.RoundTripper
	limiter           *limiter
	defaultRetryAfter time.Duration
}

// NewSecondaryRateLimitWaiter wraps the base transport with secondary rate
// limit handling.
func NewSecondaryRateLimitWaiter(base http.RoundTripper) *SecondaryRateLimitWaiter {
	if base == nil {
		base = http.DefaultTransport
	}

	return &SecondaryRateLimitWaiter{
		base: base,
		limiter: &limiter{
			base: rate.NewLimiter(rate.Inf, 100),
		},
		defaultRetryAfter: 1 * time.Minute,
	}
}

func (w *SecondaryRateLimitWaiter) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	if err := w.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := w.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	if w.processLimit(ctx, resp) {
		retryResp, retryErr := w.RoundTrip(req)
		if retryErr != nil {
			secondaryRateLimitRetries.WithLabelValues("error").Inc()
		} else {
			secondaryRateLimitRetries.WithLabelValues("ok").Inc()
		}
		return retryResp, retryErr
	}

	return resp, nil
}

// processLimit inspects a response for secondary rate limit signals and
// pauses the limiter accordingly. Returns true when the request should be
// retried.
// https://docs.github.com/en/rest/using-the-rest-api/rate-limits-for-the-rest-api?apiVersion=2022-11-28#exceeding-the-rate-limit
func (w *SecondaryRateLimitWaiter) processLimit(ctx context.Context, resp *http.Response) bool {
	log := clog.FromContext(ctx)

	if resp.StatusCode != http.StatusForbidden &&
		resp.StatusCode != http.StatusTooManyRequests {
		return false
	}

	var (
		retryAfter time.Duration
		reset      time.Time
		remaining  int
	)

	if v := resp.Header.Get(HeaderRetryAfter); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			log.Warnf("failed to parse retry-after header: %v", err)
		} else {
			retryAfter = time.Duration(seconds) * time.Second
		}
	}

	if v := resp.Header.Get(HeaderXRateLimitRemaining); v != "" {
		r, err := strconv.Atoi(v)
		if err != nil {
			log.Warnf("failed to parse x-ratelimit-remaining header: %v", err)
		} else {
			remaining = r
		}
	}

	if v := resp.Header.Get(HeaderXRateLimitReset); v != "" {
		seconds, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			log.Warnf("failed to parse x-ratelimit-reset header: %v", err)
		} else {
			reset = time.Unix(seconds, 0)
		}
	}

	statusCode := strconv.Itoa(resp.StatusCode)

	if retryAfter > 0 {
		secondaryRateLimitTriggered.WithLabelValues(statusCode, "retry_after").Inc()
		secondaryRateLimitWaitSeconds.WithLabelValues("retry_after").Observe(retryAfter.Seconds())
		w.limiter.PauseFor(retryAfter)
		return true
	}

	// If remaining is 0 and reset is given, wait until the reset time.
	if remaining == 0 && !reset.IsZero() {
		retryAfter = time.Until(reset)
		secondaryRateLimitTriggered.WithLabelValues(statusCode, "remaining_zero").Inc()
		secondaryRateLimitWaitSeconds.WithLabelValues("remaining_zero").Observe(retryAfter.Seconds())
		w.limiter.PauseFor(retryAfter)
		return true
	}

	// Default fallback if no rate-limit headers are present.
	secondaryRateLimitTriggered.WithLabelValues(statusCode, "default_fallback").Inc()
	secondaryRateLimitWaitSeconds.WithLabelValues("default_fallback").Observe(w.defaultRetryAfter.Seconds())
	w.limiter.PauseFor(w.defaultRetryAfter)
	return true
}

type limiter struct {
	base       *rate.Limiter
	mu         sync.Mutex
	pauseUntil time.Time
	pauseCh    chan struct{}
}

func (l *limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	pauseCh := l.pauseCh
	l.mu.Unlock()

	if pauseCh != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-pauseCh:
		}
	}

	return l.base.Wait(ctx)
}

func (l *limiter) PauseFor(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	until := time.Now().Add(d)

	if until.After(l.pauseUntil) {
		l.pauseUntil = until
		if l.pauseCh != nil {
			close(l.pauseCh)
		}
		l.pauseCh = make(chan struct{})

		go func(ch chan struct{}) {
			timer := time.NewTimer(d)
			defer timer.Stop()

			<-timer.C
			l.mu.Lock()
			if ch == l.pauseCh {
				close(ch)
				l.pauseCh = nil
				l.pauseUntil = time.Time{}
			}
			l.mu.Unlock()
		}(l.pauseCh)
	}
}
