/*
Copyright 2025 PluginHub Authors
SPDX-License-Identifier: Apache-2.0
*/

package httpmetrics

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

var (
	mReqCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_client_request_count",
			Help: "The total number of HTTP requests",
		},
		[]string{"code", "method", "host", "service_name", "revision_name", "ce_type"},
	)
	mReqInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_client_request_in_flight",
			Help: "The number of outgoing HTTP requests currently inflight",
		},
		[]string{"method", "host", "service_name", "revision_name", "ce_type"},
	)
	mReqDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_client_request_duration_seconds",
			Help:    "The duration of HTTP requests",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 30, 45, 60},
		},
		[]string{"code", "method", "host", "service_name", "revision_name", "ce_type"},
	)
)

// buckets maps hostnames to low-cardinality metric labels.
var buckets = map[string]string{}

// SetBuckets maps hostnames to long-lived metric label values. Hosts not
// present in the map are reported as "other" to keep cardinality bounded.
func SetBuckets(b map[string]string) { buckets = b }

// Transport is an http.RoundTripper that records metrics for each request.
var Transport = WrapTransport(http.DefaultTransport)

// WrapTransport wraps an http.RoundTripper with instrumentation.
func WrapTransport(t http.RoundTripper) http.RoundTripper {
	return instrumentRoundTripperCounter(
		instrumentRoundTripperInFlight(
			instrumentRoundTripperDuration(
				otelhttp.NewTransport(t))))
}

func bucketize(host string) string {
	if b, ok := buckets[host]; ok {
		return b
	}
	return "other"
}

func mapErrorToLabel(err error) string {
	if strings.Contains(err.Error(), "no route to host") {
		return "no-route-to-host"
	}
	if strings.Contains(err.Error(), "i/o timeout") {
		return "io-timeout"
	}
	if strings.Contains(err.Error(), "TLS handshake timeout") {
		return "tls-handshake-timeout"
	}
	if strings.Contains(err.Error(), "unexpected EOF") {
		return "unexpected-eof"
	}
	return "unknown-error"
}

// These instrument methods are based on promhttp, with bucketized host and
// Knative labels added:
// https://pkg.go.dev/github.com/prometheus/client_golang/prometheus/promhttp

func instrumentRoundTripperCounter(next http.RoundTripper) promhttp.RoundTripperFunc {
	return func(r *http.Request) (*http.Response, error) {
		tracer := otel.Tracer("httpmetrics")
		host := bucketize(r.URL.Host)
		ctx, span := tracer.Start(r.Context(), fmt.Sprintf("http-%s-%s", r.Method, host))
		// Ensure that outgoing requests are nested under this span.
		r = r.WithContext(ctx)
		defer span.End()

		resp, err := next.RoundTrip(r)
		code := ""
		if err == nil {
			code = fmt.Sprintf("%d", resp.StatusCode)
		} else {
			code = mapErrorToLabel(err)
		}
		mReqCount.With(prometheus.Labels{
			"code":          code,
			"method":        r.Method,
			"host":          host,
			"service_name":  env.KnativeServiceName,
			"revision_name": env.KnativeRevisionName,
			"ce_type":       r.Header.Get(CeTypeHeader),
		}).Inc()
		return resp, err
	}
}

func instrumentRoundTripperInFlight(next http.RoundTripper) promhttp.RoundTripperFunc {
	return func(r *http.Request) (*http.Response, error) {
		g := mReqInFlight.With(prometheus.Labels{
			"method":        r.Method,
			"host":          bucketize(r.URL.Host),
			"service_name":  env.KnativeServiceName,
			"revision_name": env.KnativeRevisionName,
			"ce_type":       r.Header.Get(CeTypeHeader),
		})
		g.Inc()
		defer g.Dec()
		return next.RoundTrip(r)
	}
}

func instrumentRoundTripperDuration(next http.RoundTripper) promhttp.RoundTripperFunc {
	return func(r *http.Request) (*http.Response, error) {
		timer := prometheus.NewTimer(nil)
		resp, err := next.RoundTrip(r)
		if err == nil {
			mReqDuration.With(prometheus.Labels{
				"code":          fmt.Sprintf("%d", resp.StatusCode),
				"method":        r.Method,
				"host":          bucketize(r.URL.Host),
				"service_name":  env.KnativeServiceName,
				"revision_name": env.KnativeRevisionName,
				"ce_type":       r.Header.Get(CeTypeHeader),
			}).Observe(timer.ObserveDuration().Seconds())
		}
		return resp, err
	}
}
