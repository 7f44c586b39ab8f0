/*
Copyright 2025 PluginHub Authors
SPDX-License-Identifier: Apache-2.0
*/

package cloudevents

import (
	"context"
	"log"
	"net/http"
	"strings"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	cehttp "github.com/cloudevents/sdk-go/v2/protocol/http"
	"google.golang.org/api/idtoken"

	metrics "github.com/pluginhub-dev/triage-bot/pkg/httpmetrics"
)

// NewClientHTTP returns a cloudevents client whose requests and handler
// are instrumented with the metrics transport.
func NewClientHTTP(name string, opts ...cehttp.Option) (cloudevents.Client, error) {
	// If we don't specify a client, NewClientHTTP will use
	// http.DefaultClient and may clobber its Transport. To avoid so, we
	// pass a client with the metrics transport instead.
	metricsClient := http.Client{
		Transport: metrics.Transport,
	}
	copt := append([]cehttp.Option{
		cehttp.WithClient(metricsClient),
		cloudevents.WithMiddleware(func(next http.Handler) http.Handler {
			return metrics.Handler(name, next)
		})}, opts...)
	return cloudevents.NewClientHTTP(copt...)
}

// WithTarget wraps cloudevents.WithTarget to authenticate requests with an
// identity token when the target is an HTTPS URL.
func WithTarget(ctx context.Context, url string) []cehttp.Option {
	opts := make([]cehttp.Option, 0, 2)

	if strings.HasPrefix(url, "https://") {
		idc, err := idtoken.NewClient(ctx, url)
		if err != nil {
			log.Panicf("failed to create idtoken client: %v", err)
		}
		metricsClient := http.Client{
			Transport: metrics.WrapTransport(idc.Transport),
		}
		opts = append(opts, cehttp.WithClient(metricsClient))
	}

	opts = append(opts, cehttp.WithTarget(url))
	return opts
}
