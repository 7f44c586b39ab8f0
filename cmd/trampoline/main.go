/*
Copyright 2025 PluginHub Authors
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chainguard-dev/clog"
	_ "github.com/chainguard-dev/clog/gcp/init"
	"github.com/sethvargo/go-envconfig"

	"github.com/pluginhub-dev/triage-bot/internal/secrets"
	"github.com/pluginhub-dev/triage-bot/internal/trampoline"
	"github.com/pluginhub-dev/triage-bot/pkg/httpmetrics"
	mce "github.com/pluginhub-dev/triage-bot/pkg/httpmetrics/cloudevents"
)

var env = envconfig.MustProcess(context.Background(), &struct {
	Port       int    `env:"PORT, default=8080"`
	IngressURI string `env:"EVENT_INGRESS_URI, required"`
	// If set, only events from the specified webhook IDs are forwarded.
	WebhookID []string `env:"WEBHOOK_ID"`
	// If set, only events from the specified orgs are forwarded.
	OrgFilter []string `env:"ORG_FILTER"`
}{})

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go httpmetrics.ServeMetrics()
	defer httpmetrics.SetupTracer(ctx)()

	ceclient, err := mce.NewClientHTTP("trampoline", mce.WithTarget(ctx, env.IngressURI)...)
	if err != nil {
		clog.FatalContextf(ctx, "failed to create cloudevents client: %v", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", env.Port),
		ReadHeaderTimeout: 10 * time.Second,
		Handler: httpmetrics.Handler("trampoline", trampoline.NewServer(ceclient, trampoline.ServerOptions{
			Secrets:   secrets.LoadFromEnv(ctx),
			WebhookID: env.WebhookID,
			OrgFilter: env.OrgFilter,
		})),
	}
	clog.FatalContextf(ctx, "ListenAndServe: %v", srv.ListenAndServe())
}
