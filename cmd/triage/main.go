/*
Copyright 2025 PluginHub Authors
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"log"

	_ "github.com/chainguard-dev/clog/gcp/init"
	"github.com/kelseyhightower/envconfig"

	"github.com/pluginhub-dev/triage-bot/pkg/bot"
	"github.com/pluginhub-dev/triage-bot/pkg/gh"
	"github.com/pluginhub-dev/triage-bot/pkg/triage"
)

func main() {
	// The secondary credential for team-membership lookups. Needed when
	// the bot's own token cannot read the organization's teams, e.g. when
	// running against a fork outside the org.
	var env struct {
		TeamAccessToken string `envconfig:"TEAM_ACCESS_TOKEN"`
	}
	if err := envconfig.Process("", &env); err != nil {
		log.Fatalf("failed to process env var: %v", err)
	}

	var opts []triage.Option
	if env.TeamAccessToken != "" {
		teamClient := gh.NewTokenClient(context.Background(), env.TeamAccessToken, gh.WithSecondaryRateLimitWaiter())
		opts = append(opts, triage.WithTeamReader(teamClient))
	}

	if err := bot.Serve(triage.New(opts...)); err != nil {
		log.Fatal(err)
	}
}
