/*
Copyright 2025 PluginHub Authors
SPDX-License-Identifier: Apache-2.0
*/

package triage

import (
	"context"
	"fmt"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v75/github"

	"github.com/pluginhub-dev/triage-bot/pkg/bot"
	"github.com/pluginhub-dev/triage-bot/pkg/gh"
)

const (
	// BotName names the bot's Octo STS policy and the marker its sticky
	// comment is keyed on.
	BotName = "plugin-triage-bot"

	// The approver team whose reviews gate the ready-to-merge label.
	approverOrg  = "pluginhub-dev"
	approverTeam = "plugin-approvers"
)

type triage struct {
	// teams is the optional long-lived secondary credential used for
	// team-membership lookups, resolved once at startup. When nil, the
	// per-event client is used.
	teams TeamLister

	newClient func(ctx context.Context, org, repo string) gh.Client
}

// Option configures the triage bot.
type Option func(*triage)

// WithTeamReader sets the client used for approver-team lookups. This is
// how the secondary credential is wired when the primary context cannot
// reach the organization's teams.
func WithTeamReader(t TeamLister) Option {
	return func(b *triage) {
		b.teams = t
	}
}

// WithClientFactory replaces how per-event GitHub clients are built. Used
// in tests to point at a fake API server.
func WithClientFactory(f func(ctx context.Context, org, repo string) gh.Client) Option {
	return func(b *triage) {
		b.newClient = f
	}
}

// New assembles the triage bot: the pull request handler keeps the status
// labels and the summary comment in sync with the PR's contents, and the
// review handler maintains the ready-to-merge label from the approver
// team's consensus.
func New(opts ...Option) bot.Bot {
	t := &triage{
		newClient: func(ctx context.Context, org, repo string) gh.Client {
			return gh.NewClient(ctx, org, repo, BotName, gh.WithSecondaryRateLimitWaiter())
		},
	}
	for _, opt := range opts {
		opt(t)
	}

	return bot.NewBot(BotName,
		bot.BotWithHandler(bot.PullRequestHandler(t.onPullRequest)),
		bot.BotWithHandler(bot.PullRequestReviewHandler(t.onReview)),
	)
}

func (t *triage) onPullRequest(ctx context.Context, pre github.PullRequestEvent) error {
	log := clog.FromContext(ctx)

	switch pre.GetAction() {
	case "opened", "synchronize", "reopened":
	default:
		log.Debugf("ignoring pull request action %q", pre.GetAction())
		return nil
	}

	pr := pre.GetPullRequest()
	owner, repo := *pr.Base.Repo.Owner.Login, *pr.Base.Repo.Name

	cli := t.newClient(ctx, owner, repo)
	defer cli.Close(ctx)

	// Any content change invalidates prior merge readiness; the consensus
	// engine re-establishes it on the next review event.
	if err := cli.RemoveLabel(ctx, pr, LabelReadyToMerge); err != nil {
		return err
	}

	files, err := cli.ListFiles(ctx, pr)
	if err != nil {
		return err
	}
	ch := Classify(files)

	if err := cli.SetLabel(ctx, pr, LabelPluginChange, ch.HasPluginChange()); err != nil {
		return err
	}
	if err := cli.SetLabel(ctx, pr, LabelDependencyChange, ch.HasDependencyChange()); err != nil {
		return err
	}
	if err := cli.SetLabel(ctx, pr, LabelPackageChange, ch.HasPackageChange()); err != nil {
		return err
	}

	// The comment is only touched once the whole narrative succeeded, so
	// a fetch failure never leaves a partial summary behind.
	narrative, err := NewNarrator(cli).Summarize(ctx, pr, ch)
	if err != nil {
		return fmt.Errorf("summarizing plugin changes: %w", err)
	}
	return cli.SetComment(ctx, pr, BotName, narrative)
}

func (t *triage) onReview(ctx context.Context, pre github.PullRequestReviewEvent) error {
	log := clog.FromContext(ctx)

	if pre.GetAction() != "submitted" {
		log.Debugf("ignoring review action %q", pre.GetAction())
		return nil
	}

	pr := pre.GetPullRequest()
	owner, repo := *pr.Base.Repo.Owner.Login, *pr.Base.Repo.Name

	cli := t.newClient(ctx, owner, repo)
	defer cli.Close(ctx)

	// Review consensus is only meaningful for plugin-affecting PRs.
	if !gh.HasLabel(pr, LabelPluginChange) {
		log.Debugf("PR %d has no plugin changes, skipping consensus", pr.GetNumber())
		return nil
	}

	reviews, err := cli.ListReviews(ctx, pr)
	if err != nil {
		return err
	}

	teams := t.teams
	if teams == nil {
		teams = cli
	}

	verdict, err := NewConsensusEngine(teams, approverOrg, approverTeam).Evaluate(ctx, reviews)
	if err != nil {
		return err
	}
	switch verdict {
	case VerdictReady:
		return cli.AddLabel(ctx, pr, LabelReadyToMerge)
	case VerdictNotReady:
		return cli.RemoveLabel(ctx, pr, LabelReadyToMerge)
	default:
		return nil
	}
}
