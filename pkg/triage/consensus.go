/*
Copyright 2025 PluginHub Authors
SPDX-License-Identifier: Apache-2.0
*/

package triage

import (
	"context"
	"fmt"
	"slices"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v75/github"
)

// Verdict is the consensus engine's decision about the ready-to-merge
// label.
type Verdict int

const (
	// VerdictNone leaves the label exactly as it is.
	VerdictNone Verdict = iota
	// VerdictReady adds the label if absent.
	VerdictReady
	// VerdictNotReady removes the label if present.
	VerdictNotReady
)

// TeamLister returns the member logins of an org team.
type TeamLister interface {
	ListTeamMembers(ctx context.Context, org, slug string) ([]string, error)
}

// ConsensusEngine reduces the approver team's reviews into a
// merge-readiness verdict.
type ConsensusEngine struct {
	teams TeamLister
	org   string
	slug  string
}

func NewConsensusEngine(teams TeamLister, org, slug string) *ConsensusEngine {
	return &ConsensusEngine{teams: teams, org: org, slug: slug}
}

// Evaluate folds the reviews, in their given order, into a per-login
// decision, then reduces those into a verdict.
//
// A review is decisive when its state is APPROVED, its body is exactly
// "lgtm" (an approval regardless of state), or its state is anything
// other than COMMENTED (a rejection). A COMMENTED review with another
// body is non-decisive: it neither creates nor resets a login's entry.
// Because the fold is left to right, each login's final decision is its
// last decisive review.
//
// Reviews by non-members of the approver team are ignored entirely. When
// there are no reviews at all, or no team member rendered a decisive
// review, the verdict is VerdictNone: readiness is never established
// from zero information, but existing state is not torn down either.
func (e *ConsensusEngine) Evaluate(ctx context.Context, reviews []*github.PullRequestReview) (Verdict, error) {
	log := clog.FromContext(ctx)

	if len(reviews) == 0 {
		log.Debugf("no reviews, nothing to do")
		return VerdictNone, nil
	}

	logins, err := e.teams.ListTeamMembers(ctx, e.org, e.slug)
	if err != nil {
		return VerdictNone, fmt.Errorf("fetching approver team: %w", err)
	}
	members := make(map[string]bool, len(logins))
	for _, l := range logins {
		members[l] = true
	}

	decisions := map[string]bool{}
	for _, r := range reviews {
		login := r.GetUser().GetLogin()
		if !members[login] {
			continue
		}
		switch {
		case r.GetState() == "APPROVED":
			decisions[login] = true
		case r.GetBody() == "lgtm":
			decisions[login] = true
		case r.GetState() == "COMMENTED":
			// Non-decisive comment, leave the login's entry alone.
		default:
			decisions[login] = false
		}
	}

	var unapproved []string
	for login, approved := range decisions {
		if !approved {
			unapproved = append(unapproved, login)
		}
	}
	slices.Sort(unapproved)

	switch {
	case len(unapproved) > 0:
		log.Infof("not ready to merge, unapproved reviewers: %v", unapproved)
		return VerdictNotReady, nil
	case len(decisions) > 0:
		log.Infof("all decisive team reviews approve")
		return VerdictReady, nil
	default:
		log.Debugf("no decisive team reviews, leaving label as-is")
		return VerdictNone, nil
	}
}
