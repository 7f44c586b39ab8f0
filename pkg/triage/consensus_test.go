/*
Copyright 2025 PluginHub Authors
SPDX-License-Identifier: Apache-2.0
*/

package triage

import (
	"context"
	"testing"

	"github.com/chainguard-dev/clog/slogtest"
	"github.com/google/go-github/v75/github"
)

type fakeTeam []string

func (f fakeTeam) ListTeamMembers(context.Context, string, string) ([]string, error) {
	return f, nil
}

func review(login, state, body string) *github.PullRequestReview {
	return &github.PullRequestReview{
		User:  &github.User{Login: github.Ptr(login)},
		State: github.Ptr(state),
		Body:  github.Ptr(body),
	}
}

func TestEvaluate(t *testing.T) {
	team := fakeTeam{"alice", "bob"}

	tests := []struct {
		name    string
		reviews []*github.PullRequestReview
		want    Verdict
	}{
		{
			name: "zero reviews leaves everything alone",
			want: VerdictNone,
		},
		{
			name: "one team approval is enough",
			reviews: []*github.PullRequestReview{
				review("alice", "APPROVED", ""),
			},
			want: VerdictReady,
		},
		{
			name: "non-decisive comment does not block an approval",
			reviews: []*github.PullRequestReview{
				review("alice", "APPROVED", ""),
				review("bob", "COMMENTED", "needs work"),
			},
			want: VerdictReady,
		},
		{
			name: "a single rejection blocks regardless of approvals",
			reviews: []*github.PullRequestReview{
				review("alice", "APPROVED", ""),
				review("bob", "CHANGES_REQUESTED", ""),
			},
			want: VerdictNotReady,
		},
		{
			name: "last decisive review wins per login",
			reviews: []*github.PullRequestReview{
				review("alice", "CHANGES_REQUESTED", ""),
				review("alice", "APPROVED", ""),
			},
			want: VerdictReady,
		},
		{
			name: "later comment does not reset an earlier rejection",
			reviews: []*github.PullRequestReview{
				review("alice", "CHANGES_REQUESTED", ""),
				review("alice", "COMMENTED", "re-checking"),
			},
			want: VerdictNotReady,
		},
		{
			name: "lgtm comment counts as an approval",
			reviews: []*github.PullRequestReview{
				review("alice", "COMMENTED", "lgtm"),
			},
			want: VerdictReady,
		},
		{
			name: "non-member reviews are ignored entirely",
			reviews: []*github.PullRequestReview{
				review("mallory", "APPROVED", ""),
			},
			want: VerdictNone,
		},
		{
			name: "non-member rejection cannot block",
			reviews: []*github.PullRequestReview{
				review("alice", "APPROVED", ""),
				review("mallory", "CHANGES_REQUESTED", ""),
			},
			want: VerdictReady,
		},
		{
			name: "only non-decisive team comments leaves everything alone",
			reviews: []*github.PullRequestReview{
				review("alice", "COMMENTED", "thinking about it"),
			},
			want: VerdictNone,
		},
		{
			name: "dismissed review is a rejection",
			reviews: []*github.PullRequestReview{
				review("alice", "DISMISSED", ""),
			},
			want: VerdictNotReady,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := slogtest.Context(t)

			got, err := NewConsensusEngine(team, "pluginhub-dev", "plugin-approvers").Evaluate(ctx, tt.reviews)
			if err != nil {
				t.Fatalf("Evaluate() = %v", err)
			}
			if got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

// Evaluate must never report readiness while any team-member rejection
// stands, no matter how many approvals pile up around it.
func TestEvaluateRejectionAlwaysBlocks(t *testing.T) {
	ctx := slogtest.Context(t)
	team := fakeTeam{"alice", "bob", "carol"}

	reviews := []*github.PullRequestReview{
		review("alice", "APPROVED", ""),
		review("bob", "CHANGES_REQUESTED", ""),
		review("carol", "APPROVED", ""),
		review("alice", "APPROVED", ""),
	}

	got, err := NewConsensusEngine(team, "pluginhub-dev", "plugin-approvers").Evaluate(ctx, reviews)
	if err != nil {
		t.Fatalf("Evaluate() = %v", err)
	}
	if got != VerdictNotReady {
		t.Errorf("Evaluate() = %v, want VerdictNotReady", got)
	}
}
