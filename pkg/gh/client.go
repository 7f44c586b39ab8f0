/*
Copyright 2025 PluginHub Authors
SPDX-License-Identifier: Apache-2.0
*/

package gh

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v75/github"
	"golang.org/x/oauth2"

	"github.com/pluginhub-dev/triage-bot/pkg/httpmetrics"
	"github.com/pluginhub-dev/triage-bot/pkg/octosts"
)

// Client wraps a go-github client with the issue-level operations the
// triage bot needs: idempotent label reconciliation, marker-comment
// upserts, and read access to PR files, reviews and team membership.
type Client struct {
	inner *github.Client
	http  *http.Client
	ts    *tokenSource

	org, repo string
}

// Option configures a Client.
type Option func(*Client)

// WithClient replaces the underlying go-github client. Used in tests to
// point the client at an httptest server.
func WithClient(c *github.Client) Option {
	return func(gc *Client) {
		gc.inner = c
	}
}

// WithHTTPClient replaces the http client used for raw content fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(gc *Client) {
		gc.http = c
	}
}

// WithSecondaryRateLimitWaiter wraps the client transport so that
// secondary rate limit responses pause and retry instead of failing.
func WithSecondaryRateLimitWaiter() Option {
	return func(gc *Client) {
		hc := gc.inner.Client()
		hc.Transport = NewSecondaryRateLimitWaiter(hc.Transport)
		gc.inner = github.NewClient(hc)
	}
}

// NewClient creates a new GitHub client, using a new token from Octo STS
// for the given org, repo and policy name.
//
// A new token is created for each client, and is not refreshed. It can be
// revoked with Close.
func NewClient(ctx context.Context, org, repo, policyName string, opts ...Option) Client {
	ts := &tokenSource{
		org:        org,
		repo:       repo,
		policyName: policyName,
	}
	c := Client{
		inner: github.NewClient(oauth2.NewClient(ctx, ts)),
		http:  &http.Client{Transport: httpmetrics.Transport},
		ts:    ts,
		org:   org,
		repo:  repo,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// NewTokenClient creates a client from a static token. This is how the
// secondary team-reader credential is wired: resolved once at startup and
// passed down, never looked up implicitly.
func NewTokenClient(ctx context.Context, token string, opts ...Option) Client {
	ots := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	c := Client{
		inner: github.NewClient(oauth2.NewClient(ctx, ots)),
		http:  &http.Client{Transport: httpmetrics.Transport},
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

type tokenSource struct {
	org, repo, policyName string
	once                  sync.Once
	tok                   *oauth2.Token
	err                   error
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	// The token is only fetched once, and is cached for future calls.
	// It's not refreshed, and will expire eventually.
	ts.once.Do(func() {
		ctx := context.Background()
		clog.FromContext(ctx).Debugf("getting octosts token for %s/%s - %s", ts.org, ts.repo, ts.policyName)
		otok, err := octosts.Token(ctx, ts.policyName, ts.org, ts.repo)
		ts.tok, ts.err = &oauth2.Token{AccessToken: otok}, err
	})
	return ts.tok, ts.err
}

// Close revokes the client's token, if one was minted.
func (c Client) Close(ctx context.Context) error {
	if c.ts == nil || c.ts.tok == nil {
		return nil // If there's no token, there's nothing to revoke.
	}

	// We don't want to cancel the context, as we want to revoke the token
	// even if the context is done.
	ctx = context.WithoutCancel(ctx)

	if err := octosts.Revoke(ctx, c.ts.tok.AccessToken); err != nil {
		// Callers might just `defer c.Close()` so we log the error here too
		clog.FromContext(ctx).Errorf("failed to revoke token: %v", err)
		return fmt.Errorf("revoking token: %w", err)
	}

	return nil
}

// HasLabel reports whether the PR currently carries the label.
func HasLabel(pr *github.PullRequest, label string) bool {
	return slices.ContainsFunc(pr.Labels, func(l *github.Label) bool { return l.GetName() == label })
}

// AddLabel adds the label to the PR, no-op when already present.
func (c Client) AddLabel(ctx context.Context, pr *github.PullRequest, label string) error {
	log := clog.FromContext(ctx)

	if HasLabel(pr, label) {
		log.Debugf("PR %d has label %q, nothing to do", pr.GetNumber(), label)
		return nil
	}

	log.Infof("Adding label %q to PR %d", label, pr.GetNumber())
	_, resp, err := c.inner.Issues.AddLabelsToIssue(ctx, *pr.Base.Repo.Owner.Login, *pr.Base.Repo.Name, *pr.Number, []string{label})
	if err != nil || resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to add label to pull request: %w %v", err, resp.Status)
	}
	return nil
}

// RemoveLabel removes the label from the PR, no-op when already absent.
func (c Client) RemoveLabel(ctx context.Context, pr *github.PullRequest, label string) error {
	log := clog.FromContext(ctx)

	if !HasLabel(pr, label) {
		log.Debugf("PR %d doesn't have label %q, nothing to do", pr.GetNumber(), label)
		return nil
	}

	log.Infof("Removing label %q from PR %d", label, pr.GetNumber())
	resp, err := c.inner.Issues.RemoveLabelForIssue(ctx, *pr.Base.Repo.Owner.Login, *pr.Base.Repo.Name, *pr.Number, label)
	if err != nil || resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to remove label from pull request: %w %v", err, resp.Status)
	}
	return nil
}

// SetLabel reconciles a single label against a desired condition: add the
// label when the condition holds and it is absent, remove it when the
// condition fails and it is present. Safe to call repeatedly.
func (c Client) SetLabel(ctx context.Context, pr *github.PullRequest, label string, condition bool) error {
	if condition {
		return c.AddLabel(ctx, pr, label)
	}
	return c.RemoveLabel(ctx, pr, label)
}

// Marker returns the identity marker comments are keyed on.
func Marker(botName string) string {
	return fmt.Sprintf("<!-- bot:%s -->", botName)
}

// SetComment upserts the bot's comment on the PR: the first comment whose
// body starts with the bot's marker is overwritten in place. When no such
// comment exists, one is created -- unless the content is empty, in which
// case no comment is ever posted.
func (c Client) SetComment(ctx context.Context, pr *github.PullRequest, botName, content string) error {
	cs, _, err := c.inner.Issues.ListComments(ctx, *pr.Base.Repo.Owner.Login, *pr.Base.Repo.Name, *pr.Number, nil)
	if err != nil {
		return fmt.Errorf("listing comments: %w", err)
	}
	marker := Marker(botName)
	body := marker + "\n" + content

	for _, com := range cs {
		if strings.HasPrefix(com.GetBody(), marker) {
			if _, resp, err := c.inner.Issues.EditComment(ctx, *pr.Base.Repo.Owner.Login, *pr.Base.Repo.Name, *com.ID, &github.IssueComment{
				Body: &body,
			}); err != nil || resp.StatusCode != http.StatusOK {
				return fmt.Errorf("editing comment: %w %v", err, resp.Status)
			}
			return nil
		}
	}
	if content == "" {
		clog.FromContext(ctx).Debugf("no comment on PR %d and nothing to say", pr.GetNumber())
		return nil
	}
	if _, resp, err := c.inner.Issues.CreateComment(ctx, *pr.Base.Repo.Owner.Login, *pr.Base.Repo.Name, *pr.Number, &github.IssueComment{
		Body: &body,
	}); err != nil || resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("creating comment: %w %v", err, resp.Status)
	}
	return nil
}

// ListFiles returns the PR's changed files.
func (c Client) ListFiles(ctx context.Context, pr *github.PullRequest) ([]*github.CommitFile, error) {
	files, _, err := c.inner.PullRequests.ListFiles(ctx, *pr.Base.Repo.Owner.Login, *pr.Base.Repo.Name, *pr.Number, nil)
	if err != nil {
		return nil, fmt.Errorf("listing pull request files: %w", err)
	}
	return files, nil
}

// ListReviews returns the PR's reviews in the order GitHub returns them.
func (c Client) ListReviews(ctx context.Context, pr *github.PullRequest) ([]*github.PullRequestReview, error) {
	reviews, _, err := c.inner.PullRequests.ListReviews(ctx, *pr.Base.Repo.Owner.Login, *pr.Base.Repo.Name, *pr.Number, nil)
	if err != nil {
		return nil, fmt.Errorf("listing pull request reviews: %w", err)
	}
	return reviews, nil
}

// ListTeamMembers returns the logins of the members of org's team.
// Membership is fetched fresh on every call so it is current at decision
// time.
func (c Client) ListTeamMembers(ctx context.Context, org, slug string) ([]string, error) {
	members, _, err := c.inner.Teams.ListTeamMembersBySlug(ctx, org, slug, nil)
	if err != nil {
		return nil, fmt.Errorf("listing members of %s/%s: %w", org, slug, err)
	}
	logins := make([]string, 0, len(members))
	for _, m := range members {
		logins = append(logins, m.GetLogin())
	}
	return logins, nil
}

// FetchContent retrieves the text content at a raw content URL.
func (c Client) FetchContent(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching %s: unexpected status %s", url, resp.Status)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", url, err)
	}
	return string(b), nil
}

// RawContentURL constructs the raw content URL for a path at a ref in the
// given repository.
func RawContentURL(owner, repo, ref, path string) string {
	return fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/%s/%s", owner, repo, ref, path)
}
