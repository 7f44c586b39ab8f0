/*
Copyright 2025 PluginHub Authors
SPDX-License-Identifier: Apache-2.0
*/

package triage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/go-github/v75/github"
	"golang.org/x/sync/errgroup"

	"github.com/pluginhub-dev/triage-bot/pkg/gh"
)

// mixedChangeWarning is prepended to the summary when a PR touches both
// plugin definitions and other files.
const mixedChangeWarning = "Warning: this pull request also contains changes outside of the plugins directory."

// ContentFetcher retrieves text content at a raw content URL.
type ContentFetcher interface {
	FetchContent(ctx context.Context, url string) (string, error)
}

// Narrator builds the human-readable summary of a PR's plugin changes.
type Narrator struct {
	fetcher ContentFetcher
}

func NewNarrator(f ContentFetcher) *Narrator {
	return &Narrator{fetcher: f}
}

// Summarize produces one paragraph per plugin file, fetched concurrently
// and joined in input order. A malformed plugin record aborts the whole
// summary: no partial narrative is ever produced.
func (n *Narrator) Summarize(ctx context.Context, pr *github.PullRequest, ch Changes) (string, error) {
	paragraphs := make([]string, len(ch.Plugins))

	eg, egctx := errgroup.WithContext(ctx)
	for i, f := range ch.Plugins {
		eg.Go(func() error {
			p, err := n.describe(egctx, pr, f)
			if err != nil {
				return fmt.Errorf("describing %s: %w", f.GetFilename(), err)
			}
			paragraphs[i] = p
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return "", err
	}

	text := strings.Join(paragraphs, "\n\n")
	if text != "" && (ch.HasDependencyChange() || ch.HasPackageChange()) {
		text = mixedChangeWarning + "\n\n" + text
	}
	return text, nil
}

func (n *Narrator) describe(ctx context.Context, pr *github.PullRequest, f *github.CommitFile) (string, error) {
	name := path.Base(f.GetFilename())

	switch ChangeStatus(f.GetStatus()) {
	case StatusRemoved:
		return fmt.Sprintf("Removed %q plugin", name), nil

	case StatusAdded:
		rec, err := n.fetchRecord(ctx, f.GetRawURL())
		if err != nil {
			return "", err
		}
		ref, err := rec.Repository()
		if err != nil {
			return "", err
		}
		commit, err := rec.Commit()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("New plugin %q: %s", name, ref.TreeURL(commit)), nil

	case StatusModified:
		compare, err := n.compareLink(ctx, pr, f.GetFilename(), f.GetRawURL())
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Updated %q plugin: %s", name, compare), nil

	case StatusRenamed:
		// The old record lives at the file's previous path on the default
		// branch.
		compare, err := n.compareLink(ctx, pr, f.GetPreviousFilename(), f.GetRawURL())
		if err != nil {
			return "", err
		}
		prev := path.Base(f.GetPreviousFilename())
		return fmt.Sprintf("Renamed %q plugin to %q. Renaming a plugin breaks existing installations of it! %s", prev, name, compare), nil

	default:
		return fmt.Sprintf("Unrecognized change status %q for %q", f.GetStatus(), name), nil
	}
}

// compareLink fetches the current default-branch record at oldPath and the
// changed record at rawURL, and links the commit range on the plugin's
// fork.
func (n *Narrator) compareLink(ctx context.Context, pr *github.PullRequest, oldPath, rawURL string) (string, error) {
	base := pr.GetBase().GetRepo()
	oldURL := gh.RawContentURL(base.GetOwner().GetLogin(), base.GetName(), base.GetDefaultBranch(), oldPath)

	oldRec, err := n.fetchRecord(ctx, oldURL)
	if err != nil {
		return "", err
	}
	newRec, err := n.fetchRecord(ctx, rawURL)
	if err != nil {
		return "", err
	}

	ref, err := newRec.Repository()
	if err != nil {
		return "", err
	}
	oldCommit, err := oldRec.Commit()
	if err != nil {
		return "", err
	}
	newCommit, err := newRec.Commit()
	if err != nil {
		return "", err
	}
	return ref.CompareURL(oldCommit, newCommit), nil
}

func (n *Narrator) fetchRecord(ctx context.Context, url string) (PluginRecord, error) {
	content, err := n.fetcher.FetchContent(ctx, url)
	if err != nil {
		return nil, err
	}
	return ParsePluginRecord(content), nil
}
