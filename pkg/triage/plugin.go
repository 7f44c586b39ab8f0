/*
Copyright 2025 PluginHub Authors
SPDX-License-Identifier: Apache-2.0
*/

package triage

import (
	"fmt"
	"regexp"
	"strings"
)

// PluginRecord is the parsed form of a plugin definition file: a flat
// mapping of property keys to string values.
type PluginRecord map[string]string

// ParsePluginRecord parses the line-oriented `key=value` text of a plugin
// definition file. Lines without a separator are ignored.
func ParsePluginRecord(content string) PluginRecord {
	rec := PluginRecord{}
	for _, line := range strings.Split(content, "\n") {
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		rec[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return rec
}

// Get returns the value for key, or an error naming the missing field.
func (r PluginRecord) Get(key string) (string, error) {
	v, ok := r[key]
	if !ok {
		return "", fmt.Errorf("plugin record is missing field %q", key)
	}
	return v, nil
}

// Commit returns the plugin's pinned commit hash.
func (r PluginRecord) Commit() (string, error) {
	return r.Get("commit")
}

// Repository returns the RepoRef parsed from the plugin's declared clone
// URL.
func (r PluginRecord) Repository() (RepoRef, error) {
	url, err := r.Get("repository")
	if err != nil {
		return RepoRef{}, err
	}
	return ParseCloneURL(url)
}

// RepoRef is the (owner, repository) pair behind a plugin's clone URL.
type RepoRef struct {
	User string
	Repo string
}

var cloneURLPattern = regexp.MustCompile(`^https://github\.com/([^/]+)/([^/]+)\.git$`)

// ParseCloneURL extracts a RepoRef from a GitHub HTTPS clone URL.
// A URL that doesn't match the expected shape is a hard error: a wrong
// link must never be silently produced from malformed plugin metadata.
func ParseCloneURL(url string) (RepoRef, error) {
	m := cloneURLPattern.FindStringSubmatch(url)
	if m == nil {
		return RepoRef{}, fmt.Errorf("clone URL %q does not match https://github.com/<user>/<repo>.git", url)
	}
	return RepoRef{User: m[1], Repo: m[2]}, nil
}

// TreeURL returns the link to the repository tree at the given commit.
func (r RepoRef) TreeURL(commit string) string {
	return fmt.Sprintf("https://github.com/%s/%s/tree/%s", r.User, r.Repo, commit)
}

// CompareURL returns the link comparing two commits in the repository.
func (r RepoRef) CompareURL(oldCommit, newCommit string) string {
	return fmt.Sprintf("https://github.com/%s/%s/compare/%s...%s", r.User, r.Repo, oldCommit, newCommit)
}
