/*
Copyright 2025 PluginHub Authors
SPDX-License-Identifier: Apache-2.0
*/

package triage

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParsePluginRecord(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    PluginRecord
	}{
		{
			name:    "typical plugin definition",
			content: "repository=https://github.com/alice/foo.git\ncommit=abc123\n",
			want: PluginRecord{
				"repository": "https://github.com/alice/foo.git",
				"commit":     "abc123",
			},
		},
		{
			name:    "surrounding whitespace is trimmed",
			content: " repository = https://github.com/alice/foo.git \n\tcommit\t=\tabc123\n",
			want: PluginRecord{
				"repository": "https://github.com/alice/foo.git",
				"commit":     "abc123",
			},
		},
		{
			name:    "lines without a separator are ignored",
			content: "just a note\ncommit=abc123\n\n",
			want:    PluginRecord{"commit": "abc123"},
		},
		{
			name:    "value keeps embedded equals",
			content: "description=a=b plugin\n",
			want:    PluginRecord{"description": "a=b plugin"},
		},
		{
			name:    "empty content",
			content: "",
			want:    PluginRecord{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParsePluginRecord(tt.content)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParsePluginRecord() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPluginRecordGet(t *testing.T) {
	rec := ParsePluginRecord("repository=https://github.com/alice/foo.git\n")

	if v, err := rec.Get("repository"); err != nil || v != "https://github.com/alice/foo.git" {
		t.Errorf("Get(repository) = %q, %v", v, err)
	}

	if _, err := rec.Get("commit"); err == nil {
		t.Error("Get(commit) on a record without one should fail")
	}
	if _, err := rec.Commit(); err == nil {
		t.Error("Commit() on a record without one should fail")
	}
}

func TestParseCloneURL(t *testing.T) {
	tests := []struct {
		url     string
		want    RepoRef
		wantErr bool
	}{
		{url: "https://github.com/alice/foo.git", want: RepoRef{User: "alice", Repo: "foo"}},
		{url: "https://github.com/some-org/some.repo.git", want: RepoRef{User: "some-org", Repo: "some.repo"}},
		{url: "https://gitlab.com/alice/foo.git", wantErr: true},
		{url: "https://github.com/alice/foo", wantErr: true},
		{url: "git@github.com:alice/foo.git", wantErr: true},
		{url: "https://github.com/foo.git", wantErr: true},
		{url: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := ParseCloneURL(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseCloneURL(%q) should have failed, got %+v", tt.url, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCloneURL(%q) = %v", tt.url, err)
			}
			if got != tt.want {
				t.Errorf("ParseCloneURL(%q) = %+v, want %+v", tt.url, got, tt.want)
			}
		})
	}
}

func TestRepoRefLinks(t *testing.T) {
	ref := RepoRef{User: "alice", Repo: "foo"}

	if got, want := ref.TreeURL("abc123"), "https://github.com/alice/foo/tree/abc123"; got != want {
		t.Errorf("TreeURL() = %q, want %q", got, want)
	}
	if got, want := ref.CompareURL("abc123", "def456"), "https://github.com/alice/foo/compare/abc123...def456"; got != want {
		t.Errorf("CompareURL() = %q, want %q", got, want)
	}
}
