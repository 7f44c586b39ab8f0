/*
Copyright 2025 PluginHub Authors
SPDX-License-Identifier: Apache-2.0
*/

package triage

import (
	"slices"
	"strings"

	"github.com/google/go-github/v75/github"
)

// The four status labels the bot reconciles.
const (
	LabelPluginChange     = "plugin change"
	LabelPackageChange    = "package change"
	LabelDependencyChange = "dependency change"
	LabelReadyToMerge     = "ready to merge"
)

// pluginDir is the directory plugin definition files live under.
const pluginDir = "plugins/"

// dependencyManifests are the files whose changes count as dependency
// changes rather than package changes.
var dependencyManifests = []string{
	"package/verification-template/build.gradle",
	"package/verification-template/settings.gradle",
}

// ChangeStatus is the change status GitHub reports for a file in a PR.
type ChangeStatus string

const (
	StatusAdded    ChangeStatus = "added"
	StatusModified ChangeStatus = "modified"
	StatusRemoved  ChangeStatus = "removed"
	StatusRenamed  ChangeStatus = "renamed"
)

// Changes partitions a PR's changed files into plugin definitions,
// dependency manifests and everything else. Each file lands in exactly
// one sequence, and each sequence preserves the input order.
type Changes struct {
	Plugins      []*github.CommitFile
	Dependencies []*github.CommitFile
	Others       []*github.CommitFile
}

// Classify partitions the changed files of a PR.
func Classify(files []*github.CommitFile) Changes {
	var ch Changes
	for _, f := range files {
		switch {
		case strings.HasPrefix(f.GetFilename(), pluginDir):
			ch.Plugins = append(ch.Plugins, f)
		case slices.Contains(dependencyManifests, f.GetFilename()):
			ch.Dependencies = append(ch.Dependencies, f)
		default:
			ch.Others = append(ch.Others, f)
		}
	}
	return ch
}

func (c Changes) HasPluginChange() bool     { return len(c.Plugins) > 0 }
func (c Changes) HasDependencyChange() bool { return len(c.Dependencies) > 0 }
func (c Changes) HasPackageChange() bool    { return len(c.Others) > 0 }
