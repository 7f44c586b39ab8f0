/*
Copyright 2025 PluginHub Authors
SPDX-License-Identifier: Apache-2.0
*/

package bot

import (
	"context"

	"github.com/google/go-github/v75/github"
)

type EventHandlerFunc interface {
	EventType() EventType
}

type PullRequestHandler func(ctx context.Context, pre github.PullRequestEvent) error

func (r PullRequestHandler) EventType() EventType {
	return PullRequestEvent
}

type PullRequestReviewHandler func(ctx context.Context, pre github.PullRequestReviewEvent) error

func (r PullRequestReviewHandler) EventType() EventType {
	return PullRequestReviewEvent
}

type EventType string

const (
	PullRequestEvent       EventType = "dev.pluginhub.github.pull_request"
	PullRequestReviewEvent EventType = "dev.pluginhub.github.pull_request_review"
)
