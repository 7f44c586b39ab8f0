/*
Copyright 2025 PluginHub Authors
SPDX-License-Identifier: Apache-2.0
*/

package bot

import (
	"time"
)

// Wrapper is the envelope the trampoline wraps webhook payloads in.
type Wrapper[T any] struct {
	When    time.Time `json:"when"`
	Headers *Headers  `json:"headers,omitempty"`
	Body    T         `json:"body"`
}

// Headers are the GitHub webhook delivery headers recorded alongside the
// payload.
// See https://docs.github.com/en/webhooks/webhook-events-and-payloads#delivery-headers
type Headers struct {
	HookID                 string `json:"hook_id,omitempty"`
	DeliveryID             string `json:"delivery_id,omitempty"`
	UserAgent              string `json:"user_agent,omitempty"`
	Event                  string `json:"event,omitempty"`
	InstallationTargetType string `json:"installation_target_type,omitempty"`
	InstallationTargetID   string `json:"installation_target_id,omitempty"`
}
