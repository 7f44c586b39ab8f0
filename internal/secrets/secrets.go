/*
Copyright 2025 PluginHub Authors
SPDX-License-Identifier: Apache-2.0
*/

package secrets

import (
	"context"
	"os"
	"strings"

	"github.com/chainguard-dev/clog"
)

// LoadFromEnv returns every webhook secret provided via the environment.
// Any variable named WEBHOOK_SECRET or prefixed with it is a candidate,
// which allows zero-downtime secret rotation.
func LoadFromEnv(ctx context.Context) [][]byte {
	var secrets [][]byte
	for _, e := range os.Environ() {
		k, v, ok := strings.Cut(e, "=")
		if !ok {
			continue
		}

		if strings.HasPrefix(k, "WEBHOOK_SECRET") {
			clog.InfoContextf(ctx, "loading secret: %q", k)
			secrets = append(secrets, []byte(v))
		}
	}
	return secrets
}
