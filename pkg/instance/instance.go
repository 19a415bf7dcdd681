package instance

import (
	"os"
	"strings"

	"github.com/angelmondragon/storefront-backend/pkg/env"
)

// ID names the running process in logs and lock tokens. Heroku-style DYNO wins, then
// WORKER_ID, then the host name.
func ID(fallback string) string {
	for _, key := range []string{"DYNO", "WORKER_ID"} {
		if id := strings.TrimSpace(env.Get(key, "")); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fallback
}
