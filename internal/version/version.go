// Package version holds build-time identifiers injected with -ldflags.
//
//	go build -ldflags "-X github.com/soul-sense/desktop/internal/version.Version=1.4.0 \
//	    -X github.com/soul-sense/desktop/internal/version.SentryDSN=https://..."
package version

import "fmt"

var (
	Version = "dev"
	Commit  = "unknown"

	// SentryDSN is the crash-reporting endpoint. Empty disables telemetry
	// unless the config file provides one.
	SentryDSN = ""
)

// Release returns the release identifier reported with crash telemetry.
func Release() string {
	return fmt.Sprintf("soulsense@%s", Version)
}

// IsDev reports whether the binary was built without a version stamp.
func IsDev() bool {
	return Version == "dev"
}
