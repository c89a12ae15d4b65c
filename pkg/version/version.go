// Package version provides build information for the tokenctl binary.
package version

import (
	"fmt"
	"runtime"
)

// Name is the product name reported by tokenctl.
const Name = "tokenvault"

// Set at build time via -ldflags "-X github.com/rzbill/tokenvault/pkg/version.Version=...".
var (
	Version   = "dev"
	BuildTime = "unknown"
	Commit    = "unknown"
)

// shortCommit trims the commit to the 8 characters shown in Info.
func shortCommit() string {
	if len(Commit) > 8 {
		return Commit[:8]
	}
	return Commit
}

// Info returns a one-line summary such as
// "tokenvault 1.2.0 (abcdef01) - 2024-05-01 linux/amd64".
func Info() string {
	return fmt.Sprintf("%s %s (%s) - %s %s/%s",
		Name,
		Version,
		shortCommit(),
		BuildTime,
		runtime.GOOS,
		runtime.GOARCH,
	)
}

// Map returns the build information keyed for structured output.
func Map() map[string]string {
	return map[string]string{
		"name":      Name,
		"version":   Version,
		"commit":    Commit,
		"buildTime": BuildTime,
		"goVersion": runtime.Version(),
		"platform":  runtime.GOOS + "/" + runtime.GOARCH,
	}
}
