// Package version carries build metadata set with -ldflags.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// Resolved returns Version, or the module version recorded by `go install`
// when no version was linked in.
func Resolved() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}

// String returns a one-line description such as
// "v1.2.0 (abc1234, built 2024-03-01T12:00:00Z) linux/amd64".
func String() string {
	return fmt.Sprintf("%s (%s, built %s) %s/%s", Resolved(), GitSHA, BuildTime, runtime.GOOS, runtime.GOARCH)
}
