package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Name of the application
const Name = "renotize"

// Set at build time with -ldflags "-X github.com/renkit/renotize/pkg/version.Version=...".
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// resolved returns Version, falling back to the module version recorded
// by `go install` when no ldflags were given.
func resolved() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}

// VersionInfo returns complete version information
func VersionInfo() string {
	return fmt.Sprintf("%s version %s\nCommit: %s\nBuilt: %s\nGo version: %s (%s/%s)",
		Name, resolved(), Commit, Date, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// ShortVersion returns name and version only
func ShortVersion() string {
	return fmt.Sprintf("%s %s", Name, resolved())
}
