// Package version holds build-time variables injected by ldflags.
package version

// These vars are overwritten at link time:
//
//	-X github.com/d9705996/clientportal/internal/version.Version=v1.0.0
//	-X github.com/d9705996/clientportal/internal/version.Commit=abc1234
//	-X github.com/d9705996/clientportal/internal/version.Date=2026-10-01T00:00:00Z
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String renders the build info for `clientportal --version`.
func String() string { return Version + " (" + Commit + ", " + Date + ")" }
