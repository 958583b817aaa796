// Package build exposes build-time metadata injected via ldflags.
package build

import "fmt"

// Version, Commit, and Branch are set at build time by:
//
//	-ldflags "-X github.com/joestump/bio-links/internal/build.Version=... ..."
var (
	Version = "dev"
	Commit  = "unknown"
	Branch  = "unknown"
)

// String renders the metadata as printed by "bio-links version".
func String() string {
	return fmt.Sprintf("bio-links %s (commit %s, branch %s)", Version, Commit, Branch)
}
