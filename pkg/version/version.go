// Package version reports build information for the agent binary.
package version

import "fmt"

// Set at build time, for example:
// go build -ldflags "-X resilientagent/pkg/version.Version=v1.2.3".
//
//nolint:gochecknoglobals // ldflags can only target package-level vars
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String formats the build information on one line.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date)
}
