// Package version carries the build-time identity of the bookbuilder binary.
package version

import "fmt"

// Version is set via ldflags:
//
//	go build -ldflags "-X git.home.luguber.info/inful/bookbuilder/internal/version.Version=v1.2.0"
var Version = "dev"

// Commit is the short hash of the commit the binary was built from, when the
// release script stamps it.
var Commit = ""

// String returns the version with the commit appended when known.
func String() string {
	if Commit == "" {
		return Version
	}
	return fmt.Sprintf("%s (%s)", Version, Commit)
}
