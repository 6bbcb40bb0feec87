// Package build carries version and release metadata shared by every
// mediabackups CLI, the way github.com/uplo-tech/uplo/build does for uplod.
package build

import "github.com/uplo-tech/log"

// Version is the mediabackups release version. It is overwritten at link
// time via -ldflags for tagged builds.
var Version = "0.0.0-dev"

// IssuesURL is where operators should file bugs found in the backup
// pipeline or its CLIs.
const IssuesURL = "https://phabricator.wikimedia.org/tag/data-persistence-backup/"

// Release describes which build configuration produced the running binary.
// It is set via -ldflags the same way the teacher's build.Release is.
var Release = "standard"

// DEBUG toggles verbose, potentially sensitive logging (e.g. SQL statement
// text). It must never be enabled for a production backup run.
var DEBUG = false

// ReleaseType maps the Release string to the log package's enum, mirroring
// persist.buildReleaseType in the teacher.
func ReleaseType() log.ReleaseType {
	switch Release {
	case "dev":
		return log.Dev
	case "testing":
		return log.Testing
	default:
		return log.Release
	}
}
