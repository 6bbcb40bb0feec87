// Package mblog wraps github.com/uplo-tech/log the way the teacher's
// persist.Logger wraps it, so every CLI and component shares one log
// record shape (timestamp, binary name, release, version).
package mblog

import (
	"io"

	"github.com/uplo-tech/log"

	"github.com/wikimedia/operations-software-mediabackups/internal/build"
)

// Logger embeds *log.Logger so callers use it exactly like the stdlib-ish
// logger the rest of the corpus is written against.
type Logger struct {
	*log.Logger
}

func options(binaryName string) log.Options {
	return log.Options{
		BinaryName:   binaryName,
		BugReportURL: build.IssuesURL,
		Debug:        build.DEBUG,
		Release:      build.ReleaseType(),
		Version:      build.Version,
	}
}

// NewFileLogger returns a logger appending to logFilename, creating it if
// necessary. binaryName should be the CLI's own name, e.g. "backup-wiki".
func NewFileLogger(binaryName, logFilename string) (*Logger, error) {
	logger, err := log.NewFileLogger(logFilename, options(binaryName))
	if err != nil {
		return nil, err
	}
	return &Logger{logger}, nil
}

// New returns a logger writing to w, typically os.Stderr for interactive
// CLI commands.
func New(binaryName string, w io.Writer) (*Logger, error) {
	logger, err := log.NewLogger(w, options(binaryName))
	if err != nil {
		return nil, err
	}
	return &Logger{logger}, nil
}
