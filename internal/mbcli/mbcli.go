// Package mbcli collects the pieces every mediabackups command-line
// entry point needs in common: the shared exit-code taxonomy (spec
// section 6), config/logger bootstrapping, and the interactive prompt
// helpers query-media-file, restore-media-file and delete-media-file
// all drive the same way. Individual cmd/<name>/main.go files stay thin
// wrappers over this package and over internal/pipeline, internal/
// recovery and internal/incremental, the way the teacher's cmd/uploc
// command files stay thin over modules/.
package mbcli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/wikimedia/operations-software-mediabackups/internal/mbconfig"
	"github.com/wikimedia/operations-software-mediabackups/internal/mblog"
	"github.com/wikimedia/operations-software-mediabackups/internal/metadatastore"
	"github.com/wikimedia/operations-software-mediabackups/internal/pipeline"
)

// The shared exit-code taxonomy (spec section 6). ExitFatalMisconfig is
// -1, which os.Exit reports to the shell as status 255, the same status
// as ExitTempDirMissingParent.
const (
	ExitSuccess              = 0
	ExitAborted              = 3
	ExitNoMatch              = 4
	ExitInvalidSearchMethod  = 5
	ExitStillPublic          = 6
	ExitProbeTimeout         = 7
	ExitTempDirPermission    = 253
	ExitTempDirConflict      = 254
	ExitTempDirMissingParent = 255
	ExitFatalMisconfig       = -1
)

// Die prints args to stderr and exits with code, the same shape as the
// teacher's cmd/uplod die(), generalized to carry an explicit exit code
// since mediabackups' commands each need a different one depending on
// what failed.
func Die(code int, args ...interface{}) {
	fmt.Fprintln(os.Stderr, args...)
	os.Exit(code)
}

// Bootstrap loads config from path and opens a stderr logger tagged
// with binaryName, dying with ExitFatalMisconfig on any failure. Every
// cmd/*/main.go calls this first.
func Bootstrap(binaryName, configPath string) (*mbconfig.Config, *mblog.Logger) {
	cfg, err := mbconfig.Load(configPath)
	if err != nil {
		Die(ExitFatalMisconfig, "config error:", err)
	}
	log, err := mblog.New(binaryName, os.Stderr)
	if err != nil {
		Die(ExitFatalMisconfig, "logger error:", err)
	}
	return cfg, log
}

// TempDirExitCode maps an error returned by pipeline.Run/CreateTempDir to
// an exit code: a *pipeline.TempDirError gets the code for its kind, and
// any other error shape gets ExitFatalMisconfig.
func TempDirExitCode(err error) int {
	tdErr, ok := err.(*pipeline.TempDirError)
	if !ok {
		return ExitFatalMisconfig
	}
	switch tdErr.Kind {
	case pipeline.TempDirPermission:
		return ExitTempDirPermission
	case pipeline.TempDirConflict:
		return ExitTempDirConflict
	case pipeline.TempDirMissingParent:
		return ExitTempDirMissingParent
	default:
		return ExitFatalMisconfig
	}
}

// ParseQueryAttribute validates a CLI-supplied search method string
// against MetadataStore's supported attributes, returning an error the
// caller maps to ExitInvalidSearchMethod.
func ParseQueryAttribute(s string) (metadatastore.QueryAttribute, error) {
	switch metadatastore.QueryAttribute(s) {
	case metadatastore.ByTitle, metadatastore.BySHA1Hex, metadatastore.BySHA1Base36,
		metadatastore.BySHA256, metadatastore.BySwiftPath, metadatastore.ByUploadDate,
		metadatastore.ByArchiveDate, metadatastore.ByDeleteDate:
		return metadatastore.QueryAttribute(s), nil
	default:
		return "", fmt.Errorf("unsupported search method %q", s)
	}
}

// Confirm prints prompt and reads a yes/no answer from stdin, treating
// EOF, empty input, or anything other than "y" or "yes" (any case,
// surrounding whitespace ignored) as "no".
// Destructive operations default to dry-run and require --execute (spec
// section 7); Confirm is the extra interactive gate restore-media-file
// and delete-media-file apply on top of that flag before writing.
func Confirm(prompt string) bool {
	fmt.Print(prompt)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}

// PrintBackupRecords renders query results as a plain-text table for
// operator review, the format query-media-file, restore-media-file and
// delete-media-file all share before prompting.
func PrintBackupRecords(records []*metadatastore.BackupRecord) {
	for i, r := range records {
		fmt.Printf("[%d] wiki=%s title=%q status=%s backup_status=%s sha256=%s location=%d backup_path=%s production_url=%s\n",
			i, r.Wiki, r.UploadName, r.Status, r.BackupStatus, r.SHA256, r.Location, r.BackupPath, r.ProductionURL)
	}
}
