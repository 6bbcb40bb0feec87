package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
)

// TempDirError distinguishes the three ways creating the per-process
// temp directory can fail, each mapped by the CLI entry point to its
// own exit code (spec section 6: 253/254/255).
type TempDirError struct {
	Kind TempDirErrorKind
	Err  error
}

func (e *TempDirError) Error() string { return e.Err.Error() }
func (e *TempDirError) Unwrap() error { return e.Err }

// TempDirErrorKind enumerates the distinct temp-dir creation failures.
type TempDirErrorKind int

const (
	// TempDirPermission means the process lacks permission to create
	// the directory.
	TempDirPermission TempDirErrorKind = iota
	// TempDirConflict means a file or directory already occupies the
	// path.
	TempDirConflict
	// TempDirMissingParent means root itself does not exist.
	TempDirMissingParent
)

// CreateTempDir creates a per-process temp directory named by pid under
// root, refusing to run rather than falling back to a different
// location (spec section 4.8 step 1, section 5's "per-process, named by
// pid" rule).
func CreateTempDir(root string) (string, error) {
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return "", &TempDirError{Kind: TempDirMissingParent, Err: err}
		}
		return "", &TempDirError{Kind: TempDirPermission, Err: err}
	}

	dir := filepath.Join(root, fmt.Sprintf("mediabackups-%d", os.Getpid()))
	if err := os.Mkdir(dir, 0o700); err != nil {
		if os.IsExist(err) {
			return "", &TempDirError{Kind: TempDirConflict, Err: err}
		}
		if os.IsPermission(err) {
			return "", &TempDirError{Kind: TempDirPermission, Err: err}
		}
		return "", &TempDirError{Kind: TempDirPermission, Err: err}
	}
	return dir, nil
}

// RemoveTempDir removes dir, warning via logger if it was non-empty.
func RemoveTempDir(dir string, warn func(format string, args ...interface{})) {
	entries, err := os.ReadDir(dir)
	if err == nil && len(entries) > 0 && warn != nil {
		warn("WARN: temp directory %s was non-empty at shutdown (%d leftover entries)", dir, len(entries))
	}
	if err := os.RemoveAll(dir); err != nil && warn != nil {
		warn("WARN: unable to remove temp directory %s: %v", dir, err)
	}
}
