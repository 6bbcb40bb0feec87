// Package encryptor wraps an external age-compatible encryption tool as
// a subprocess (spec section 4.6). The tool itself is out of scope;
// this package only specifies the narrow interface the pipeline drives
// it through.
package encryptor

import (
	"context"
	goerrors "errors"
	"os/exec"

	"github.com/uplo-tech/errors"
)

// ageSuffix is appended to the plaintext path to name the ciphertext.
const ageSuffix = ".age"

// Encryptor invokes "age" (or an age-compatible binary) with a fixed
// identity file for both directions.
type Encryptor struct {
	binary       string
	identityPath string
}

// New returns an Encryptor that shells out to binary (e.g. "age" found
// on PATH) using the identity file at identityPath.
func New(binary, identityPath string) *Encryptor {
	if binary == "" {
		binary = "age"
	}
	return &Encryptor{binary: binary, identityPath: identityPath}
}

// Encrypt produces path+".age" from path, returning the subprocess exit
// code. A non-zero code is a failure.
func (e *Encryptor) Encrypt(ctx context.Context, path string) (int, error) {
	out := path + ageSuffix
	cmd := exec.CommandContext(ctx, e.binary,
		"--encrypt",
		"--identity", e.identityPath,
		"--output", out,
		path,
	)
	return runAndExitCode(cmd)
}

// Decrypt expects path+".age" as input and writes path, returning the
// subprocess exit code. A non-zero code is a failure.
func (e *Encryptor) Decrypt(ctx context.Context, path string) (int, error) {
	in := path + ageSuffix
	cmd := exec.CommandContext(ctx, e.binary,
		"--decrypt",
		"--identity", e.identityPath,
		"--output", path,
		in,
	)
	return runAndExitCode(cmd)
}

func runAndExitCode(cmd *exec.Cmd) (int, error) {
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if goerrors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, errors.AddContext(err, "encryptor: unable to run subprocess")
}
