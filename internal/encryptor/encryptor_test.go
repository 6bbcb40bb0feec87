package encryptor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeFakeBinary writes a shell script standing in for "age" that writes
// an empty file at its --output path and exits with the given code.
func writeFakeBinary(t *testing.T, dir string, exitCode int) string {
	t.Helper()
	path := filepath.Join(dir, "fake-age.sh")
	script := "#!/bin/sh\n" +
		"out=\"\"\n" +
		"while [ \"$#\" -gt 0 ]; do\n" +
		"  if [ \"$1\" = \"--output\" ]; then out=\"$2\"; fi\n" +
		"  shift\n" +
		"done\n" +
		"if [ -n \"$out\" ]; then : > \"$out\"; fi\n" +
		"exit " + string(rune('0'+exitCode)) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o700))
	return path
}

func TestEncryptSuccess(t *testing.T) {
	dir := t.TempDir()
	binary := writeFakeBinary(t, dir, 0)
	plaintext := filepath.Join(dir, "file.bin")
	require.NoError(t, os.WriteFile(plaintext, []byte("data"), 0o600))

	e := New(binary, filepath.Join(dir, "identity.txt"))
	code, err := e.Encrypt(context.Background(), plaintext)
	require.NoError(t, err)
	require.Equal(t, 0, code)
	require.FileExists(t, plaintext+ageSuffix)
}

func TestDecryptNonZeroExitCode(t *testing.T) {
	dir := t.TempDir()
	binary := writeFakeBinary(t, dir, 3)
	plaintext := filepath.Join(dir, "file.bin")

	e := New(binary, filepath.Join(dir, "identity.txt"))
	code, err := e.Decrypt(context.Background(), plaintext)
	require.NoError(t, err)
	require.Equal(t, 3, code)
}

func TestNewDefaultsBinaryToAge(t *testing.T) {
	e := New("", "/tmp/identity.txt")
	require.Equal(t, "age", e.binary)
}
