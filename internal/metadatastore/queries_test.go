package metadatastore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wikimedia/operations-software-mediabackups/internal/filerecord"
)

func TestBackupPath(t *testing.T) {
	require.Equal(t, "enwiki/9f8/9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		BackupPath("enwiki", "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08", false))
	require.Equal(t, "labswiki/9f8/9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08.age",
		BackupPath("labswiki", "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08", true))
}

func TestSwiftToURL(t *testing.T) {
	require.Equal(t, "", SwiftToURL(filerecord.StatusDeleted, "wikipedia-commons-local-public", "a/ab/Foo.jpg"))
	require.Equal(t, "", SwiftToURL(filerecord.StatusPublic, "nohyphen", "a/ab/Foo.jpg"))

	got := SwiftToURL(filerecord.StatusPublic, "wikipedia-commons-local-public", "a/ab/Foo.jpg")
	require.Equal(t, "https://upload.wikimedia.org/wikipedia/commons/a/ab/Foo.jpg", got)
}
