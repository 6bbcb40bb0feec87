package filerecord

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewRequiresWiki(t *testing.T) {
	_, err := New("", "Foo.jpg", StatusPublic)
	require.Error(t, err)

	fr, err := New("enwiki", "Foo.jpg", StatusPublic)
	require.NoError(t, err)
	require.Equal(t, unknownFileType, fr.FileType)
}

func TestEqualIgnoresID(t *testing.T) {
	ts := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	a, _ := New("enwiki", "Foo.jpg", StatusPublic)
	a.ID = 1
	a.SHA1 = "abc"
	a.UploadTimestamp = &ts

	b, _ := New("enwiki", "Foo.jpg", StatusPublic)
	b.ID = 2
	b.SHA1 = "abc"
	tsCopy := ts
	b.UploadTimestamp = &tsCopy

	require.True(t, a.Equal(b))

	b.SHA1 = "def"
	require.False(t, a.Equal(b))
}

func TestDedupeKey(t *testing.T) {
	a, _ := New("enwiki", "Foo.jpg", StatusPublic)
	a.SHA1 = "deadbeef"
	require.Equal(t, "deadbeef", a.DedupeKey())
}

func TestIdentity(t *testing.T) {
	ts := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	size := int64(42)
	a, _ := New("enwiki", "Foo.jpg", StatusPublic)
	a.SHA1 = "abc"
	a.Size = &size
	a.UploadTimestamp = &ts

	key := a.Identity()
	require.Equal(t, "enwiki", key.Wiki)
	require.Equal(t, "abc", key.SHA1)
	require.Equal(t, int64(42), key.Size)
	require.Equal(t, ts.Unix(), key.UploadTimestamp)
}
