package prodcatalog

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wikimedia/operations-software-mediabackups/internal/filerecord"
)

func TestBuildQueryOpenRange(t *testing.T) {
	query, args := buildQuery(TableImage, "enwiki", Slice{})
	require.Contains(t, query, "FROM image")
	require.Contains(t, query, "WHERE 1=1")
	require.Contains(t, query, "ORDER BY img_name")
	require.Empty(t, args)
}

func TestBuildQueryBoundedRange(t *testing.T) {
	lower, upper := "Ac", "Ah"
	query, args := buildQuery(TableOldImage, "commonswiki", Slice{Lower: &lower, Upper: &upper})
	require.Contains(t, query, "oi_name >= ?")
	require.Contains(t, query, "oi_name < ?")
	require.Equal(t, []interface{}{"Ac", "Ah"}, args)
}

func TestBuildQueryFileArchiveUsesStorageKey(t *testing.T) {
	query, _ := buildQuery(TableFileArchive, "enwiki", Slice{})
	require.Contains(t, query, "fa_storage_key")
	require.Contains(t, query, "ORDER BY fa_name, fa_storage_key")
}

func TestFillSHA1Empty(t *testing.T) {
	fr, _ := filerecord.New("enwiki", "Foo.jpg", filerecord.StatusPublic)
	require.NoError(t, fillSHA1(fr, sql.NullString{}))
	require.Empty(t, fr.SHA1)
}

func TestFillSHA1Decodes(t *testing.T) {
	fr, _ := filerecord.New("enwiki", "Foo.jpg", filerecord.StatusPublic)
	require.NoError(t, fillSHA1(fr, sql.NullString{String: "0000000000000000000000000000000", Valid: true}))
	require.Len(t, fr.SHA1, 40)
}

func TestArchivedTimestampFromArchiveName(t *testing.T) {
	ts := archivedTimestampFrom(sql.NullString{String: "20200115120000!Foo.jpg", Valid: true}, "ignored")
	require.NotNil(t, ts)
	require.Equal(t, 2020, ts.Year())
}

func TestArchivedTimestampFallsBackToStoredName(t *testing.T) {
	ts := archivedTimestampFrom(sql.NullString{}, "20210203040506!Foo.jpg")
	require.NotNil(t, ts)
	require.Equal(t, 2021, ts.Year())
}

func TestArchivedTimestampUnavailable(t *testing.T) {
	ts := archivedTimestampFrom(sql.NullString{String: "not-a-timestamp", Valid: true}, "also-not-one")
	require.Nil(t, ts)
}

func TestIsRecoverable(t *testing.T) {
	require.False(t, isRecoverable(nil))
}
