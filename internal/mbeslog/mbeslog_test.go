package mbeslog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	log := strings.Join([]string{
		"2024-01-01 00:00:00 starting mwscript eraseArchivedFile.php --wiki=enwiki --filekey=abc --delete",
		"Deleted version 'abcdef1234567890abcdef1234567890abcdef12.jpg' (20240101000000) of file 'Example.jpg'",
		"Deleted version 'fedcba0987654321fedcba0987654321fedcba09.png' (20240102000000) of file 'Other.png'",
		"2024-01-01 00:05:00 starting mwscript eraseArchivedFile.php --wiki=commonswiki --filekey=def --delete",
		"Deleted version 'aaaaaa1111111111aaaaaa1111111111aaaaaa11.gif' (20240103000000) of file 'Third.gif'",
	}, "\n")

	entries, err := Parse(strings.NewReader(log))
	require.NoError(t, err)
	require.Len(t, entries, 3)

	require.Equal(t, "enwiki", entries[0].Wiki)
	require.Equal(t, "abcdef1234567890abcdef1234567890abcdef12", entries[0].SHA1Base36)
	require.Equal(t, "20240101000000", entries[0].ArchiveTime)
	require.Equal(t, "Example.jpg", entries[0].Title)

	require.Equal(t, "enwiki", entries[1].Wiki)
	require.Equal(t, "commonswiki", entries[2].Wiki)
}

func TestParseErrorsWithoutAnchor(t *testing.T) {
	log := "Deleted version 'abc.jpg' (20240101000000) of file 'Example.jpg'"
	_, err := Parse(strings.NewReader(log))
	require.Error(t, err)
}

func TestParseEmptyInput(t *testing.T) {
	entries, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	require.Empty(t, entries)
}
