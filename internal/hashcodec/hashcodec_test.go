package hashcodec

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSHA1Stream(t *testing.T) {
	digest, err := SHA1Stream(strings.NewReader("hello world"))
	require.NoError(t, err)
	require.Equal(t, "2aae6c35c94fcfb415dbe95f408b9ce91ee846ed", digest)
	require.Len(t, digest, 40)
}

func TestSHA256Stream(t *testing.T) {
	digest, err := SHA256Stream(strings.NewReader(""))
	require.NoError(t, err)
	require.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", digest)
	require.Len(t, digest, 64)
}

func TestBase16Base36RoundTrip(t *testing.T) {
	hex := "0000000000000000000000000000000000000001"[:40]
	b36, err := Base16ToBase36(hex)
	require.NoError(t, err)
	require.Len(t, b36, 31)

	back, err := Base36ToBase16(b36)
	require.NoError(t, err)
	require.Len(t, back, 40)
}

func TestBase36RoundTripFromBase36(t *testing.T) {
	b36 := leftPad("1t2ty1634aluogoq0kb5idi5b6wc5y", 31, '0')
	hex, err := Base36ToBase16(b36)
	require.NoError(t, err)

	roundTrip, err := Base16ToBase36(hex)
	require.NoError(t, err)
	require.Equal(t, b36, roundTrip)
}

func TestMWDateToInstant(t *testing.T) {
	got := MWDateToInstant("20200115120000")
	want := time.Date(2020, 1, 15, 12, 0, 0, 0, time.UTC)
	require.True(t, got.Equal(want))

	require.True(t, MWDateToInstant("garbage").Equal(epochPlusOne))
	require.True(t, MWDateToInstant("").Equal(epochPlusOne))
}

func TestParseCLIDate(t *testing.T) {
	_, err := ParseCLIDate("2020-01-15 12:00:00")
	require.NoError(t, err)
	_, err = ParseCLIDate("20200115120000")
	require.NoError(t, err)
	_, err = ParseCLIDate("not-a-date")
	require.Error(t, err)
}
