package prodcatalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetImageRangesSmallWiki(t *testing.T) {
	boundaries := GetImageRanges(false)
	require.Equal(t, []rangeBoundary{nil, nil}, boundaries)
}

func TestGetImageRangesBigWikiShape(t *testing.T) {
	boundaries := GetImageRanges(true)
	require.Nil(t, boundaries[0])
	require.Nil(t, boundaries[len(boundaries)-1])
	require.Equal(t, "0", *boundaries[1])
	require.Equal(t, "05", *boundaries[2])

	found2020 := false
	for _, b := range boundaries {
		if b != nil && *b == "2020" {
			found2020 = true
		}
	}
	require.True(t, found2020)
}

func TestGetImageRangesBigWikiExactSequence(t *testing.T) {
	boundaries := GetImageRanges(true)

	var want []rangeBoundary
	want = append(want, nil)
	for _, n := range []string{
		"0", "05",
		"1", "15", "19",
		"20", "2013", "2016", "2018", "2019", "2020",
		"3", "4", "5", "6", "7", "8", "9",
	} {
		want = append(want, s(n))
	}
	for c := 'A'; c <= 'Z'; c++ {
		for _, shard := range []string{"0", "c", "h", "m", "q", "t"} {
			want = append(want, s(string(c)+shard))
		}
	}
	for _, anchor := range []string{"^", "В", "Л", "С", "Ե", "儀"} {
		want = append(want, s(anchor))
	}
	want = append(want, nil)

	require.Len(t, boundaries, len(want))
	for i := range want {
		if want[i] == nil {
			require.Nil(t, boundaries[i], "index %d", i)
			continue
		}
		require.Equal(t, *want[i], *boundaries[i], "index %d", i)
	}
}

func TestSlicesAreHalfOpenAndContiguous(t *testing.T) {
	slices := Slices(true)
	boundaries := GetImageRanges(true)
	require.Len(t, slices, len(boundaries)-1)
	for i, sl := range slices {
		require.Equal(t, boundaries[i], sl.Lower)
		require.Equal(t, boundaries[i+1], sl.Upper)
	}
}

func TestSlicesSmallWikiIsSingleOpenRange(t *testing.T) {
	slices := Slices(false)
	require.Len(t, slices, 1)
	require.Nil(t, slices[0].Lower)
	require.Nil(t, slices[0].Upper)
}
