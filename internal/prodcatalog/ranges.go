package prodcatalog

// rangeBoundary is one slice boundary for a big wiki's title-space
// paging; nil means "open" (no lower/upper bound at that end).
type rangeBoundary = *string

func s(v string) rangeBoundary {
	return &v
}

// bigWikiLetterShards is drawn from the fixed second-character set used
// to sub-shard each A..Z bucket.
var bigWikiLetterShards = []string{"0", "c", "h", "m", "q", "t"}

// unicodeAnchors are the handful of unicode anchors that close out a big
// wiki's range list after the A..Z letter shards.
var unicodeAnchors = []string{"^", "В", "Л", "С", "Ե", "儀"}

// numericPrefixes are the fixed single- and multi-character numeric
// boundaries preceding the A-Z letter shards.
var numericPrefixes = []string{
	"0", "05",
	"1", "15", "19",
	"20", "2013", "2016", "2018", "2019", "2020",
	"3", "4", "5", "6", "7", "8", "9",
}

// GetImageRanges returns the ordered [lower, upper) boundaries used to
// page a big wiki's title space: an open lower bound, the numeric
// prefixes, per-letter pairs using bigWikiLetterShards, then the
// unicode anchors, terminated by an open upper bound (nil). This
// literally reproduces the boundary table of the Python reference
// implementation's get_image_ranges; for a big wiki that is 182
// boundaries (1 + 18 numeric + 26*6 letter pairs + 6 anchors + 1).
//
// For a wiki that is not big, the single unbounded range [nil, nil) is
// returned.
func GetImageRanges(isBigWiki bool) []rangeBoundary {
	if !isBigWiki {
		return []rangeBoundary{nil, nil}
	}

	boundaries := []rangeBoundary{nil}
	for _, n := range numericPrefixes {
		boundaries = append(boundaries, s(n))
	}
	for c := 'A'; c <= 'Z'; c++ {
		letter := string(c)
		for _, shard := range bigWikiLetterShards {
			boundaries = append(boundaries, s(letter+shard))
		}
	}
	for _, anchor := range unicodeAnchors {
		boundaries = append(boundaries, s(anchor))
	}
	boundaries = append(boundaries, nil)
	return boundaries
}

// Slice is one [Lower, Upper) paging window; nil on either side means
// open.
type Slice struct {
	Lower rangeBoundary
	Upper rangeBoundary
}

// Slices pairs consecutive boundaries from GetImageRanges into
// half-open windows.
func Slices(isBigWiki bool) []Slice {
	boundaries := GetImageRanges(isBigWiki)
	slices := make([]Slice, 0, len(boundaries)-1)
	for i := 0; i+1 < len(boundaries); i++ {
		slices = append(slices, Slice{Lower: boundaries[i], Upper: boundaries[i+1]})
	}
	return slices
}
