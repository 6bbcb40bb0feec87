package swiftaddr

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wikimedia/operations-software-mediabackups/internal/filerecord"
)

func TestAddressesMissingStoredName(t *testing.T) {
	container, path := Addresses("enwiki", filerecord.StatusPublic, "Foo.jpg", "", "", false)
	require.NotEmpty(t, container)
	require.Empty(t, path)
}

func TestAddressesMissingTitleNonDeleted(t *testing.T) {
	container, path := Addresses("enwiki", filerecord.StatusPublic, "", "Foo.jpg", "", false)
	require.Empty(t, container)
	require.Empty(t, path)
}

func TestAddressesPublicPath(t *testing.T) {
	container, path := Addresses("dewiki", filerecord.StatusPublic, "Foo.jpg", "Foo.jpg", "", false)
	require.Equal(t, "wikipedia-de-local-public", container)
	require.True(t, strings.HasSuffix(path, "/Foo.jpg"))
	require.Equal(t, 2, strings.Count(path, "/"))
}

func TestAddressesArchivedSharesPublicContainer(t *testing.T) {
	publicContainer, _ := Addresses("dewiki", filerecord.StatusPublic, "Foo.jpg", "Foo.jpg", "", false)
	archivedContainer, path := Addresses("dewiki", filerecord.StatusArchived, "Foo.jpg", "20200101000000!Foo.jpg", "", false)
	require.Equal(t, publicContainer, archivedContainer)
	require.True(t, strings.HasPrefix(path, "archive/"))
}

func TestAddressesBigWikiShard(t *testing.T) {
	container, _ := Addresses("commonswiki", filerecord.StatusPublic, "Foo.jpg", "Foo.jpg", "", true)
	require.True(t, strings.HasPrefix(container, "wikipedia-commons-local-public."))
	require.Len(t, strings.Split(container, ".")[1], 2)
}

func TestAddressesBigWikiFalseNotSharded(t *testing.T) {
	container, _ := Addresses("commonswiki", filerecord.StatusPublic, "Foo.jpg", "Foo.jpg", "", false)
	require.Equal(t, "wikipedia-commons-local-public", container)
}

func TestAddressesDeletedPath(t *testing.T) {
	container, path := Addresses("enwiki", filerecord.StatusDeleted, "", "abc123hash.jpg", "abc", false)
	require.NotEmpty(t, container)
	require.Equal(t, "a/b/c/abc123hash.jpg", path)
}

func TestContainerToWikiRoundTrip(t *testing.T) {
	container, _ := Addresses("enwiki", filerecord.StatusPublic, "Foo.jpg", "Foo.jpg", "", false)
	base := strings.Split(container, ".")[0]
	wiki, ok := ContainerToWiki(base)
	require.True(t, ok)
	require.Equal(t, "enwiki", wiki)
}

func TestWikiPrefixReplacesUnderscoreWithHyphen(t *testing.T) {
	container, _ := Addresses("be_x_oldwiki", filerecord.StatusPublic, "Foo.jpg", "Foo.jpg", "", false)
	require.Equal(t, "wikipedia-be-x-old-local-public", container)
}
