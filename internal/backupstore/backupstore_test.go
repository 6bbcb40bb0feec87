package backupstore

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
)

func fakeStore(numEndpoints int) *Store {
	return &Store{
		bucket:    "mediabackups",
		endpoints: make([]string, numEndpoints),
		clients:   make([]*s3.Client, numEndpoints),
	}
}

func TestShardArithmeticFourEndpoints(t *testing.T) {
	s := fakeStore(4)
	shard, err := s.Shard("enwiki/9f8/9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08")
	require.NoError(t, err)
	require.Equal(t, 3, shard) // int('9', 16) // 4 == 2, 1-based -> 3
}

func TestShardBoundaries(t *testing.T) {
	s := fakeStore(4)
	cases := map[string]int{
		"wiki/000/0aaa": 1,
		"wiki/000/3aaa": 1,
		"wiki/000/4aaa": 2,
		"wiki/000/7aaa": 2,
		"wiki/000/8aaa": 3,
		"wiki/000/baaa": 3,
		"wiki/000/caaa": 4,
		"wiki/000/faaa": 4,
	}
	for key, want := range cases {
		got, err := s.Shard(key)
		require.NoError(t, err)
		require.Equalf(t, want, got, "key=%s", key)
	}
}

func TestShardStripsAgeSuffix(t *testing.T) {
	s := fakeStore(4)
	withSuffix, err := s.Shard("privatewiki/9f8/9f86d081.age")
	require.NoError(t, err)
	without, err := s.Shard("privatewiki/9f8/9f86d081")
	require.NoError(t, err)
	require.Equal(t, without, withSuffix)
}

func TestEndpointRoundTrip(t *testing.T) {
	s := fakeStore(2)
	s.endpoints[0] = "https://ms-fe1"
	s.endpoints[1] = "https://ms-fe2"

	e, ok := s.Endpoint(1)
	require.True(t, ok)
	require.Equal(t, "https://ms-fe1", e)

	_, ok = s.Endpoint(3)
	require.False(t, ok)
}
