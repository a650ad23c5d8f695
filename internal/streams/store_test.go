package streams

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreSetGetDelete(t *testing.T) {
	s := NewStore()

	_, ok := s.Get("peer-1")
	require.False(t, ok)

	s.Set("peer-1", &RemoteStream{PeerID: "peer-1"})
	got, ok := s.Get("peer-1")
	require.True(t, ok)
	require.Equal(t, "peer-1", got.PeerID)
	require.Equal(t, 1, s.Len())

	s.Delete("peer-1")
	_, ok = s.Get("peer-1")
	require.False(t, ok)
	require.Equal(t, 0, s.Len())
}

func TestStoreDeleteUnknownIsNoop(t *testing.T) {
	s := NewStore()
	s.Delete("nope")
	require.Equal(t, 0, s.Len())
}

func TestStoreSetReplaces(t *testing.T) {
	s := NewStore()
	s.Set("peer-1", &RemoteStream{PeerID: "peer-1"})
	replacement := &RemoteStream{PeerID: "peer-1"}
	s.Set("peer-1", replacement)

	got, _ := s.Get("peer-1")
	require.Same(t, replacement, got)
	require.Equal(t, 1, s.Len())
}

func TestStorePeerIDsAndClear(t *testing.T) {
	s := NewStore()
	s.Set("b", &RemoteStream{PeerID: "b"})
	s.Set("a", &RemoteStream{PeerID: "a"})

	ids := s.PeerIDs()
	require.ElementsMatch(t, []string{"a", "b"}, ids)

	s.Clear()
	require.Equal(t, 0, s.Len())
	require.Empty(t, s.PeerIDs())
}
