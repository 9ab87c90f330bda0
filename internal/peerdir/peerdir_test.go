package peerdir

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDiscover_EmitsOnlyOnce(t *testing.T) {
	d := New()
	now := time.Now()

	ev := d.Discover("peer-1", []string{"/ip4/1.2.3.4/tcp/1"}, time.Minute, now)
	require.NotNil(t, ev)
	require.Equal(t, PeerDiscovered, ev.Kind)

	ev = d.Discover("peer-1", []string{"/ip4/1.2.3.4/tcp/2"}, time.Minute, now.Add(time.Second))
	require.Nil(t, ev)

	rec, ok := d.Get("peer-1")
	require.True(t, ok)
	require.Equal(t, []string{"/ip4/1.2.3.4/tcp/2"}, rec.Addrs)
}

func TestUpdateNickname_DisplacesPreviousClaimant(t *testing.T) {
	d := New()
	now := time.Now()
	d.Discover("peer-1", nil, time.Minute, now)
	d.Discover("peer-2", nil, time.Minute, now)

	ev := d.UpdateNickname("peer-1", "alice")
	require.Equal(t, NicknameUpdated, ev.Kind)

	ev = d.UpdateNickname("peer-2", "alice")
	require.Equal(t, NicknameUpdated, ev.Kind)

	rec1, _ := d.Get("peer-1")
	require.Empty(t, rec1.Nickname, "peer-1 should lose its nickname to the later claimant")

	rec, ok := d.GetByNickname("alice")
	require.True(t, ok)
	require.Equal(t, "peer-2", rec.PeerID)
}

func TestRemove_ClearsNicknameBinding(t *testing.T) {
	d := New()
	now := time.Now()
	d.Discover("peer-1", nil, time.Minute, now)
	d.UpdateNickname("peer-1", "alice")

	ev := d.Remove("peer-1", Disconnected)
	require.Equal(t, Disconnected, ev.Kind)

	_, ok := d.GetByNickname("alice")
	require.False(t, ok)
	_, ok = d.Get("peer-1")
	require.False(t, ok)
}

func TestExpireStale(t *testing.T) {
	d := New()
	now := time.Now()
	d.Discover("peer-1", nil, 60*time.Second, now)

	events := d.ExpireStale(now.Add(30 * time.Second))
	require.Empty(t, events)

	events = d.ExpireStale(now.Add(90 * time.Second))
	require.Len(t, events, 1)
	require.Equal(t, PeerExpired, events[0].Kind)
	require.Equal(t, 0, d.Count())
}
