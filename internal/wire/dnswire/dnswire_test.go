package dnswire

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestQueryRoundTrip(t *testing.T) {
	raw, err := BuildQuery(0x1234)
	require.NoError(t, err)

	parsed, err := Parse(raw)
	require.NoError(t, err)
	require.True(t, parsed.IsQuery)
	require.Equal(t, uint16(0x1234), parsed.TxID)
}

func TestResponseRoundTrip(t *testing.T) {
	ann := Announcement{
		PeerID:   "Qm123",
		Nickname: "alice",
		Addr:     "/ip4/192.168.1.5/tcp/4001/p2p/Qm123",
		Caps:     []string{"file", "group"},
		Meta:     map[string]string{"v": "1"},
	}
	raw, err := BuildResponse(7, 360, ann)
	require.NoError(t, err)

	parsed, err := Parse(raw)
	require.NoError(t, err)
	require.False(t, parsed.IsQuery)
	require.Len(t, parsed.Announcements, 1)
	require.Equal(t, ann.PeerID, parsed.Announcements[0].PeerID)
	require.Equal(t, ann.Nickname, parsed.Announcements[0].Nickname)
	require.Equal(t, ann.Addr, parsed.Announcements[0].Addr)
	require.Equal(t, ann.Caps, parsed.Announcements[0].Caps)
	require.Equal(t, ann.Meta, parsed.Announcements[0].Meta)
}

func TestResponseMissingFieldRejected(t *testing.T) {
	_, err := decodeAnnouncement("peer_id=abc nickname=bob")
	require.ErrorIs(t, err, ErrMissingField)
}

func TestParse_TooShort(t *testing.T) {
	_, err := Parse([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrPacketTooShort)
}

func TestChunkString_DNSChunkRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.StringOfN(rapid.RuneFrom([]rune("abcdefghijklmnop0123456789=_ ,:")), 0, 4096, -1).Draw(t, "s")
		chunks := chunkString(s)
		for _, c := range chunks {
			require.LessOrEqual(t, len(c), 255)
		}
		require.Equal(t, s, strings.Join(chunks, ""))
	})
}

func TestQueryTracker_TimeoutGC(t *testing.T) {
	qt := NewQueryTracker()
	base := time.Now()
	id := qt.NextID(base)
	require.Equal(t, 1, qt.PendingCount())

	qt.GC(base.Add(PendingTimeout + time.Second))
	require.Equal(t, 0, qt.PendingCount())

	require.False(t, qt.Resolve(id))
}

func TestQueryTracker_Resolve(t *testing.T) {
	qt := NewQueryTracker()
	id := qt.NextID(time.Now())
	require.True(t, qt.Resolve(id))
	require.Equal(t, 0, qt.PendingCount())
}

func TestErrorRateLimiter(t *testing.T) {
	rl := NewErrorRateLimiter()
	base := time.Now()
	for i := 0; i < 11; i++ {
		rl.RecordError(base.Add(time.Duration(i) * time.Millisecond))
	}
	require.True(t, rl.ShouldDrop(base.Add(20*time.Millisecond)))
	require.False(t, rl.ShouldDrop(base.Add(2*time.Minute)))
}
