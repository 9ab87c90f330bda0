package node

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"
)

// newTestNode builds a Node listening on localhost with a fresh random
// transport identity, output directory, and share index.
func newTestNode(t *testing.T, nick string) *Node {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	dir := t.TempDir()
	n, err := New(hex.EncodeToString(priv), nick, filepath.Join(dir, "downloads"), filepath.Join(dir, "shares.json"))
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "downloads"), 0o755))

	require.NoError(t, n.StartListening("/ip4/127.0.0.1/tcp/0"))
	t.Cleanup(n.Shutdown)
	return n
}

// connectNodes connects a's host to b's host over localhost, mirroring
// the two-host integration pattern used elsewhere in this codebase.
func connectNodes(t *testing.T, a, b *Node) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := a.Host().Connect(ctx, peer.AddrInfo{
		ID:    b.Host().ID(),
		Addrs: b.Host().Addrs(),
	})
	require.NoError(t, err)
}

func awaitEvent(t *testing.T, n *Node, kind EventKind, timeout time.Duration) Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for {
		ev, err := n.HandleNextSwarmEvent(ctx)
		require.NoError(t, err, "waiting for event kind %v", kind)
		if ev.Kind == kind {
			return ev
		}
	}
}

func TestConnectEmitsConnectedAndNicknameExchange(t *testing.T) {
	a := newTestNode(t, "alice")
	b := newTestNode(t, "bob")

	connectNodes(t, a, b)

	awaitEvent(t, a, EventConnected, 5*time.Second)
	awaitEvent(t, b, EventConnected, 5*time.Second)

	ev := awaitEvent(t, a, EventNicknameUpdated, 5*time.Second)
	require.Equal(t, "bob", ev.Nickname)

	ev = awaitEvent(t, b, EventNicknameUpdated, 5*time.Second)
	require.Equal(t, "alice", ev.Nickname)
}

func TestSendDirectMessage(t *testing.T) {
	a := newTestNode(t, "alice")
	b := newTestNode(t, "bob")

	connectNodes(t, a, b)
	awaitEvent(t, a, EventNicknameUpdated, 5*time.Second)
	awaitEvent(t, b, EventNicknameUpdated, 5*time.Second)

	require.NoError(t, a.SendDirectMessage("bob", "hello there"))

	ev := awaitEvent(t, b, EventDirectMessage, 5*time.Second)
	require.Equal(t, "hello there", ev.Message)
	require.Equal(t, "alice", ev.Nickname)
}

func TestGroupJoinAndMessage(t *testing.T) {
	a := newTestNode(t, "alice")
	b := newTestNode(t, "bob")

	connectNodes(t, a, b)
	awaitEvent(t, a, EventConnected, 5*time.Second)
	awaitEvent(t, b, EventConnected, 5*time.Second)

	require.NoError(t, a.JoinGroup("general"))
	require.NoError(t, b.JoinGroup("general"))
	awaitEvent(t, a, EventGroupJoined, 2*time.Second)
	awaitEvent(t, b, EventGroupJoined, 2*time.Second)

	// Allow the mesh to form before publishing.
	time.Sleep(500 * time.Millisecond)

	require.NoError(t, a.SendGroupMessage("general", "hi group"))

	ev := awaitEvent(t, b, EventGroupMessage, 5*time.Second)
	require.Equal(t, "hi group", ev.Message)
	require.Equal(t, "alice", ev.Nickname)
}

func TestShareAndDownloadFile(t *testing.T) {
	a := newTestNode(t, "alice")
	b := newTestNode(t, "bob")

	connectNodes(t, a, b)
	awaitEvent(t, a, EventNicknameUpdated, 5*time.Second)
	awaitEvent(t, b, EventNicknameUpdated, 5*time.Second)

	dir := t.TempDir()
	srcPath := filepath.Join(dir, "hello.txt")
	require.NoError(t, os.WriteFile(srcPath, []byte("hello, gigi"), 0o644))

	code, err := a.ShareFile(srcPath)
	require.NoError(t, err)
	require.NotEmpty(t, code)

	downloadID, err := b.DownloadFile("alice", code)
	require.NoError(t, err)
	require.NotEmpty(t, downloadID)

	ev := awaitEvent(t, b, EventFileDownloadCompleted, 10*time.Second)
	require.Equal(t, code, ev.ShareCode)

	data, err := os.ReadFile(ev.Download.Path)
	require.NoError(t, err)
	require.Equal(t, "hello, gigi", string(data))
}
