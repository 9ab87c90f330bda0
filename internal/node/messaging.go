package node

import (
	"bufio"
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"

	"github.com/gigi-net/gigi-core/internal/group"
	"github.com/gigi-net/gigi-core/internal/proto/direct"
)

// streamTimeout bounds a single request/response round trip over a
// direct-message or nickname stream.
const streamTimeout = 15 * time.Second

// ErrPeerNotFound is returned when a nickname does not resolve to a
// known peer record.
var ErrPeerNotFound = fmt.Errorf("node: unknown nickname")

func (n *Node) resolvePeer(nick string) (peer.ID, error) {
	rec, ok := n.directory.GetByNickname(nick)
	if !ok {
		return "", ErrPeerNotFound
	}
	return peer.Decode(rec.PeerID)
}

func (n *Node) sendDirect(nick string, req direct.Request) error {
	pid, err := n.resolvePeer(nick)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(n.ctx, streamTimeout)
	defer cancel()

	s, err := n.host.NewStream(ctx, pid, protocol.ID(direct.ProtocolID))
	if err != nil {
		return fmt.Errorf("node: open direct stream: %w", err)
	}
	defer s.Close()

	if err := direct.WriteRequest(s, req); err != nil {
		return fmt.Errorf("node: write direct request: %w", err)
	}
	if _, err := direct.ReadResponse(bufio.NewReader(s)); err != nil {
		return fmt.Errorf("node: read direct response: %w", err)
	}

	n.metrics.DirectMessagesTotal.WithLabelValues("sent").Inc()
	return nil
}

// SendDirectMessage sends a plain text direct message to nick (§4.F).
func (n *Node) SendDirectMessage(nick, text string) error {
	return n.sendDirect(nick, direct.Request{Text: &direct.Text{Message: text}})
}

// SendDirectFile notifies nick that shareCode is available for
// download. It does not transfer any bytes itself; the receiver
// decides whether to call DownloadFile.
func (n *Node) SendDirectFile(nick, shareCode string) error {
	entry, err := n.shareIndex.Get(shareCode)
	if err != nil {
		return fmt.Errorf("node: unknown share code: %w", err)
	}
	fileType := mime.TypeByExtension(filepath.Ext(entry.Filename))
	if fileType == "" {
		fileType = "application/octet-stream"
	}
	return n.sendDirect(nick, direct.Request{FileShare: &direct.FileShare{
		ShareCode: entry.ShareCode,
		Filename:  entry.Filename,
		FileSize:  entry.Size,
		FileType:  fileType,
	}})
}

// SendDirectShareGroupMessage invites nick to join groupName.
func (n *Node) SendDirectShareGroupMessage(nick, groupID, groupName string) error {
	return n.sendDirect(nick, direct.Request{ShareGroup: &direct.ShareGroup{
		GroupID:         groupID,
		GroupName:       groupName,
		InviterNickname: n.Nickname(),
	}})
}

// JoinGroup subscribes to the named gossip topic (§4.G).
func (n *Node) JoinGroup(name string) error {
	if err := n.group.Join(name); err != nil {
		return err
	}
	n.enqueueEvent(Event{Kind: EventGroupJoined, GroupName: name})
	return nil
}

// LeaveGroup unsubscribes from the named gossip topic.
func (n *Node) LeaveGroup(name string) error {
	if err := n.group.Leave(name); err != nil {
		return err
	}
	n.enqueueEvent(Event{Kind: EventGroupLeft, GroupName: name})
	return nil
}

// SendGroupMessage publishes a plain text message to a joined group.
func (n *Node) SendGroupMessage(name, text string) error {
	err := n.group.Publish(n.ctx, name, group.Envelope{
		SenderNickname: n.Nickname(),
		Content:        text,
		Timestamp:      time.Now().UnixMilli(),
	})
	if err == nil {
		n.metrics.GroupMessagesTotal.WithLabelValues("sent", name).Inc()
	}
	return err
}

// SendGroupFile publishes a file-share notification to a joined group.
// The raw file bytes are never placed on the gossip channel (§4.G);
// the share-code travels as a "/download <code>" token inside Content,
// which every member must parse back out on receipt.
func (n *Node) SendGroupFile(name, shareCode string) error {
	entry, err := n.shareIndex.Get(shareCode)
	if err != nil {
		return fmt.Errorf("node: unknown share code: %w", err)
	}
	env := group.Envelope{
		SenderNickname: n.Nickname(),
		Content:        fmt.Sprintf("/download %s \U0001F5BC", shareCode),
		Timestamp:      time.Now().UnixMilli(),
		IsImage:        true,
		Filename:       entry.Filename,
	}
	err = n.group.Publish(n.ctx, name, env)
	if err == nil {
		n.metrics.GroupMessagesTotal.WithLabelValues("sent", name).Inc()
	}
	return err
}

// shareCodeFromContent extracts the share-code token from the
// "/download <code> [emoji]" convention used for group file shares.
func shareCodeFromContent(content string) string {
	fields := strings.Fields(content)
	if len(fields) < 2 || fields[0] != "/download" {
		return ""
	}
	return fields[1]
}
