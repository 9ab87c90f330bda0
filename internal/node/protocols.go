package node

import (
	"bufio"
	"context"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"

	"github.com/gigi-net/gigi-core/internal/proto/direct"
	"github.com/gigi-net/gigi-core/internal/proto/nickname"
	"github.com/gigi-net/gigi-core/internal/proto/transfer"
)

// registerProtocolHandlers wires the three stream protocols (§4.E,
// §4.F, §4.I) onto the host. Filetransfer is handled entirely
// synchronously since its backing share index already guards its own
// state; nickname and direct both push notification events through
// the cooperative loop after mutating their own already-thread-safe
// stores inline.
func (n *Node) registerProtocolHandlers() {
	n.host.SetStreamHandler(protocol.ID(nickname.ProtocolID), n.handleNicknameStream)
	n.host.SetStreamHandler(protocol.ID(direct.ProtocolID), n.handleDirectStream)
	n.host.SetStreamHandler(protocol.ID(transfer.ProtocolID), n.handleTransferStream)
}

func (n *Node) handleNicknameStream(s network.Stream) {
	defer s.Close()

	r := bufio.NewReader(s)
	req, err := nickname.ReadRequest(r)
	if err != nil {
		return
	}

	peerID := s.Conn().RemotePeer().String()
	ev := n.directory.UpdateNickname(peerID, req.Nickname)

	resp := nickname.AckResponse(n.Nickname())
	if err := nickname.WriteResponse(s, resp); err != nil {
		return
	}

	if ev != nil {
		n.enqueueEvent(Event{Kind: EventNicknameUpdated, PeerID: peerID, Nickname: req.Nickname})
	}
}

func (n *Node) handleDirectStream(s network.Stream) {
	defer s.Close()

	r := bufio.NewReader(s)
	req, err := direct.ReadRequest(r)
	if err != nil {
		return
	}

	peerID := s.Conn().RemotePeer().String()
	if err := direct.WriteResponse(s, direct.Response{}); err != nil {
		return
	}

	nick, _ := n.directory.GetNickname(peerID)
	n.metrics.DirectMessagesTotal.WithLabelValues("received").Inc()

	switch {
	case req.Text != nil:
		n.enqueueEvent(Event{Kind: EventDirectMessage, PeerID: peerID, Nickname: nick, Message: req.Text.Message})
	case req.FileShare != nil:
		fs := req.FileShare
		n.enqueueEvent(Event{
			Kind:      EventDirectFileShareMessage,
			PeerID:    peerID,
			Nickname:  nick,
			ShareCode: fs.ShareCode,
			Filename:  fs.Filename,
			FileSize:  fs.FileSize,
			FileType:  fs.FileType,
		})
	case req.ShareGroup != nil:
		sg := req.ShareGroup
		n.enqueueEvent(Event{
			Kind:        EventDirectGroupShareMessage,
			PeerID:      peerID,
			Nickname:    nick,
			GroupID:     sg.GroupID,
			GroupName:   sg.GroupName,
			InviterName: sg.InviterNickname,
		})
	}
}

func (n *Node) handleTransferStream(s network.Stream) {
	defer s.Close()
	if err := n.ftServer.HandleStream(s); err != nil {
		n.metrics.ChunksServedTotal.WithLabelValues("error").Inc()
		return
	}
	n.metrics.ChunksServedTotal.WithLabelValues("ok").Inc()
}

// announceNickname sends this node's current nickname to a newly
// connected peer and records the ack (§4.E: "a single unsolicited
// AnnounceNickname sent on peer discovery"; applied here on transport
// connect, since that is the point at which a stream can actually be
// opened to the peer).
func (n *Node) announceNickname(peerIDStr string) {
	pid, err := peer.Decode(peerIDStr)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(n.ctx, streamTimeout)
	defer cancel()

	s, err := n.host.NewStream(ctx, pid, protocol.ID(nickname.ProtocolID))
	if err != nil {
		return
	}
	defer s.Close()

	if err := nickname.WriteRequest(s, nickname.Request{Nickname: n.Nickname()}); err != nil {
		return
	}
	resp, err := nickname.ReadResponse(bufio.NewReader(s))
	if err != nil || resp.Ack == nil {
		return
	}

	ev := n.directory.UpdateNickname(peerIDStr, resp.Ack.Nickname)
	if ev != nil {
		n.enqueueEvent(Event{Kind: EventNicknameUpdated, PeerID: peerIDStr, Nickname: resp.Ack.Nickname})
	}
}
