// Package node wires every sub-component (identity, discovery, peer
// directory, group channel, share index, file transfer, downloader,
// and metrics) into the single unified object the application drives
// (§4.K): one libp2p host, one cooperative event loop, one set of
// stream protocol handlers.
package node

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	libp2pquic "github.com/libp2p/go-libp2p/p2p/transport/quic"
	"github.com/libp2p/go-libp2p/p2p/transport/tcp"
	ws "github.com/libp2p/go-libp2p/p2p/transport/websocket"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/gigi-net/gigi-core/internal/discovery"
	"github.com/gigi-net/gigi-core/internal/downloader"
	"github.com/gigi-net/gigi-core/internal/filetransfer"
	"github.com/gigi-net/gigi-core/internal/group"
	"github.com/gigi-net/gigi-core/internal/metrics"
	"github.com/gigi-net/gigi-core/internal/peerdir"
	"github.com/gigi-net/gigi-core/internal/shareindex"
)

// Version is reported on the gigi_info metric and logged at startup.
const Version = "0.1.0"

// action is one unit of pending work for the cooperative event loop:
// it performs whatever store mutation it needs and reports the event
// to surface, or false if nothing should be surfaced (a self
// announcement, a duplicate, a rate-limited query).
type action func() (Event, bool)

// Node is the unified P2P node (§4.K). All of its exported methods are
// safe to call concurrently; the one exception is HandleNextSwarmEvent,
// which must be driven by a single caller at a time (§9's
// single-threaded cooperative dispatch).
type Node struct {
	host host.Host
	self peer.ID

	ctx    context.Context
	cancel context.CancelFunc

	nicknameMu sync.RWMutex
	nickname   string

	directory  *peerdir.Directory
	group      *group.Manager
	shareIndex *shareindex.Index
	ftServer   *filetransfer.Server
	downloads  *downloader.Manager
	discoverer *discovery.Manager
	metrics    *metrics.Metrics
	requester  *streamRequester

	chunkReaderMu sync.RWMutex
	chunkReader   filetransfer.ChunkReader

	pending chan action
}

// New constructs a Node from a hex-encoded ed25519 transport private
// key (the TransportPrivateKeyHex returned by credential.Account.Login,
// i.e. the hex of the derived identity.Bundle's transport key), an
// initial nickname, an output directory for completed downloads, and a
// path for the share index's JSON store.
func New(privateKeyHex, nick, outputDir, shareIndexPath string) (*Node, error) {
	keyBytes, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("node: invalid private key hex: %w", err)
	}
	if len(keyBytes) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("node: private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(keyBytes))
	}
	priv, err := libp2pcrypto.UnmarshalEd25519PrivateKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("node: unmarshal transport key: %w", err)
	}

	h, err := libp2p.New(
		libp2p.Identity(priv),
		libp2p.Transport(tcp.NewTCPTransport),
		libp2p.Transport(libp2pquic.NewTransport),
		libp2p.Transport(ws.New),
	)
	if err != nil {
		return nil, fmt.Errorf("node: create libp2p host: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	groupMgr, err := group.New(ctx, h)
	if err != nil {
		cancel()
		h.Close()
		return nil, fmt.Errorf("node: create group manager: %w", err)
	}

	idx, err := shareindex.Open(shareIndexPath)
	if err != nil {
		cancel()
		h.Close()
		return nil, fmt.Errorf("node: open share index: %w", err)
	}

	n := &Node{
		host:       h,
		self:       h.ID(),
		ctx:        ctx,
		cancel:     cancel,
		nickname:   nick,
		directory:  peerdir.New(),
		group:      groupMgr,
		shareIndex: idx,
		ftServer:   filetransfer.NewServer(idx),
		metrics:    metrics.New(Version, runtime.Version()),
		pending:    make(chan action, 256),
	}
	n.chunkReader = filetransfer.LocalChunkReader

	n.requester = &streamRequester{host: h}
	n.downloads = downloader.NewManager(outputDir, n.requester)

	n.discoverer = discovery.NewManager(h.ID().String(), n.Nickname, n.listenAddrStrings, discovery.DefaultConfig(), n.expireStale)

	n.registerProtocolHandlers()
	n.registerNotifiee()

	go n.discoverer.Run(ctx)
	go n.drainDiscoveryAnnouncements(ctx)
	go n.drainGroupInbound(ctx)
	go n.drainDownloaderEvents(ctx)

	return n, nil
}

// Nickname returns the node's current display nickname.
func (n *Node) Nickname() string {
	n.nicknameMu.RLock()
	defer n.nicknameMu.RUnlock()
	return n.nickname
}

// SetNickname updates the node's own nickname. It takes effect on the
// next discovery announcement and nickname exchange.
func (n *Node) SetNickname(nick string) {
	n.nicknameMu.Lock()
	n.nickname = nick
	n.nicknameMu.Unlock()
}

// Host exposes the underlying libp2p host for callers that need lower
// level access (e.g. a status command printing listen addresses).
func (n *Node) Host() host.Host { return n.host }

// PeerID returns this node's transport peer id as a string.
func (n *Node) PeerID() string { return n.self.String() }

// MetricsHandler returns the Prometheus HTTP handler for this node's
// collectors, for a caller that wants to expose them on a listener.
func (n *Node) MetricsHandler() http.Handler { return n.metrics.Handler() }

// StartListening adds a listen address to the host, e.g.
// "/ip4/0.0.0.0/tcp/0".
func (n *Node) StartListening(address string) error {
	maddr, err := ma.NewMultiaddr(address)
	if err != nil {
		return fmt.Errorf("node: invalid listen address: %w", err)
	}
	if err := n.host.Network().Listen(maddr); err != nil {
		return fmt.Errorf("node: listen: %w", err)
	}
	return nil
}

func (n *Node) listenAddrStrings() []string {
	addrs := n.host.Addrs()
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return out
}

// ListPeers returns a snapshot of every known peer record.
func (n *Node) ListPeers() []peerdir.Record { return n.directory.ListPeers() }

// GetPeerByNickname resolves a nickname to its peer record.
func (n *Node) GetPeerByNickname(nick string) (peerdir.Record, bool) {
	return n.directory.GetByNickname(nick)
}

// GetPeerNickname returns the last-known nickname for a peer id.
func (n *Node) GetPeerNickname(peerID string) (string, bool) {
	return n.directory.GetNickname(peerID)
}

// SetChunkReader overrides how file bytes are read for both serving
// chunks to peers and hashing shared content, used to route platform
// content URIs through caller-supplied I/O instead of direct file
// access (§6, §7's Platform URIs note).
func (n *Node) SetChunkReader(fn filetransfer.ChunkReader) {
	n.chunkReaderMu.Lock()
	n.chunkReader = fn
	n.chunkReaderMu.Unlock()
	n.ftServer.SetChunkReader(fn)
}

func (n *Node) getChunkReader() filetransfer.ChunkReader {
	n.chunkReaderMu.RLock()
	defer n.chunkReaderMu.RUnlock()
	return n.chunkReader
}

// HandleNextSwarmEvent blocks until a single meaningful event is ready
// and returns it, performing that event's store mutation synchronously
// within this call (§9: one outer task repeatedly awaits the next
// transport event and dispatches it, never two steps running at once).
func (n *Node) HandleNextSwarmEvent(ctx context.Context) (Event, error) {
	for {
		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-n.ctx.Done():
			return Event{}, n.ctx.Err()
		case act := <-n.pending:
			if ev, ok := act(); ok {
				return ev, nil
			}
		}
	}
}

func (n *Node) enqueue(act action) {
	select {
	case n.pending <- act:
	case <-n.ctx.Done():
	}
}

func (n *Node) enqueueEvent(ev Event) {
	n.enqueue(func() (Event, bool) { return ev, true })
}

// Shutdown drops every known peer record, closes the libp2p host, and
// cancels the node's background work. No Disconnected events are
// surfaced for the dropped peers.
func (n *Node) Shutdown() {
	for _, rec := range n.directory.ListPeers() {
		n.directory.Remove(rec.PeerID, peerdir.Disconnected)
	}
	n.group.Close()
	n.cancel()
	n.host.Close()
}

// expireStale adapts peerdir.Directory.ExpireStale to discovery's
// ExpireStaleFunc shape (a bare count, so discovery need not import
// peerdir). The sweep itself still runs on the discovery manager's own
// cleanup ticker rather than inside HandleNextSwarmEvent, mirroring
// the directory's own thread-safety guarantee; the resulting
// PeerExpired events are still funnelled through the pending queue so
// they surface from the same place every other event does.
func (n *Node) expireStale(now time.Time) int {
	evs := n.directory.ExpireStale(now)
	for _, ev := range evs {
		ev := ev
		n.enqueueEvent(Event{Kind: EventPeerExpired, PeerID: ev.PeerID})
	}
	return len(evs)
}

func (n *Node) registerNotifiee() {
	n.host.Network().Notify(&network.NotifyBundle{
		ConnectedF: func(_ network.Network, conn network.Conn) {
			peerID := conn.RemotePeer().String()
			go n.announceNickname(peerID)
			n.enqueue(func() (Event, bool) {
				ev := n.directory.Connected(peerID, time.Now(), discovery.DefaultPeerTTL)
				if ev == nil {
					return Event{}, false
				}
				return Event{Kind: EventConnected, PeerID: peerID}, true
			})
		},
		DisconnectedF: func(_ network.Network, conn network.Conn) {
			peerID := conn.RemotePeer().String()
			n.enqueue(func() (Event, bool) {
				ev := n.directory.Remove(peerID, peerdir.Disconnected)
				if ev == nil {
					return Event{}, false
				}
				return Event{Kind: EventDisconnected, PeerID: peerID}, true
			})
		},
	})
}

func (n *Node) drainDiscoveryAnnouncements(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ann, ok := <-n.discoverer.Announcements:
			if !ok {
				return
			}
			ann := ann
			n.enqueue(func() (Event, bool) {
				ev := n.directory.Discover(ann.PeerID, []string{ann.Addr}, ann.TTL, time.Now())
				if ev == nil {
					return Event{}, false
				}
				n.metrics.PeersDiscoveredTotal.WithLabelValues(ann.Interface).Inc()
				return Event{Kind: EventPeerDiscovered, PeerID: ann.PeerID, Addr: ann.Addr}, true
			})
		}
	}
}

func (n *Node) drainGroupInbound(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-n.group.Inbound:
			if !ok {
				return
			}
			msg := msg
			n.enqueue(func() (Event, bool) {
				n.metrics.GroupMessagesTotal.WithLabelValues("received", msg.Topic).Inc()
				if msg.Envelope.IsImage {
					code := shareCodeFromContent(msg.Envelope.Content)
					return Event{
						Kind:      EventGroupFileShareMessage,
						GroupName: msg.Topic,
						PeerID:    msg.From.String(),
						Nickname:  msg.Envelope.SenderNickname,
						ShareCode: code,
						Filename:  msg.Envelope.Filename,
						Message:   msg.Envelope.Content,
					}, true
				}
				return Event{
					Kind:      EventGroupMessage,
					GroupName: msg.Topic,
					PeerID:    msg.From.String(),
					Nickname:  msg.Envelope.SenderNickname,
					Message:   msg.Envelope.Content,
				}, true
			})
		}
	}
}

func (n *Node) drainDownloaderEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case dev, ok := <-n.downloads.Events:
			if !ok {
				return
			}
			dev := dev
			n.recordDownloadMetrics(dev)
			n.enqueueEvent(downloaderEventToNode(dev))
		}
	}
}

func (n *Node) recordDownloadMetrics(dev downloader.Event) {
	switch dev.Kind {
	case downloader.FileDownloadStarted:
		n.metrics.DownloadsActive.WithLabelValues().Inc()
	case downloader.FileDownloadProgress:
		n.metrics.DownloadRateBytesSec.WithLabelValues(dev.DownloadID).Set(dev.BytesPerSecond)
	case downloader.FileDownloadCompleted:
		n.metrics.DownloadsActive.WithLabelValues().Dec()
		n.metrics.DownloadsTotal.WithLabelValues("completed").Inc()
		n.metrics.DownloadBytesTotal.WithLabelValues().Add(downloadedBytes(dev))
	case downloader.FileDownloadFailed:
		n.metrics.DownloadsActive.WithLabelValues().Dec()
		n.metrics.DownloadsTotal.WithLabelValues("failed").Inc()
	}
}

func downloadedBytes(dev downloader.Event) float64 {
	info, err := os.Stat(dev.Path)
	if err != nil {
		return 0
	}
	return float64(info.Size())
}

func downloaderEventToNode(dev downloader.Event) Event {
	kind := EventFileDownloadStarted
	switch dev.Kind {
	case downloader.FileDownloadStarted:
		kind = EventFileDownloadStarted
	case downloader.FileDownloadProgress:
		kind = EventFileDownloadProgress
	case downloader.FileDownloadCompleted:
		kind = EventFileDownloadCompleted
	case downloader.FileDownloadFailed:
		kind = EventFileDownloadFailed
	}
	return Event{
		Kind:      kind,
		PeerID:    dev.FromPeer,
		Nickname:  dev.FromNickname,
		ShareCode: dev.ShareCode,
		Filename:  dev.Filename,
		Err:       dev.Error,
		Download: DownloadSnapshot{
			DownloadID:       dev.DownloadID,
			FromPeer:         dev.FromPeer,
			FromNickname:     dev.FromNickname,
			Filename:         dev.Filename,
			DownloadedChunks: dev.DownloadedChunks,
			TotalChunks:      dev.TotalChunks,
			BytesPerSecond:   dev.BytesPerSecond,
			Path:             dev.Path,
		},
	}
}
